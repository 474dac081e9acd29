package models

import "time"

// Status is the most recent observed outcome for a candidate. It is not a
// history: each upsert overwrites the previous value.
type Status string

const (
	// StatusSent means an email was submitted through one of the channels.
	StatusSent Status = "sent"
	// StatusViewed means the candidate was reached but no email went out.
	StatusViewed Status = "viewed"
	// StatusSkipped means outreach was suppressed (dedup or exhausted budget).
	StatusSkipped Status = "skipped"
)

// Candidate is one normalized directory entry, resolved from a result card.
type Candidate struct {
	UID        int64
	Name       string
	URL        string
	Employment string
	QuickSend  bool
}

// CandidateRecord is the durable form of a candidate, keyed by UID in the
// record store. CreatedAt is set once at first observation; UpdatedAt is
// refreshed on every upsert.
type CandidateRecord struct {
	UID        int64     `json:"uid"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Employment string    `json:"employment,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewRecord builds a record from a resolved candidate with its status unset.
func NewRecord(c Candidate) CandidateRecord {
	return CandidateRecord{
		UID:        c.UID,
		Name:       c.Name,
		URL:        c.URL,
		Employment: c.Employment,
	}
}

// StatusCounts tallies per-status outcomes for one run.
type StatusCounts struct {
	Sent    int `json:"sent"`
	Viewed  int `json:"viewed"`
	Skipped int `json:"skipped"`
}

// RunSummary is the write-once-per-run report persisted as its own JSON
// document. Results are keyed by 1-based encounter order.
type RunSummary struct {
	RunID          string                  `json:"run_id"`
	Query          string                  `json:"query"`
	StartedAt      time.Time               `json:"started_at"`
	EndedAt        time.Time               `json:"ended_at"`
	ElapsedSeconds float64                 `json:"elapsed_seconds"`
	Counts         StatusCounts            `json:"counts"`
	Results        map[int]CandidateRecord `json:"results"`
}
