package records

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/emeight/alumni-outreach/internal/faults"
	"github.com/emeight/alumni-outreach/internal/models"
)

// runFileFormat names the per-run file from the run's start time.
const runFileFormat = "2006-01-02_15-04-05"

// Run accumulates one execution's metadata and per-candidate outcomes. It is
// born and dies within a single process execution, independent of the
// cumulative record store.
type Run struct {
	summary models.RunSummary
	seq     int
	now     func() time.Time
}

// NewRun stamps the run id and start time.
func NewRun(query string) *Run {
	r := &Run{now: time.Now}
	r.summary = models.RunSummary{
		RunID:     uuid.NewString(),
		Query:     query,
		Results:   make(map[int]models.CandidateRecord),
		StartedAt: r.now(),
	}
	return r
}

// Record appends one candidate outcome, keyed by encounter order.
func (r *Run) Record(rec models.CandidateRecord) {
	r.seq++
	r.summary.Results[r.seq] = rec
}

// Finalize stamps the end time, computes the elapsed seconds (rounded to two
// decimals), and recounts statuses from the recorded results. Safe to call
// once per run.
func (r *Run) Finalize() models.RunSummary {
	end := r.now()
	r.summary.EndedAt = end
	elapsed := end.Sub(r.summary.StartedAt).Seconds()
	r.summary.ElapsedSeconds = math.Round(elapsed*100) / 100

	var counts models.StatusCounts
	for _, rec := range r.summary.Results {
		switch rec.Status {
		case models.StatusSent:
			counts.Sent++
		case models.StatusViewed:
			counts.Viewed++
		case models.StatusSkipped:
			counts.Skipped++
		}
	}
	r.summary.Counts = counts
	return r.summary
}

// Summary returns the accumulated summary as-is.
func (r *Run) Summary() models.RunSummary { return r.summary }

// FileName is the deterministic per-run file name derived from the start
// timestamp.
func (r *Run) FileName() string {
	return r.summary.StartedAt.Format(runFileFormat) + ".json"
}

// Flush writes the summary to its own document under dir, atomically, and
// returns the written path.
func (r *Run) Flush(dir string) (string, error) {
	path := filepath.Join(dir, r.FileName())
	if err := writeJSONAtomic(path, r.summary); err != nil {
		return "", fmt.Errorf("%w: flush run summary to %s: %v", faults.ErrPersistence, path, err)
	}
	return path, nil
}
