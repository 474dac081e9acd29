// Package session composes the outreach engine: it walks the traversal,
// deduplicates candidates against the record store, invokes the channel
// selector, enforces the send budget, and commits progress durably. It is
// the single owner of the record store and the run summary; every
// termination path reaches the finalize-and-flush sequence.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/emeight/alumni-outreach/internal/config"
	"github.com/emeight/alumni-outreach/internal/deliver"
	"github.com/emeight/alumni-outreach/internal/directory"
	"github.com/emeight/alumni-outreach/internal/faults"
	"github.com/emeight/alumni-outreach/internal/logging"
	"github.com/emeight/alumni-outreach/internal/models"
	"github.com/emeight/alumni-outreach/internal/records"
)

// Deliverer is the channel-selection capability the session consumes.
// *deliver.Selector is the production implementation.
type Deliverer interface {
	Deliver(row directory.Row, cand models.Candidate, msg deliver.Message) (models.Status, error)
}

// Resolver converts one row into a normalized candidate.
type Resolver func(directory.Row) (models.Candidate, error)

// StopReason explains why the loop ended.
type StopReason string

const (
	StopBudgetExhausted  StopReason = "budget_exhausted"
	StopFatalSignal      StopReason = "fatal_signal"
	StopResultsExhausted StopReason = "results_exhausted"
)

type Session struct {
	cfg      *config.Config
	store    *records.Store
	run      *records.Run
	trav     directory.Traversal
	deliver  Deliverer
	resolve  Resolver
	log      *logging.Logger
	onResult func(models.CandidateRecord)
}

func New(cfg *config.Config, store *records.Store, trav directory.Traversal, d Deliverer) *Session {
	return &Session{
		cfg:     cfg,
		store:   store,
		run:     records.NewRun(cfg.Search.Query),
		trav:    trav,
		deliver: d,
		resolve: directory.ResolveCandidate,
		log:     logging.New(cfg.Logging.Level).With("module", "session"),
	}
}

// SetResolver overrides candidate resolution (tests).
func (s *Session) SetResolver(r Resolver) { s.resolve = r }

// OnResult registers a per-candidate callback invoked after each outcome is
// committed, used by the CLI for console rendering.
func (s *Session) OnResult(fn func(models.CandidateRecord)) { s.onResult = fn }

// Run executes the outreach loop and always finalizes: the run summary is
// stamped and persisted, then the record store is flushed, before any error
// is returned. The returned summary is valid even when err is non-nil.
func (s *Session) Run(ctx context.Context) (models.RunSummary, error) {
	budget := s.cfg.Outreach.MaxEmails
	var (
		reason  StopReason
		loopErr error
	)

	s.log.Info("session starting",
		"query", s.cfg.Search.Query,
		"budget", budget,
		"known_identities", s.store.Len())

pages:
	for {
		if budget <= 0 {
			reason = StopBudgetExhausted
			break
		}
		rows, err := s.trav.Rows()
		if err != nil {
			reason = StopFatalSignal
			loopErr = fmt.Errorf("%w: reading result rows: %v", faults.ErrFatalControl, err)
			break
		}
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				reason = StopFatalSignal
				loopErr = err
				break pages
			}
			// A single page may hold more rows than remaining budget. The
			// leftover rows are reported as skipped in the run summary but
			// stay out of the record store, so a later run can still reach
			// them.
			if budget <= 0 {
				reason = StopBudgetExhausted
				s.recordBudgetSkip(row)
				continue
			}
			sent, err := s.processRow(row)
			if err != nil {
				reason = StopFatalSignal
				loopErr = err
				break pages
			}
			if sent {
				budget--
			}
		}
		if reason == StopBudgetExhausted {
			break
		}
		if !s.trav.HasNextPage() {
			reason = StopResultsExhausted
			break
		}
		if err := s.trav.AdvancePage(); err != nil {
			reason = StopFatalSignal
			loopErr = fmt.Errorf("%w: advancing page: %v", faults.ErrFatalControl, err)
			break
		}
	}

	s.log.Info("session stopping", "reason", string(reason), "budget_left", budget)
	// A finalize failure must stay visible even when the loop already ended
	// with its own signal: a dropped persistence fault would mean silently
	// lost outcomes.
	summary, finErr := s.finalize()
	return summary, errors.Join(loopErr, finErr)
}

// recordBudgetSkip reports a row the budget could not cover. Run-summary
// only: upserting it into the store would suppress outreach forever.
func (s *Session) recordBudgetSkip(row directory.Row) {
	rec := models.CandidateRecord{Status: models.StatusSkipped}
	if cand, err := s.resolve(row); err == nil {
		rec = models.NewRecord(cand)
		rec.Status = models.StatusSkipped
	}
	s.run.Record(rec)
	s.emit(rec)
}

// processRow commits exactly one outcome for the row (or none, when a fatal
// signal preempts the send). The boolean reports whether the budget was
// consumed.
func (s *Session) processRow(row directory.Row) (bool, error) {
	cand, err := s.resolve(row)
	if err != nil {
		if !errors.Is(err, faults.ErrMalformedIdentity) {
			return false, err
		}
		// Per-row failure: no identity means no store entry, but the run
		// still counts the encounter as skipped.
		s.log.Warn("unresolvable row skipped", "err", err)
		rec := models.CandidateRecord{Status: models.StatusSkipped}
		s.run.Record(rec)
		s.emit(rec)
		return false, nil
	}

	rec := models.NewRecord(cand)

	if s.store.Contains(cand.UID) {
		rec.Status = models.StatusSkipped
		if s.cfg.Outreach.TouchOnSkip {
			rec = s.store.Upsert(rec)
		} else if existing, ok := s.store.Get(cand.UID); ok {
			rec.CreatedAt = existing.CreatedAt
			rec.UpdatedAt = existing.UpdatedAt
		}
		s.run.Record(rec)
		s.emit(rec)
		s.log.Debug("dedup skip", "uid", cand.UID)
		return false, nil
	}

	msg := deliver.Message{
		Subject:    s.cfg.Message.Subject,
		Body:       Personalize(cand.Name, s.cfg.Message.Body),
		CopySender: s.cfg.Message.CopySender,
	}
	status, err := s.deliver.Deliver(row, cand, msg)
	if err != nil {
		if errors.Is(err, faults.ErrOutboundLimit) {
			// Nothing was sent for this candidate; the limit signal is a
			// session outcome, not a per-candidate one.
			s.log.Warn("outbound limit signaled", "uid", cand.UID)
			return false, err
		}
		if faults.IsFatal(err) {
			return false, err
		}
		// Any other delivery fault degrades to viewed and the run goes on.
		s.log.Warn("delivery fault absorbed", "uid", cand.UID, "err", err)
		status = models.StatusViewed
	}

	rec.Status = status
	rec = s.store.Upsert(rec)
	s.run.Record(rec)
	s.emit(rec)
	s.log.Info("candidate processed", "uid", cand.UID, "status", string(status))
	return status == models.StatusSent, nil
}

// finalize stamps the run summary, persists it, then flushes the record
// store, in that order, so persisted state reflects every committed outcome.
func (s *Session) finalize() (models.RunSummary, error) {
	summary := s.run.Finalize()

	runsDir := filepath.Join(s.cfg.Data.Dir, "runs")
	var firstErr error
	if path, err := s.run.Flush(runsDir); err != nil {
		s.log.Error("run summary flush failed", "err", err)
		firstErr = err
	} else {
		s.log.Info("run summary written", "path", path)
	}

	recordsPath := RecordsPath(s.cfg)
	if err := s.store.Flush(recordsPath); err != nil {
		// A failed record flush threatens the dedup invariant; surface it
		// loudly and let the process exit nonzero.
		s.log.Error("record store flush failed", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		s.log.Info("record store written", "path", recordsPath, "identities", s.store.Len())
	}
	return summary, firstErr
}

func (s *Session) emit(rec models.CandidateRecord) {
	if s.onResult != nil {
		s.onResult(rec)
	}
}

// RecordsPath locates the cumulative record store under the data directory.
func RecordsPath(cfg *config.Config) string {
	return filepath.Join(cfg.Data.Dir, "records.json")
}

// Personalize prepends a greeting computed from the display name. It is a
// pure function; an unusable name falls back to a generic greeting rather
// than failing the candidate.
func Personalize(name, body string) string {
	greeting := "Hello,"
	if trimmed := strings.Join(strings.Fields(name), " "); trimmed != "" {
		greeting = "Hi " + trimmed + ","
	}
	return greeting + "\n\n" + body
}
