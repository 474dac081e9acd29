// Package records owns durable state: the cumulative contacted-record store
// and the per-execution run summaries. The in-memory store is the live
// structure; the JSON files are projections of it.
package records

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/emeight/alumni-outreach/internal/faults"
	"github.com/emeight/alumni-outreach/internal/models"
)

// Store maps candidate UID to the most recent record. It is owned exclusively
// by the session for the session's lifetime; no locking is needed under the
// single-threaded execution model.
type Store struct {
	byUID map[int64]models.CandidateRecord
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byUID: make(map[int64]models.CandidateRecord), now: time.Now}
}

// Load deserializes persisted state. The returned store is always usable:
// a missing file yields an empty store and a nil error; an unreadable or
// corrupt file yields an empty store and an error wrapping
// faults.ErrCorruptRecords, which the caller must surface as a warning
// rather than abort on. Favoring a fresh run over blocking on unreadable
// history is deliberate, not silent data loss.
func Load(path string) (*Store, error) {
	s := NewStore()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("%w: read %s: %v", faults.ErrCorruptRecords, path, err)
	}

	var raw map[string]models.CandidateRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return s, fmt.Errorf("%w: decode %s: %v", faults.ErrCorruptRecords, path, err)
	}
	for k, rec := range raw {
		uid, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return NewStore(), fmt.Errorf("%w: non-numeric key %q in %s", faults.ErrCorruptRecords, k, path)
		}
		rec.UID = uid
		s.byUID[uid] = rec
	}
	return s, nil
}

// Len returns the number of identities known to the store.
func (s *Store) Len() int { return len(s.byUID) }

// Contains is the sole dedup primitive.
func (s *Store) Contains(uid int64) bool {
	_, ok := s.byUID[uid]
	return ok
}

// Get returns the current record for uid, if any.
func (s *Store) Get(uid int64) (models.CandidateRecord, bool) {
	rec, ok := s.byUID[uid]
	return rec, ok
}

// Upsert inserts or merges rec and returns the stored result. The merge rule
// carries an existing record's CreatedAt forward, overwrites every other
// field, and stamps UpdatedAt.
func (s *Store) Upsert(rec models.CandidateRecord) models.CandidateRecord {
	now := s.now()
	if existing, ok := s.byUID[rec.UID]; ok && !existing.CreatedAt.IsZero() {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.byUID[rec.UID] = rec
	return rec
}

// Flush persists the whole store atomically: a reader observes either the
// prior file or the new one, never a partial write.
func (s *Store) Flush(path string) error {
	out := make(map[string]models.CandidateRecord, len(s.byUID))
	for uid, rec := range s.byUID {
		out[strconv.FormatInt(uid, 10)] = rec
	}
	if err := writeJSONAtomic(path, out); err != nil {
		return fmt.Errorf("%w: flush records to %s: %v", faults.ErrPersistence, path, err)
	}
	return nil
}
