package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emeight/alumni-outreach/internal/config"
	"github.com/emeight/alumni-outreach/internal/deliver"
	"github.com/emeight/alumni-outreach/internal/directory"
	"github.com/emeight/alumni-outreach/internal/faults"
	"github.com/emeight/alumni-outreach/internal/models"
	"github.com/emeight/alumni-outreach/internal/records"
)

type fakeRow struct {
	name  string
	link  string
	quick bool
}

func (r *fakeRow) DisplayName() (string, error) { return r.name, nil }
func (r *fakeRow) LinkTarget() (string, error)  { return r.link, nil }
func (r *fakeRow) QuickSendAvailable() bool     { return r.quick }
func (r *fakeRow) ClickQuickSend() error        { return nil }
func (r *fakeRow) EmploymentText() string       { return "" }

func quickRow(uid int64, name string) directory.Row {
	return &fakeRow{name: name, link: fmt.Sprintf("/person/%d", uid), quick: true}
}

type fakeTraversal struct {
	pages    [][]directory.Row
	idx      int
	advances int
}

func (t *fakeTraversal) Rows() ([]directory.Row, error) { return t.pages[t.idx], nil }
func (t *fakeTraversal) HasNextPage() bool              { return t.idx < len(t.pages)-1 }
func (t *fakeTraversal) AdvancePage() error {
	t.idx++
	t.advances++
	return nil
}

type delivery struct {
	uid int64
	msg deliver.Message
}

type fakeDeliverer struct {
	status   map[int64]models.Status
	errs     map[int64]error
	attempts []delivery
}

func (d *fakeDeliverer) Deliver(_ directory.Row, cand models.Candidate, msg deliver.Message) (models.Status, error) {
	d.attempts = append(d.attempts, delivery{uid: cand.UID, msg: msg})
	if err, ok := d.errs[cand.UID]; ok {
		return models.StatusViewed, err
	}
	if st, ok := d.status[cand.UID]; ok {
		return st, nil
	}
	return models.StatusSent, nil
}

func testConfig(t *testing.T, budget int) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Search.Query = "class of 2010"
	cfg.Message.Subject = "Hello"
	cfg.Message.Body = "It has been a while."
	cfg.Outreach.MaxEmails = budget
	cfg.Outreach.TouchOnSkip = true
	cfg.Data.Dir = t.TempDir()
	cfg.Logging.Level = "error"
	return cfg
}

func TestBudgetStopsMidPage(t *testing.T) {
	cfg := testConfig(t, 2)
	store := records.NewStore()
	trav := &fakeTraversal{pages: [][]directory.Row{{
		quickRow(1, "One"), quickRow(2, "Two"), quickRow(3, "Three"),
	}}}
	d := &fakeDeliverer{}

	summary, err := New(cfg, store, trav, d).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCounts{Sent: 2, Viewed: 0, Skipped: 1}, summary.Counts)
	assert.Len(t, d.attempts, 2, "no delivery attempted past the budget")

	// Sent candidates are committed to the store; the budget-skipped third
	// row stays out so a later run can still reach it.
	assert.True(t, store.Contains(1))
	assert.True(t, store.Contains(2))
	assert.False(t, store.Contains(3))
	assert.Equal(t, 0, trav.advances, "no page advance after budget exhaustion")
}

func TestBudgetNeverExceeded(t *testing.T) {
	cfg := testConfig(t, 3)
	store := records.NewStore()
	var rows []directory.Row
	for uid := int64(1); uid <= 10; uid++ {
		rows = append(rows, quickRow(uid, fmt.Sprintf("Person %d", uid)))
	}
	trav := &fakeTraversal{pages: [][]directory.Row{rows[:5], rows[5:]}}
	d := &fakeDeliverer{}

	summary, err := New(cfg, store, trav, d).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Counts.Sent)
	assert.LessOrEqual(t, summary.Counts.Sent, cfg.Outreach.MaxEmails)
}

func TestDedupSkipPreservesCreatedAtAndBudget(t *testing.T) {
	cfg := testConfig(t, 5)
	store := records.NewStore()
	seeded := store.Upsert(models.CandidateRecord{UID: 1, Name: "One", Status: models.StatusSent})
	created := seeded.CreatedAt

	time.Sleep(5 * time.Millisecond)

	trav := &fakeTraversal{pages: [][]directory.Row{{quickRow(1, "One"), quickRow(2, "Two")}}}
	d := &fakeDeliverer{}

	summary, err := New(cfg, store, trav, d).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCounts{Sent: 1, Viewed: 0, Skipped: 1}, summary.Counts)
	require.Len(t, d.attempts, 1, "known identity never reaches a channel")
	assert.Equal(t, int64(2), d.attempts[0].uid)

	rec, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusSkipped, rec.Status)
	assert.True(t, rec.CreatedAt.Equal(created), "created_at survives the re-encounter")
	assert.True(t, rec.UpdatedAt.After(created), "touch-on-skip refreshes updated_at")
}

func TestDedupSkipWithoutTouch(t *testing.T) {
	cfg := testConfig(t, 5)
	cfg.Outreach.TouchOnSkip = false
	store := records.NewStore()
	seeded := store.Upsert(models.CandidateRecord{UID: 1, Name: "One", Status: models.StatusSent})

	trav := &fakeTraversal{pages: [][]directory.Row{{quickRow(1, "One")}}}
	summary, err := New(cfg, store, trav, &fakeDeliverer{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Counts.Skipped)

	rec, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusSent, rec.Status, "store entry untouched on pure dedup skip")
	assert.True(t, rec.UpdatedAt.Equal(seeded.UpdatedAt))
}

func TestNoAddressRecordedViewedAndRunContinues(t *testing.T) {
	cfg := testConfig(t, 5)
	store := records.NewStore()
	trav := &fakeTraversal{pages: [][]directory.Row{{quickRow(1, "One"), quickRow(2, "Two")}}}
	d := &fakeDeliverer{status: map[int64]models.Status{1: models.StatusViewed}}

	summary, err := New(cfg, store, trav, d).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCounts{Sent: 1, Viewed: 1, Skipped: 0}, summary.Counts)
	rec, _ := store.Get(1)
	assert.Equal(t, models.StatusViewed, rec.Status)
	assert.Len(t, d.attempts, 2, "run continues past an unreachable candidate")
}

func TestOutboundLimitTerminatesAndPersists(t *testing.T) {
	cfg := testConfig(t, 5)
	store := records.NewStore()
	trav := &fakeTraversal{pages: [][]directory.Row{{
		quickRow(1, "One"), quickRow(2, "Two"), quickRow(3, "Three"),
	}}}
	d := &fakeDeliverer{errs: map[int64]error{2: fmt.Errorf("%w: daily cap", faults.ErrOutboundLimit)}}

	summary, err := New(cfg, store, trav, d).Run(context.Background())
	require.ErrorIs(t, err, faults.ErrOutboundLimit)

	// The first candidate's outcome was committed; the limit-signaling
	// candidate has no per-candidate record; the third was never reached.
	assert.Equal(t, models.StatusCounts{Sent: 1, Viewed: 0, Skipped: 0}, summary.Counts)
	assert.True(t, store.Contains(1))
	assert.False(t, store.Contains(2))
	assert.False(t, store.Contains(3))
	assert.Len(t, d.attempts, 2)

	// Termination still reached the flush step.
	_, statErr := os.Stat(RecordsPath(cfg))
	assert.NoError(t, statErr)
	runs, globErr := filepath.Glob(filepath.Join(cfg.Data.Dir, "runs", "*.json"))
	require.NoError(t, globErr)
	assert.Len(t, runs, 1)
}

func TestFinalizeFailureSurfacesAlongsideLimitSignal(t *testing.T) {
	cfg := testConfig(t, 5)
	// A regular file where the data directory should be makes every flush
	// fail with a persistence fault.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.Data.Dir = blocker

	store := records.NewStore()
	trav := &fakeTraversal{pages: [][]directory.Row{{quickRow(1, "One")}}}
	d := &fakeDeliverer{errs: map[int64]error{1: fmt.Errorf("%w: daily cap", faults.ErrOutboundLimit)}}

	_, err := New(cfg, store, trav, d).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrOutboundLimit)
	assert.ErrorIs(t, err, faults.ErrPersistence, "flush failure must not be masked by the limit signal")
}

func TestFinalizeFailureReturnedOnCleanLoop(t *testing.T) {
	cfg := testConfig(t, 5)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.Data.Dir = blocker

	store := records.NewStore()
	trav := &fakeTraversal{pages: [][]directory.Row{{quickRow(1, "One")}}}

	_, err := New(cfg, store, trav, &fakeDeliverer{}).Run(context.Background())
	assert.ErrorIs(t, err, faults.ErrPersistence)
}

func TestMalformedRowSkippedRunContinues(t *testing.T) {
	cfg := testConfig(t, 5)
	store := records.NewStore()
	bad := &fakeRow{name: "Mystery", link: "/person/not-numeric", quick: true}
	trav := &fakeTraversal{pages: [][]directory.Row{{bad, quickRow(2, "Two")}}}
	d := &fakeDeliverer{}

	summary, err := New(cfg, store, trav, d).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCounts{Sent: 1, Viewed: 0, Skipped: 1}, summary.Counts)
	require.Len(t, d.attempts, 1)
	assert.Equal(t, int64(2), d.attempts[0].uid)
	assert.True(t, store.Contains(2))
	assert.Equal(t, 1, store.Len(), "no store entry without an identity")
}

func TestMultiPageTraversal(t *testing.T) {
	cfg := testConfig(t, 10)
	store := records.NewStore()
	trav := &fakeTraversal{pages: [][]directory.Row{
		{quickRow(1, "One"), quickRow(2, "Two")},
		{quickRow(3, "Three")},
	}}
	d := &fakeDeliverer{}

	summary, err := New(cfg, store, trav, d).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Counts.Sent)
	assert.Equal(t, 1, trav.advances)
}

func TestMessagePersonalization(t *testing.T) {
	cfg := testConfig(t, 5)
	store := records.NewStore()
	trav := &fakeTraversal{pages: [][]directory.Row{{quickRow(1, "Radia Perlman")}}}
	d := &fakeDeliverer{}

	_, err := New(cfg, store, trav, d).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, d.attempts, 1)
	assert.Equal(t, "Hello", d.attempts[0].msg.Subject)
	assert.Equal(t, "Hi Radia Perlman,\n\nIt has been a while.", d.attempts[0].msg.Body)
}

func TestPersonalize(t *testing.T) {
	assert.Equal(t, "Hi Jean Bartik,\n\nbody", Personalize("Jean Bartik", "body"))
	assert.Equal(t, "Hi Jean Bartik,\n\nbody", Personalize("  Jean \n Bartik ", "body"))
	assert.Equal(t, "Hello,\n\nbody", Personalize("", "body"))
	assert.Equal(t, "Hello,\n\nbody", Personalize("   ", "body"))
}

func TestRecordStoreFlushedAtSessionEnd(t *testing.T) {
	cfg := testConfig(t, 5)
	store := records.NewStore()
	trav := &fakeTraversal{pages: [][]directory.Row{{quickRow(1, "One")}}}

	_, err := New(cfg, store, trav, &fakeDeliverer{}).Run(context.Background())
	require.NoError(t, err)

	reloaded, loadErr := records.Load(RecordsPath(cfg))
	require.NoError(t, loadErr)
	got, ok := reloaded.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusSent, got.Status)
}

func TestCanceledContextStillFinalizes(t *testing.T) {
	cfg := testConfig(t, 5)
	store := records.NewStore()
	trav := &fakeTraversal{pages: [][]directory.Row{{quickRow(1, "One")}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg, store, trav, &fakeDeliverer{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(RecordsPath(cfg))
	assert.NoError(t, statErr, "finalize runs even on cancellation")
}
