// Package directory walks the paginated search results and normalizes each
// result card into a candidate. The Row and Traversal interfaces are the
// narrow surface the session consumes; the rod-backed implementations here
// hide the transport details.
package directory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/emeight/alumni-outreach/internal/browser"
	"github.com/emeight/alumni-outreach/internal/faults"
	"github.com/emeight/alumni-outreach/internal/logging"
	"github.com/emeight/alumni-outreach/internal/models"
	"github.com/emeight/alumni-outreach/internal/pacing"
)

// Row is the per-card capability exposed to the resolver and the delivery
// channels.
type Row interface {
	// DisplayName reads the card's visible name text.
	DisplayName() (string, error)
	// LinkTarget reads the profile link target.
	LinkTarget() (string, error)
	// QuickSendAvailable probes for the card's one-click email control.
	QuickSendAvailable() bool
	// ClickQuickSend operates the one-click control.
	ClickQuickSend() error
	// EmploymentText reads the card's current-employment text, if any.
	EmploymentText() string
}

// Traversal drives page-by-page, row-by-row iteration.
type Traversal interface {
	Rows() ([]Row, error)
	HasNextPage() bool
	AdvancePage() error
}

const (
	resultsSel    = "div.search-results"
	cardSel       = ".card-and-gutter"
	nameLinkSel   = ".card__name a"
	quickSendSel  = `a.btn-ace-primary[data-ace-email]`
	employmentSel = "div.current-employment"
	nextPageSel   = `a[aria-label="Next Page"]`
)

// PageTraversal is the rod-backed Traversal over the live results page.
type PageTraversal struct {
	page    *rod.Page
	timeout time.Duration
	pacer   *pacing.Pacer
	log     *logging.Logger
}

func NewTraversal(p *rod.Page, timeout time.Duration, pacer *pacing.Pacer, log *logging.Logger) *PageTraversal {
	return &PageTraversal{page: p, timeout: timeout, pacer: pacer, log: log.With("module", "directory")}
}

// Rows waits for the results container and returns the current page's cards.
// The slice is finite per page; it is re-read after every page advance.
func (t *PageTraversal) Rows() ([]Row, error) {
	if err := browser.WaitVisible(t.page, resultsSel, t.timeout); err != nil {
		return nil, fmt.Errorf("results container: %w", err)
	}
	els, err := t.page.Timeout(t.timeout).Elements(cardSel)
	if err != nil {
		return nil, fmt.Errorf("result cards: %w", err)
	}
	rows := make([]Row, 0, len(els))
	for _, el := range els {
		rows = append(rows, &cardRow{el: el, timeout: t.timeout})
	}
	t.log.Info("page loaded", "cards", len(rows))
	return rows, nil
}

func (t *PageTraversal) HasNextPage() bool {
	return browser.Has(t.page, nextPageSel)
}

func (t *PageTraversal) AdvancePage() error {
	t.pacer.Sleep()
	if err := browser.Click(t.page, nextPageSel, t.timeout); err != nil {
		return fmt.Errorf("next page: %w", err)
	}
	return nil
}

type cardRow struct {
	el      *rod.Element
	timeout time.Duration
}

func (r *cardRow) DisplayName() (string, error) {
	el, err := r.el.Timeout(r.timeout).Element(nameLinkSel)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (r *cardRow) LinkTarget() (string, error) {
	el, err := r.el.Timeout(r.timeout).Element(nameLinkSel)
	if err != nil {
		return "", err
	}
	href, err := el.Attribute("href")
	if err != nil {
		return "", err
	}
	if href == nil {
		return "", fmt.Errorf("profile link has no href")
	}
	return *href, nil
}

func (r *cardRow) QuickSendAvailable() bool {
	_, err := r.el.Timeout(2 * time.Second).Element(quickSendSel)
	return err == nil
}

func (r *cardRow) ClickQuickSend() error {
	el, err := r.el.Timeout(r.timeout).Element(quickSendSel)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (r *cardRow) EmploymentText() string {
	el, err := r.el.Timeout(2 * time.Second).Element(employmentSel)
	if err != nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// ResolveCandidate normalizes one row. The identity is the trailing path
// segment of the profile link ("/person/12345"); a missing or non-numeric
// segment yields faults.ErrMalformedIdentity, which skips the row without
// aborting the run.
func ResolveCandidate(row Row) (models.Candidate, error) {
	name, err := row.DisplayName()
	if err != nil {
		return models.Candidate{}, fmt.Errorf("%w: display name: %v", faults.ErrMalformedIdentity, err)
	}
	link, err := row.LinkTarget()
	if err != nil {
		return models.Candidate{}, fmt.Errorf("%w: link target: %v", faults.ErrMalformedIdentity, err)
	}
	uid, err := ParseIdentity(link)
	if err != nil {
		return models.Candidate{}, err
	}
	return models.Candidate{
		UID:        uid,
		Name:       name,
		URL:        link,
		Employment: row.EmploymentText(),
		QuickSend:  row.QuickSendAvailable(),
	}, nil
}

// ParseIdentity extracts the numeric trailing path segment of a profile
// reference.
func ParseIdentity(link string) (int64, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(link), "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return 0, fmt.Errorf("%w: no trailing segment in %q", faults.ErrMalformedIdentity, link)
	}
	uid, err := strconv.ParseInt(trimmed[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric segment in %q", faults.ErrMalformedIdentity, link)
	}
	return uid, nil
}
