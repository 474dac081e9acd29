// Package deliver chooses between the two delivery channels for one
// candidate and reports the outcome. The quick channel (a one-click control
// on the result card) is tried first; the profile channel navigates to the
// candidate's detail view and picks an email address. Only terminal faults
// (outbound limit, inoperable mandatory control) surface as errors; every
// other fault degrades the outcome and lets the run continue.
package deliver

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/emeight/alumni-outreach/internal/browser"
	"github.com/emeight/alumni-outreach/internal/directory"
	"github.com/emeight/alumni-outreach/internal/faults"
	"github.com/emeight/alumni-outreach/internal/logging"
	"github.com/emeight/alumni-outreach/internal/models"
	"github.com/emeight/alumni-outreach/internal/pacing"
)

// Message is the personalized content handed to a channel.
type Message struct {
	Subject    string
	Body       string
	CopySender bool
}

const (
	modalSel           = "#aceEmailForm .modal-content"
	subjectSel         = "input#subject"
	bodySel            = "textarea#message"
	copySenderSel      = "#copySender"
	sendBtnSel         = `#aceEmailForm button.btn-ace-primary[type="submit"]`
	closeBtnSel        = `#aceEmailForm button.btn-ace-primary[data-dismiss="modal"]`
	closeXSel          = `#aceEmailForm button.close[data-dismiss="modal"]`
	alertSel           = `#aceEmailForm .alert, #aceEmailForm .alert-danger`
	contactSectionXPth = `//section[@id='profileContact']//section[contains(@class,'profile-subsection')][.//h6[contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ','abcdefghijklmnopqrstuvwxyz'), 'email address')]]`
	preferredAddrSel   = "ul li.address-preferred a"
	firstAddrSel       = "ul li.address-url a"
	resultsSel         = "div.search-results"
)

var limitPattern = regexp.MustCompile(`(?i)limit|too many`)

type Selector struct {
	page    *rod.Page
	timeout time.Duration
	pacer   *pacing.Pacer
	log     *logging.Logger
}

func New(p *rod.Page, timeout time.Duration, pacer *pacing.Pacer, log *logging.Logger) *Selector {
	return &Selector{page: p, timeout: timeout, pacer: pacer, log: log.With("module", "deliver")}
}

// Deliver runs the per-candidate channel state machine. A returned error is
// always terminal for the session; non-terminal faults are absorbed into the
// returned status.
func (s *Selector) Deliver(row directory.Row, cand models.Candidate, msg Message) (models.Status, error) {
	if cand.QuickSend {
		status, err := s.tryQuick(row, msg)
		if err != nil {
			return status, err
		}
		if status == models.StatusSent {
			return status, nil
		}
		s.log.Debug("quick channel failed, falling back to profile", "uid", cand.UID)
	}
	return s.tryProfile(cand, msg)
}

// tryQuick operates the card's one-click control. A non-terminal failure
// returns StatusViewed with a nil error so the caller falls through to the
// profile channel.
func (s *Selector) tryQuick(row directory.Row, msg Message) (models.Status, error) {
	s.pacer.Sleep()
	if err := row.ClickQuickSend(); err != nil {
		s.log.Debug("quick-send control not operable", "err", err)
		return models.StatusViewed, nil
	}
	if err := s.sendFromModal(msg); err != nil {
		if faults.IsFatal(err) {
			return models.StatusViewed, err
		}
		s.log.Warn("quick channel send failed", "err", err)
		return models.StatusViewed, nil
	}
	s.pacer.Sleep()
	return models.StatusSent, nil
}

// tryProfile navigates to the candidate's detail view, locates the email
// addresses section, and sends to the preferred address (or the first one
// listed). Returning to the results page afterward is a mandatory
// post-condition regardless of outcome so the traversal cursor stays valid.
func (s *Selector) tryProfile(cand models.Candidate, msg Message) (status models.Status, err error) {
	profilePath := fmt.Sprintf("/person/%d", cand.UID)
	if err := browser.Click(s.page, fmt.Sprintf(`a[href=%q]`, profilePath), s.timeout); err != nil {
		s.log.Warn("profile link not clickable", "uid", cand.UID, "err", err)
		return models.StatusViewed, nil
	}
	if err := browser.WaitURLContains(s.page, profilePath, s.timeout); err != nil {
		s.log.Warn("profile navigation did not complete", "uid", cand.UID, "err", err)
	}

	defer func() {
		if backErr := s.returnToResults(); backErr != nil && err == nil {
			err = backErr
			status = models.StatusViewed
		}
	}()

	s.pacer.Sleep()

	section, findErr := s.page.Timeout(s.timeout).ElementX(contactSectionXPth)
	if findErr != nil {
		// No contact section on this profile. Recorded viewed so a later
		// run can retry once an address appears.
		s.log.Info("no email addresses section", "uid", cand.UID)
		return models.StatusViewed, nil
	}

	addr, findErr := section.Timeout(s.timeout).Element(preferredAddrSel)
	if findErr != nil {
		addr, findErr = section.Timeout(s.timeout).Element(firstAddrSel)
	}
	if findErr != nil {
		s.log.Info("no usable address", "uid", cand.UID, "err", fmt.Errorf("%w: %v", faults.ErrChannelUnavailable, findErr))
		return models.StatusViewed, nil
	}

	s.pacer.Sleep()
	if clickErr := addr.Click(proto.InputMouseButtonLeft, 1); clickErr != nil {
		s.log.Warn("address link not clickable", "uid", cand.UID, "err", clickErr)
		return models.StatusViewed, nil
	}

	if sendErr := s.sendFromModal(msg); sendErr != nil {
		if faults.IsFatal(sendErr) {
			return models.StatusViewed, sendErr
		}
		s.log.Warn("profile channel send failed", "uid", cand.UID, "err", sendErr)
		return models.StatusViewed, nil
	}
	s.pacer.Sleep()
	return models.StatusSent, nil
}

// sendFromModal fills and submits the email modal, then closes it. Closing
// is mandatory: an unclosable modal blocks every later candidate, so it
// terminates the session.
func (s *Selector) sendFromModal(msg Message) error {
	if err := browser.WaitVisible(s.page, modalSel, s.timeout); err != nil {
		return fmt.Errorf("%w: email modal never appeared: %v", faults.ErrTransientUI, err)
	}

	// Any exit past this point must try to close the modal: an overlay left
	// up occludes the result cards for every later candidate.
	if err := browser.Type(s.page, subjectSel, msg.Subject, s.timeout); err != nil {
		_ = s.closeModal()
		return fmt.Errorf("%w: subject input: %v", faults.ErrTransientUI, err)
	}
	if err := browser.Type(s.page, bodySel, msg.Body, s.timeout); err != nil {
		_ = s.closeModal()
		return fmt.Errorf("%w: message input: %v", faults.ErrTransientUI, err)
	}
	s.syncCopySender(msg.CopySender)

	pacing.Think(1400*time.Millisecond, 600*time.Millisecond)
	if err := browser.Click(s.page, sendBtnSel, s.timeout); err != nil {
		_ = s.closeModal()
		return fmt.Errorf("%w: send button: %v", faults.ErrTransientUI, err)
	}

	if err := s.checkLimitSignal(); err != nil {
		// Close the modal before propagating so shutdown is orderly; a
		// close failure is secondary to the limit signal.
		_ = s.closeModal()
		return err
	}

	return s.closeModal()
}

// syncCopySender aligns the copy-to-sender checkbox with the requested
// setting. The checkbox is not always rendered; its absence is non-fatal.
func (s *Selector) syncCopySender(want bool) {
	el, err := s.page.Timeout(3 * time.Second).Element(copySenderSel)
	if err != nil {
		return
	}
	checked, err := el.Property("checked")
	if err != nil {
		return
	}
	if checked.Bool() != want {
		_ = el.Click(proto.InputMouseButtonLeft, 1)
	}
}

// checkLimitSignal probes the modal for the directory's outbound-cap alert.
func (s *Selector) checkLimitSignal() error {
	el, err := s.page.Timeout(2 * time.Second).Element(alertSel)
	if err != nil {
		return nil
	}
	text, err := el.Text()
	if err != nil {
		return nil
	}
	if limitPattern.MatchString(text) {
		return fmt.Errorf("%w: %s", faults.ErrOutboundLimit, strings.TrimSpace(text))
	}
	return nil
}

// closeModal dismisses the email modal via its footer button, falling back
// to the top-right x, and confirms it actually left the screen.
func (s *Selector) closeModal() error {
	if err := browser.Click(s.page, closeBtnSel, s.timeout); err != nil {
		if err := browser.Click(s.page, closeXSel, s.timeout); err != nil {
			return fmt.Errorf("%w: unable to close the email modal: %v", faults.ErrFatalControl, err)
		}
	}
	el, err := s.page.Timeout(s.timeout).Element(modalSel)
	if err == nil {
		if err := el.Timeout(s.timeout).WaitInvisible(); err != nil {
			return fmt.Errorf("%w: email modal did not close: %v", faults.ErrFatalControl, err)
		}
	}
	return nil
}

// returnToResults navigates back to the listing view and waits for the
// results container. Failure here invalidates the traversal cursor.
func (s *Selector) returnToResults() error {
	if err := s.page.NavigateBack(); err != nil {
		return fmt.Errorf("%w: back navigation: %v", faults.ErrFatalControl, err)
	}
	if err := browser.WaitVisible(s.page, resultsSel, s.timeout); err != nil {
		return fmt.Errorf("%w: results view not restored: %v", faults.ErrFatalControl, err)
	}
	return nil
}
