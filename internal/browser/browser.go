// Package browser wraps go-rod behind the small page-driver surface the
// engine consumes: launch, page creation, and bounded wait/click/type/select
// helpers. Every wait carries an explicit timeout; nothing blocks forever.
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/emeight/alumni-outreach/internal/config"
	"github.com/emeight/alumni-outreach/internal/logging"
)

type Browser struct {
	Rod *rod.Browser
	Cfg *config.Config
	log *logging.Logger
}

func New(ctx context.Context, cfg *config.Config) (*Browser, error) {
	log := logging.New(cfg.Logging.Level).With("module", "browser")
	// Disable leakless to avoid AV false positives on Windows; headful so
	// the operator can complete the takeover and MFA steps.
	l := launcher.New().Leakless(false).Headless(false)
	url, err := l.Launch()
	if err != nil {
		return nil, err
	}
	rb := rod.New().ControlURL(url)
	if err := rb.Connect(); err != nil {
		return nil, err
	}
	log.Info("browser launched", "control_url", url)
	return &Browser{Rod: rb, Cfg: cfg, log: log}, nil
}

func (b *Browser) NewPage(ctx context.Context) (*rod.Page, error) {
	p, err := b.Rod.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	// Generous page-wide ceiling; individual waits use shorter timeouts.
	return p.Context(ctx).Timeout(10 * time.Minute), nil
}

func (b *Browser) Close() {
	if b.Rod != nil {
		_ = b.Rod.Close()
	}
}

// WaitVisible blocks until sel is visible or the timeout elapses.
func WaitVisible(p *rod.Page, sel string, d time.Duration) error {
	el, err := p.Timeout(d).Element(sel)
	if err != nil {
		return err
	}
	return el.Timeout(d).WaitVisible()
}

// Click waits for sel to be visible, then clicks once.
func Click(p *rod.Page, sel string, d time.Duration) error {
	el, err := p.Timeout(d).Element(sel)
	if err != nil {
		return err
	}
	if err := el.Timeout(d).WaitVisible(); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// ClickByText clicks the first button (falling back to any element) whose
// text matches the regexp pattern.
func ClickByText(p *rod.Page, pattern string, d time.Duration) error {
	el, err := p.Timeout(d).ElementR("button", pattern)
	if err != nil {
		el, err = p.Timeout(d).ElementR("*", pattern)
	}
	if err != nil {
		return err
	}
	if err := el.Timeout(d).WaitVisible(); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Type clears sel and types text into it.
func Type(p *rod.Page, sel, text string, d time.Duration) error {
	el, err := p.Timeout(d).Element(sel)
	if err != nil {
		return err
	}
	if err := el.Timeout(d).WaitVisible(); err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Type(input.Backspace)
	}
	return el.Input(text)
}

// Submit presses Enter inside sel.
func Submit(p *rod.Page, sel string, d time.Duration) error {
	el, err := p.Timeout(d).Element(sel)
	if err != nil {
		return err
	}
	return el.Type(input.Enter)
}

// SelectValue picks the option with the given value attribute from a
// <select> element.
func SelectValue(p *rod.Page, sel, value string, d time.Duration) error {
	el, err := p.Timeout(d).Element(sel)
	if err != nil {
		return err
	}
	if err := el.Timeout(d).WaitVisible(); err != nil {
		return err
	}
	return el.Select([]string{fmt.Sprintf(`[value=%q]`, value)}, true, rod.SelectorTypeCSSSector)
}

// Has reports whether sel exists within a short probe window.
func Has(p *rod.Page, sel string) bool {
	_, err := p.Timeout(2 * time.Second).Element(sel)
	return err == nil
}

// CurrentURL reads the page's location, empty on failure.
func CurrentURL(p *rod.Page) string {
	info, err := p.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// WaitURLPrefix polls until the page's location starts with prefix.
func WaitURLPrefix(p *rod.Page, prefix string, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if strings.HasPrefix(CurrentURL(p), prefix) {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("url did not reach prefix %q within %s", prefix, d)
}

// WaitURLContains polls until the page's location contains substr.
func WaitURLContains(p *rod.Page, substr string, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if strings.Contains(CurrentURL(p), substr) {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("url did not contain %q within %s", substr, d)
}

// WaitURLChange polls until the page's location differs from prev. A timeout
// is not an error for callers that tolerate no-reload control changes; they
// check the boolean.
func WaitURLChange(p *rod.Page, prev string, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if CurrentURL(p) != prev {
			return true
		}
		time.Sleep(250 * time.Millisecond)
	}
	return false
}

// ScreenshotOnError snapshots the page next to err for debugging and passes
// err through unchanged.
func ScreenshotOnError(p *rod.Page, prefix string, err error) error {
	if p == nil || err == nil {
		return err
	}
	path := fmt.Sprintf("%s-%d.png", prefix, time.Now().Unix())
	bts, _ := p.Screenshot(true, &proto.PageCaptureScreenshot{})
	_ = os.WriteFile(path, bts, 0o644)
	return err
}
