// Package auth drives the directory's identity-provider handshake: operator
// takeover, username/password entry, and the human-approved MFA push. It is
// invoked exactly once before traversal begins.
package auth

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"github.com/emeight/alumni-outreach/internal/browser"
	"github.com/emeight/alumni-outreach/internal/config"
	"github.com/emeight/alumni-outreach/internal/logging"
	"github.com/emeight/alumni-outreach/internal/pacing"
)

type Auth struct {
	cfg   *config.Config
	pacer *pacing.Pacer
	log   *logging.Logger
}

func New(cfg *config.Config, pacer *pacing.Pacer) *Auth {
	return &Auth{cfg: cfg, pacer: pacer, log: logging.New(cfg.Logging.Level).With("module", "auth")}
}

// WaitTakeover blocks until the operator has steered the page to the query
// surface. This is the one human-paced pre-auth wait; it is long but still
// bounded.
func (a *Auth) WaitTakeover(p *rod.Page) error {
	prefix := a.cfg.Directory.BaseURL + "query"
	d := time.Duration(a.cfg.Timeouts.TakeoverSec) * time.Second
	a.log.Info("waiting for operator takeover", "url_prefix", prefix, "timeout", d)
	if err := browser.WaitURLPrefix(p, prefix, d); err != nil {
		return fmt.Errorf("takeover wait: %w", err)
	}
	return nil
}

// Login performs the credential entry and MFA approval flow. The MFA wait
// uses its own long timeout because approval happens on the operator's
// device at human speed.
func (a *Auth) Login(p *rod.Page) error {
	username, password := config.Credentials()
	elementWait := time.Duration(a.cfg.Timeouts.ElementSec) * time.Second

	a.log.Info("entering credentials")
	if err := browser.Type(p, "#identifier", username, elementWait); err != nil {
		return browser.ScreenshotOnError(p, "login_identifier_fail", fmt.Errorf("username input: %w", err))
	}
	a.pacer.Sleep()
	if err := browser.Click(p, `button[data-se="save"]`, elementWait); err != nil {
		return browser.ScreenshotOnError(p, "login_next_fail", fmt.Errorf("next button: %w", err))
	}

	if err := browser.Type(p, `input[id="credentials.passcode"]`, password, elementWait); err != nil {
		return browser.ScreenshotOnError(p, "login_passcode_fail", fmt.Errorf("password input: %w", err))
	}
	a.pacer.Sleep()
	if err := browser.Click(p, `button[data-se="save"]`, elementWait); err != nil {
		return browser.ScreenshotOnError(p, "login_continue_fail", fmt.Errorf("continue button: %w", err))
	}

	if err := browser.ClickByText(p, `^Verify$`, elementWait); err != nil {
		return browser.ScreenshotOnError(p, "login_verify_fail", fmt.Errorf("mfa verify button: %w", err))
	}

	a.log.Info("mfa push sent, approve on your device")
	mfaWait := time.Duration(a.cfg.Timeouts.MFASec) * time.Second
	if err := browser.WaitVisible(p, "#dont-trust-browser-button", mfaWait); err != nil {
		return browser.ScreenshotOnError(p, "login_mfa_timeout", fmt.Errorf("mfa approval timed out after %s: %w", mfaWait, err))
	}
	a.log.Info("mfa approved")

	// Decline browser trust on both prompts so no session outlives the run.
	a.pacer.Sleep()
	if err := browser.Click(p, "#dont-trust-browser-button", elementWait); err != nil {
		return browser.ScreenshotOnError(p, "login_trust_fail", fmt.Errorf("dont-trust button: %w", err))
	}
	a.pacer.Sleep()
	if err := browser.Click(p, `button[data-se="do-not-stay-signed-in-btn"]`, elementWait); err != nil {
		return browser.ScreenshotOnError(p, "login_stay_signed_in_fail", fmt.Errorf("do-not-stay-signed-in button: %w", err))
	}

	a.log.Info("directory access granted")
	return nil
}
