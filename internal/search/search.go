// Package search prepares the results surface: keyword query, results per
// page, sort key, and the deceased facet. Each control change may or may not
// reload the page, so URL-change waits tolerate timeouts.
package search

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/emeight/alumni-outreach/internal/browser"
	"github.com/emeight/alumni-outreach/internal/config"
	"github.com/emeight/alumni-outreach/internal/logging"
	"github.com/emeight/alumni-outreach/internal/pacing"
)

type Service struct {
	cfg   *config.Config
	pacer *pacing.Pacer
	log   *logging.Logger
}

func New(cfg *config.Config, pacer *pacing.Pacer) *Service {
	return &Service{cfg: cfg, pacer: pacer, log: logging.New(cfg.Logging.Level).With("module", "search")}
}

// Setup submits the query and organizes the results. Config normalization
// has already reduced per-page and sort to valid values.
func (s *Service) Setup(p *rod.Page) error {
	wait := time.Duration(s.cfg.Timeouts.ElementSec) * time.Second

	s.log.Info("submitting query", "query", s.cfg.Search.Query)
	if err := browser.Type(p, "#searchForText", s.cfg.Search.Query, wait); err != nil {
		return browser.ScreenshotOnError(p, "search_input_fail", fmt.Errorf("search input: %w", err))
	}
	s.pacer.Sleep()
	if err := browser.Submit(p, "#searchForText", wait); err != nil {
		return browser.ScreenshotOnError(p, "search_submit_fail", fmt.Errorf("search submit: %w", err))
	}

	if err := s.selectControl(p, "#limit", strconv.Itoa(s.cfg.Search.PerPage), wait); err != nil {
		return browser.ScreenshotOnError(p, "search_limit_fail", err)
	}
	if err := s.selectControl(p, "#sortBy", s.cfg.Search.SortBy, wait); err != nil {
		return browser.ScreenshotOnError(p, "search_sort_fail", err)
	}
	if !s.cfg.Search.IncludeDeceased {
		if err := s.excludeDeceased(p, wait); err != nil {
			return browser.ScreenshotOnError(p, "search_facet_fail", err)
		}
	}
	s.pacer.Sleep()
	return nil
}

// selectControl picks a value from a <select>, then waits briefly for the
// page to reload. Selecting the already-active value does not reload, so a
// missed URL change is not an error.
func (s *Service) selectControl(p *rod.Page, sel, value string, wait time.Duration) error {
	prev := browser.CurrentURL(p)
	s.pacer.Sleep()
	if err := browser.SelectValue(p, sel, value, wait); err != nil {
		return fmt.Errorf("select %s=%s: %w", sel, value, err)
	}
	if !browser.WaitURLChange(p, prev, wait) {
		s.log.Debug("no reload after select", "control", sel, "value", value)
	}
	return nil
}

// excludeDeceased opens the advanced-options collapser if needed and checks
// the deceased facet. If the facet is already selected the collapser is
// folded back.
func (s *Service) excludeDeceased(p *rod.Page, wait time.Duration) error {
	collapser, err := p.Timeout(wait).Element("a.hu2020-top-extra__collapser")
	if err != nil {
		return fmt.Errorf("advanced options collapser: %w", err)
	}
	expanded, err := collapser.Attribute("aria-expanded")
	if err == nil && expanded != nil && *expanded == "false" {
		if err := collapser.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("open advanced options: %w", err)
		}
		if err := browser.WaitVisible(p, "#facet-deceased", 5*time.Second); err != nil {
			return fmt.Errorf("deceased facet: %w", err)
		}
	}

	checkbox, err := p.Timeout(wait).Element("#facet-deceased")
	if err != nil {
		return fmt.Errorf("deceased facet: %w", err)
	}
	selected, err := checkbox.Property("checked")
	if err != nil {
		return fmt.Errorf("deceased facet state: %w", err)
	}
	if !selected.Bool() {
		prev := browser.CurrentURL(p)
		if err := checkbox.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("toggle deceased facet: %w", err)
		}
		if !browser.WaitURLChange(p, prev, wait) {
			s.log.Debug("no reload after deceased facet toggle")
		}
		return nil
	}

	// Already filtered: fold the advanced options back to keep the results
	// area unobstructed.
	expanded, err = collapser.Attribute("aria-expanded")
	if err == nil && expanded != nil && *expanded == "true" {
		_ = collapser.Click(proto.InputMouseButtonLeft, 1)
	}
	return nil
}
