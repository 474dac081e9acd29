package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emeight/alumni-outreach/internal/auth"
	"github.com/emeight/alumni-outreach/internal/browser"
	"github.com/emeight/alumni-outreach/internal/config"
	"github.com/emeight/alumni-outreach/internal/deliver"
	"github.com/emeight/alumni-outreach/internal/directory"
	"github.com/emeight/alumni-outreach/internal/faults"
	"github.com/emeight/alumni-outreach/internal/logging"
	"github.com/emeight/alumni-outreach/internal/models"
	"github.com/emeight/alumni-outreach/internal/pacing"
	"github.com/emeight/alumni-outreach/internal/records"
	"github.com/emeight/alumni-outreach/internal/search"
	"github.com/emeight/alumni-outreach/internal/session"
)

func main() {
	ctx := context.Background()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `alumbot - alumni directory outreach CLI

Usage:
  alumbot [--config config.yaml] <command> [options]

Commands:
  run                       Run an outreach session against the directory
  merge --dir D --out F     Combine record .json files under D into F

Examples:
  alumbot run
  alumbot merge --dir data/archive --out data/records.json
`)
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging.Level)

	cmd := flag.Arg(0)
	switch cmd {
	case "run":
		err = runOutreach(ctx, cfg, log)
	case "merge":
		err = runMerge(cfg, log)
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		log.Error("command failed", "cmd", cmd, "err", err)
		os.Exit(1)
	}
}

func runOutreach(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	in := bufio.NewReader(os.Stdin)
	cfg.Outreach.MaxEmails = promptBudget(in)
	cfg.Outreach.JitterFactor = promptJitter(in)

	store, err := records.Load(session.RecordsPath(cfg))
	if err != nil {
		// Fail-closed policy: an unreadable history yields a fresh store.
		log.Warn("record store unreadable, starting empty", "err", err)
	}
	log.Info("records loaded", "identities", store.Len())

	pacer := pacing.New(time.Duration(cfg.Outreach.MinSleepMs)*time.Millisecond, cfg.Outreach.JitterFactor)
	elementWait := time.Duration(cfg.Timeouts.ElementSec) * time.Second

	br, err := browser.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer br.Close()

	page, err := br.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.Navigate(cfg.Directory.BaseURL); err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	fmt.Printf("Successfully accessed %q.\n", cfg.Directory.BaseURL)
	fmt.Printf("Please begin your query. This program takes over once the url starts with %q.\n",
		cfg.Directory.BaseURL+"query")

	au := auth.New(cfg, pacer)
	if err := au.WaitTakeover(page); err != nil {
		return err
	}
	if err := au.Login(page); err != nil {
		return err
	}

	if err := search.New(cfg, pacer).Setup(page); err != nil {
		return fmt.Errorf("search setup: %w", err)
	}

	trav := directory.NewTraversal(page, elementWait, pacer, log)
	sel := deliver.New(page, elementWait, pacer, log)
	sess := session.New(cfg, store, trav, sel)
	sess.OnResult(func(rec models.CandidateRecord) { printRecordBox(os.Stdout, rec) })

	summary, runErr := sess.Run(ctx)
	printCounts(summary)

	// The outbound-limit signal ends the run early but still reaches the
	// finalize step, so on its own it is a normal completion. A persistence
	// fault from finalize rides along joined and keeps the exit nonzero.
	if runErr == nil {
		return nil
	}
	if errors.Is(runErr, faults.ErrOutboundLimit) {
		fmt.Println("Stopped early: the directory's outbound limit was reached.")
		if !errors.Is(runErr, faults.ErrPersistence) {
			return nil
		}
	}
	return runErr
}

func runMerge(cfg *config.Config, log *logging.Logger) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	var dir, out string
	fs.StringVar(&dir, "dir", "", "Directory holding record .json files to combine")
	fs.StringVar(&out, "out", session.RecordsPath(cfg), "Output path for the combined records")
	if err := fs.Parse(flag.Args()[1:]); err != nil {
		return err
	}
	if dir == "" {
		return errors.New("merge requires --dir")
	}
	total, skipped, err := records.MergeDir(dir, out)
	if err != nil {
		return err
	}
	for _, p := range skipped {
		log.Warn("skipped unreadable file", "path", p)
	}
	fmt.Printf("Combined %d records into %s.\n", total, out)
	return nil
}

// promptBudget asks for the send budget with a single retry, then falls
// back to the documented default. Out-of-range answers are clamped with a
// printed explanation.
func promptBudget(in *bufio.Reader) int {
	n, ok := readInt(in, "Maximum emails to send (0 to 100): ")
	if !ok {
		n, ok = readInt(in, "Try again (0 to 100): ")
	}
	if !ok {
		fmt.Printf("Defaulting maximum emails to %d.\n", config.DefaultBudget)
		return config.DefaultBudget
	}
	clamped := config.ClampBudget(n)
	switch {
	case clamped == 0:
		fmt.Println("No emails will be sent.")
	case n > config.MaxBudget:
		fmt.Printf("Number provided was greater than %d, defaulting to %d (maximum).\n", config.MaxBudget, config.MaxBudget)
	}
	return clamped
}

// promptJitter asks for the jitter factor with a single retry. Negative
// values are folded to their absolute value.
func promptJitter(in *bufio.Reader) float64 {
	f, ok := readFloat(in, "Jitter (float >= 0): ")
	if !ok {
		f, ok = readFloat(in, "Try again (float >= 0): ")
	}
	if !ok {
		fmt.Printf("Defaulting jitter factor to %g.\n", config.DefaultJitter)
		return config.DefaultJitter
	}
	if f < 0 {
		fmt.Printf("Negatives are not allowed, assuming a jitter factor of %g.\n", -f)
	}
	return config.ClampJitter(f)
}

func readInt(in *bufio.Reader, prompt string) (int, bool) {
	fmt.Print(prompt)
	line, err := in.ReadString('\n')
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, false
	}
	return n, true
}

func readFloat(in *bufio.Reader, prompt string) (float64, bool) {
	fmt.Print(prompt)
	line, err := in.ReadString('\n')
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
