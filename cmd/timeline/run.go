package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mikequentel/memerelay/internal/config"
	"github.com/mikequentel/memerelay/internal/journal"
	"github.com/mikequentel/memerelay/internal/twitter"
)

// transport is nil in production; tests point it at a local server.
var transport http.RoundTripper

func run(ctx context.Context, args []string, getenv func(key string) string, stdout io.Writer) error {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file to read; the process environment takes precedence")
	count := flags.Int("count", 20, "number of entries to print")
	showJournal := flags.Bool("journal", false, "print recent relay ticks from JOURNAL_DB instead of the timeline")
	if err := flags.Parse(args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if *count <= 0 {
		return fmt.Errorf("-count must be positive, got %d", *count)
	}

	getenv, err := config.WithDotEnv(*envFile, getenv)
	if err != nil {
		return err
	}
	cfg, err := config.Load(getenv)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *showJournal {
		return printJournal(ctx, cfg.JournalPath, *count, stdout)
	}

	// reading needs real credentials even when the relay runs dry
	cfg.DryRun = false
	if err := cfg.Validate(); err != nil {
		return err
	}

	platform := twitter.NewClient(cfg.Consumer(), &http.Client{Timeout: cfg.HTTPTimeout, Transport: transport})
	tweets, err := platform.ReadTimeline(ctx, cfg.Access(), *count)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, t := range tweets {
		fmt.Fprintf(tw, "%s\t%s\n", t.CreatedAt, oneLine(t.Text))
	}
	return tw.Flush()
}

func printJournal(ctx context.Context, path string, n int, stdout io.Writer) error {
	if path == "" {
		return errors.New("-journal needs " + config.EnvJournalDB)
	}
	j, err := journal.Open(ctx, path)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(ctx, n)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tCATEGORY\tOUTCOME\tMEDIA ID\tTITLE\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), e.Category, e.Outcome, e.MediaID, oneLine(e.Title), oneLine(e.Error))
	}
	return tw.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
