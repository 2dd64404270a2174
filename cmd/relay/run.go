package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikequentel/memerelay/internal/config"
	"github.com/mikequentel/memerelay/internal/feed"
	"github.com/mikequentel/memerelay/internal/journal"
	"github.com/mikequentel/memerelay/internal/logging"
	"github.com/mikequentel/memerelay/internal/publish"
	"github.com/mikequentel/memerelay/internal/scheduler"
	"github.com/mikequentel/memerelay/internal/twitter"
)

// run wires the relay and blocks in the scheduler. It returns nil after a
// signal-driven stop and an error for bad configuration or a fatal tick.
func run(ctx context.Context, args []string, getenv func(key string) string, stdout io.Writer) error {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file to read; the process environment takes precedence")
	feedURL := flags.String("feed-url", feed.DefaultBaseURL, "base URL of the meme feed")
	if err := flags.Parse(args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	getenv, err := config.WithDotEnv(*envFile, getenv)
	if err != nil {
		return err
	}
	cfg, err := config.Load(getenv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Stop between ticks, or abort the in-flight one, on Ctrl+C / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(stdout, cfg.LogLevel)
	logger.Info("memerelay starting", "feed", *feedURL, "http_timeout", cfg.HTTPTimeout, "journal", cfg.JournalPath)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var publisher scheduler.Publisher
	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE ENABLED: memes are fetched but nothing is posted")
		publisher = publish.NewDryRun(logger.With("component", "publish"))
	} else {
		platform := twitter.NewClient(cfg.Consumer(), httpClient)
		publisher = publish.New(platform, cfg.Access(), logger.With("component", "publish"))
	}

	deps := scheduler.Deps{
		Feed:      feed.NewClient(*feedURL, httpClient),
		Publisher: publisher,
		Logger:    logger.With("component", "scheduler"),
	}
	if cfg.JournalPath != "" {
		j, err := journal.Open(ctx, cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		deps.Recorder = j
	}

	if err := scheduler.New(deps).Run(ctx); err != nil {
		return fmt.Errorf("relay stopped: %w", err)
	}
	logger.Info("relay stopped gracefully")
	return nil
}
