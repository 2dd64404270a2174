package main

import (
	"bufio"
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

	"github.com/mikequentel/memerelay/internal/config"
	"github.com/mikequentel/memerelay/internal/twitter"
)

// endpoints is swapped by tests.
var endpoints = twitter.DefaultEndpoints()

func run(ctx context.Context, args []string, getenv func(key string) string, stdin io.Reader, stdout io.Writer) error {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file to read; the process environment takes precedence")
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
	if err := cfg.ValidateConsumer(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	platform := twitter.NewClient(cfg.Consumer(), &http.Client{Timeout: cfg.HTTPTimeout}).WithEndpoints(endpoints)

	request, err := platform.RequestToken(ctx)
	if err != nil {
		return fmt.Errorf("request token: %w", err)
	}

	fmt.Fprintf(stdout, "Open this URL, authorize the app, and copy the PIN:\n\n  %s\n\nPIN: ", platform.AuthorizeURL(request))
	pin, err := readLine(stdin)
	if err != nil {
		return err
	}

	access, err := platform.AccessToken(ctx, request, pin)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}

	fmt.Fprintf(stdout, "\n%s=%s\n%s=%s\n", config.EnvAccessKey, access.Key, config.EnvAccessSecret, access.Secret)
	return nil
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read pin: %w", err)
		}
		return "", errors.New("no pin entered")
	}
	pin := strings.TrimSpace(sc.Text())
	if pin == "" {
		return "", errors.New("no pin entered")
	}
	return pin, nil
}
