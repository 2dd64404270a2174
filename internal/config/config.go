// Package config reads the relay's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"github.com/mikequentel/memerelay/internal/errs"
	"github.com/mikequentel/memerelay/internal/oauth"
)

const (
	EnvConsumerKey    = "CONSUMER_KEY"
	EnvConsumerSecret = "CONSUMER_SECRET"
	EnvAccessKey      = "ACCESS_KEY"
	EnvAccessSecret   = "ACCESS_SECRET"
	EnvDryRun         = "DRY_RUN"
	EnvJournalDB      = "JOURNAL_DB"
	EnvHTTPTimeout    = "HTTP_TIMEOUT"
	EnvLogLevel       = "LOG_LEVEL"

	DefaultHTTPTimeout = 60 * time.Second
)

// Config holds everything the commands read from the environment.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessKey      string
	AccessSecret   string

	// DryRun skips every platform call; credentials become optional.
	DryRun bool
	// JournalPath is the sqlite tick journal. Empty disables it.
	JournalPath string
	HTTPTimeout time.Duration
	LogLevel    string
}

// Load reads the settings through getenv. Only HTTP_TIMEOUT can fail to parse;
// missing credentials are reported by Validate.
func Load(getenv func(string) string) (Config, error) {
	cfg := Config{
		ConsumerKey:    getenv(EnvConsumerKey),
		ConsumerSecret: getenv(EnvConsumerSecret),
		AccessKey:      getenv(EnvAccessKey),
		AccessSecret:   getenv(EnvAccessSecret),
		DryRun:         getenv(EnvDryRun) == "1",
		JournalPath:    getenv(EnvJournalDB),
		HTTPTimeout:    DefaultHTTPTimeout,
		LogLevel:       envOr(getenv, EnvLogLevel, "info"),
	}
	if v := getenv(EnvHTTPTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvHTTPTimeout, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %s", EnvHTTPTimeout, v)
		}
		cfg.HTTPTimeout = d
	}
	return cfg, nil
}

// Validate requires all four credentials unless DryRun is set.
func (c Config) Validate() error {
	if c.DryRun {
		return nil
	}
	return missing(
		EnvConsumerKey, c.ConsumerKey,
		EnvConsumerSecret, c.ConsumerSecret,
		EnvAccessKey, c.AccessKey,
		EnvAccessSecret, c.AccessSecret,
	)
}

// ValidateConsumer requires only the consumer pair, for the PIN handshake.
func (c Config) ValidateConsumer() error {
	return missing(
		EnvConsumerKey, c.ConsumerKey,
		EnvConsumerSecret, c.ConsumerSecret,
	)
}

func (c Config) Consumer() oauth.Credential {
	return oauth.Credential{Key: c.ConsumerKey, Secret: c.ConsumerSecret}
}

func (c Config) Access() oauth.Credential {
	return oauth.Credential{Key: c.AccessKey, Secret: c.AccessSecret}
}

// missing takes name/value pairs and lists the names with empty values.
func missing(pairs ...string) error {
	var names []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			names = append(names, pairs[i])
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &errs.ConfigError{Missing: names}
}

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// WithDotEnv returns a getenv that falls back to the values in the dotenv file
// at path. The process environment wins. A missing file is not an error.
func WithDotEnv(path string, getenv func(string) string) (func(string) string, error) {
	if path == "" {
		return getenv, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return getenv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return values[key]
	}, nil
}
