// Package publish turns a title and media bytes into one status post:
// upload the media, then post the status that references it.
package publish

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/mikequentel/memerelay/internal/model"
	"github.com/mikequentel/memerelay/internal/oauth"
)

// Platform is the subset of the platform bindings publishing needs.
type Platform interface {
	UploadMedia(ctx context.Context, access oauth.Credential, base64Media string) (model.Media, error)
	PostStatus(ctx context.Context, access oauth.Credential, text, mediaID string) error
}

// Result describes a finished publish.
type Result struct {
	Media model.Media
	Text  string
}

// Publisher posts on behalf of one access credential.
type Publisher struct {
	platform Platform
	access   oauth.Credential
	logger   *slog.Logger
}

// New returns a Publisher. The access credential is read-only for its lifetime.
func New(platform Platform, access oauth.Credential, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{platform: platform, access: access, logger: logger}
}

// Publish uploads media exactly once and, only if that succeeded, posts text
// with the returned media id. Nothing is retried here.
func (p *Publisher) Publish(ctx context.Context, text string, media []byte) (Result, error) {
	encoded := base64.StdEncoding.EncodeToString(media)

	handle, err := p.platform.UploadMedia(ctx, p.access, encoded)
	if err != nil {
		return Result{}, fmt.Errorf("publish: %w", err)
	}
	p.logger.Debug("media uploaded", "media_id", handle.MediaIDString, "bytes", len(media))

	if err := p.platform.PostStatus(ctx, p.access, text, handle.MediaIDString); err != nil {
		return Result{Media: handle}, fmt.Errorf("publish: %w", err)
	}
	return Result{Media: handle, Text: text}, nil
}

// DryRun logs what would be posted and touches no platform endpoint.
type DryRun struct {
	logger *slog.Logger
}

// NewDryRun returns a DryRun publisher.
func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{logger: logger}
}

func (d *DryRun) Publish(_ context.Context, text string, media []byte) (Result, error) {
	d.logger.Info("DRY RUN: would post", "status", text, "media_bytes", len(media))
	return Result{Text: text}, nil
}
