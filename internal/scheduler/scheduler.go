// Package scheduler runs the fetch → download → publish cycle forever at a
// fixed wall-clock cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mikequentel/memerelay/internal/errs"
	"github.com/mikequentel/memerelay/internal/journal"
	"github.com/mikequentel/memerelay/internal/model"
	"github.com/mikequentel/memerelay/internal/publish"
)

// DefaultInterval is the target time between tick starts.
const DefaultInterval = 30 * time.Minute

// Categories are the feed categories picked from each tick.
var Categories = []string{
	"programming_memes",
	"anime_memes",
	"linux_memes",
	"programminghumor",
}

// Feed fetches items and their media.
type Feed interface {
	FetchItem(ctx context.Context, category string) (model.Meme, error)
	FetchMedia(ctx context.Context, rawURL string) ([]byte, error)
}

// Publisher posts one item.
type Publisher interface {
	Publish(ctx context.Context, text string, media []byte) (publish.Result, error)
}

// Recorder keeps a record of finished ticks.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.Intn(n) }

// Outcome is how a tick ended.
type Outcome string

const (
	Published     Outcome = "published"
	PublishFailed Outcome = "publish_failed"
	Unauthorized  Outcome = "unauthorized"
	DecodeFailed  Outcome = "decode_failed"
	MediaFailed   Outcome = "media_failed"
	Fatal         Outcome = "fatal"
	Canceled      Outcome = "canceled"
)

// Deps wires the scheduler. Feed and Publisher are required; the rest have
// defaults. Interval, Now and Sleep exist for tests.
type Deps struct {
	Feed       Feed
	Publisher  Publisher
	Recorder   Recorder
	Picker     Picker
	Logger     *slog.Logger
	Categories []string

	Interval time.Duration
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Scheduler is the relay's single driver; ticks never overlap.
type Scheduler struct {
	feed       Feed
	publisher  Publisher
	recorder   Recorder
	picker     Picker
	logger     *slog.Logger
	categories []string
	interval   time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// New builds a Scheduler from deps.
func New(deps Deps) *Scheduler {
	s := &Scheduler{
		feed:       deps.Feed,
		publisher:  deps.Publisher,
		recorder:   deps.Recorder,
		picker:     deps.Picker,
		logger:     deps.Logger,
		categories: deps.Categories,
		interval:   deps.Interval,
		now:        deps.Now,
		sleep:      deps.Sleep,
	}
	if s.picker == nil {
		s.picker = globalRand{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if len(s.categories) == 0 {
		s.categories = Categories
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	return s
}

// Run ticks until ctx is canceled (returns nil) or a tick hits a fatal error
// (returns it).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "categories", s.categories)
	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}

		start := s.now()
		if _, err := s.Tick(ctx); err != nil {
			return err
		}

		wait := Remaining(s.interval, s.now().Sub(start))
		s.logger.Info("sleeping until next tick", "for", wait)
		if err := s.sleep(ctx, wait); err != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

// Remaining is how long to sleep after a tick that took elapsed:
// max(interval - elapsed, 0).
func Remaining(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// Tick runs one fetch-publish cycle. The error is non-nil only for fatal
// outcomes; skipped ticks and failed publishes are logged and recorded.
func (s *Scheduler) Tick(ctx context.Context) (Outcome, error) {
	entry := journal.Entry{StartedAt: s.now()}
	entry.Category = s.categories[s.picker.IntN(len(s.categories))]
	logger := s.logger.With("category", entry.Category)
	logger.Info("tick")

	outcome, err := s.tick(ctx, logger, &entry)
	entry.Outcome = string(outcome)
	if err != nil {
		entry.Error = err.Error()
	}
	s.record(ctx, entry)

	if outcome == Fatal {
		return outcome, err
	}
	return outcome, nil
}

func (s *Scheduler) tick(ctx context.Context, logger *slog.Logger, entry *journal.Entry) (Outcome, error) {
	meme, err := s.feed.FetchItem(ctx, entry.Category)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return Canceled, err
	case errs.IsFatal(err):
		logger.Error("unexpected feed failure", tint.Err(err))
		return Fatal, fmt.Errorf("fetch %s: %w", entry.Category, err)
	case errs.IsUnauthorized(err):
		logger.Warn("feed unauthorized, skipping tick", tint.Err(err))
		return Unauthorized, err
	default:
		logger.Warn("feed response did not match, skipping tick", tint.Err(err))
		return DecodeFailed, err
	}
	entry.Title = meme.Title
	entry.MediaURL = meme.URL
	logger.Info("fetched meme", "title", meme.Title, "url", meme.URL, "subreddit", meme.Subreddit)

	media, err := s.feed.FetchMedia(ctx, meme.URL)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return Canceled, err
	case mediaSkippable(err):
		logger.Warn("media unavailable, skipping tick", tint.Err(err))
		return MediaFailed, err
	default:
		logger.Error("media download failed", tint.Err(err))
		return Fatal, fmt.Errorf("download %s: %w", meme.URL, err)
	}

	res, err := s.publishIsolated(ctx, publish.FormatStatus(meme.Title), media)
	entry.MediaID = res.Media.MediaIDString
	if err != nil {
		logger.Error("publish failed", tint.Err(err))
		return PublishFailed, err
	}
	logger.Info("published", "media_id", res.Media.MediaIDString, "status", res.Text)
	return Published, nil
}

// A media origin that answers with an error status or something that is not
// media costs one tick; a transport failure does not get that leniency.
func mediaSkippable(err error) bool {
	var pe *errs.ProtocolError
	return errors.As(err, &pe) || errs.IsDecode(err)
}

type publishResult struct {
	res publish.Result
	err error
}

// publishIsolated runs the publish on its own goroutine and waits for it. A
// panic there comes back as an error instead of killing the loop.
func (s *Scheduler) publishIsolated(ctx context.Context, text string, media []byte) (publish.Result, error) {
	done := make(chan publishResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- publishResult{err: fmt.Errorf("publish panicked: %v", r)}
			}
		}()
		res, err := s.publisher.Publish(ctx, text, media)
		done <- publishResult{res: res, err: err}
	}()
	out := <-done
	return out.res, out.err
}

func (s *Scheduler) record(ctx context.Context, e journal.Entry) {
	if s.recorder == nil {
		return
	}
	// the tick is over even if ctx is; keep the row
	if err := s.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("journal write failed", tint.Err(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
