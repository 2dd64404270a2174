package scheduler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mikequentel/memerelay/internal/errs"
	"github.com/mikequentel/memerelay/internal/feed"
	"github.com/mikequentel/memerelay/internal/journal"
	"github.com/mikequentel/memerelay/internal/model"
	"github.com/mikequentel/memerelay/internal/oauth"
	"github.com/mikequentel/memerelay/internal/publish"
	"github.com/mikequentel/memerelay/internal/twitter"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeFeed struct {
	meme     model.Meme
	itemErr  error
	media    []byte
	mediaErr error
	onFetch  func()

	categories []string
	mediaURLs  []string
}

func (f *fakeFeed) FetchItem(_ context.Context, category string) (model.Meme, error) {
	f.categories = append(f.categories, category)
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.meme, f.itemErr
}

func (f *fakeFeed) FetchMedia(_ context.Context, rawURL string) ([]byte, error) {
	f.mediaURLs = append(f.mediaURLs, rawURL)
	return f.media, f.mediaErr
}

type fakePublisher struct {
	mu    sync.Mutex
	err   error
	panic any
	calls []string
}

func (p *fakePublisher) Publish(_ context.Context, text string, media []byte) (publish.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, text)
	p.mu.Unlock()
	if p.panic != nil {
		panic(p.panic)
	}
	if p.err != nil {
		return publish.Result{}, p.err
	}
	return publish.Result{Media: model.Media{MediaIDString: "42"}, Text: text}, nil
}

type memRecorder struct {
	entries []journal.Entry
	err     error
}

func (r *memRecorder) Record(_ context.Context, e journal.Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

type fixedPicker int

func (p fixedPicker) IntN(int) int { return int(p) }

func okFeed() *fakeFeed {
	return &fakeFeed{
		meme:  model.Meme{Title: "t", URL: "http://media.example/img.png", Subreddit: "s"},
		media: []byte{0x89, 0x50, 0x4E, 0x47},
	}
}

// ===================== Remaining =====================

func TestRemaining(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    time.Duration
	}{
		{"instant", 0, 30 * time.Minute},
		{"part of interval", 10 * time.Minute, 20 * time.Minute},
		{"exactly interval", 30 * time.Minute, 0},
		{"overrun", 40 * time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(DefaultInterval, tt.elapsed); got != tt.want {
				t.Errorf("Remaining(%v) = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}
}

// ===================== Tick =====================

func TestTick_Published(t *testing.T) {
	f := okFeed()
	p := &fakePublisher{}
	rec := &memRecorder{}
	s := New(Deps{Feed: f, Publisher: p, Recorder: rec, Picker: fixedPicker(2), Logger: quiet})

	outcome, err := s.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != Published {
		t.Errorf("outcome = %s, want %s", outcome, Published)
	}
	if len(f.categories) != 1 || f.categories[0] != "linux_memes" {
		t.Errorf("categories requested = %v", f.categories)
	}
	if len(f.mediaURLs) != 1 || f.mediaURLs[0] != "http://media.example/img.png" {
		t.Errorf("media urls = %v", f.mediaURLs)
	}
	if len(p.calls) != 1 || p.calls[0] != "t" {
		t.Errorf("publish calls = %v", p.calls)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Outcome != "published" || e.MediaID != "42" || e.Category != "linux_memes" || e.Title != "t" {
		t.Errorf("entry = %+v", e)
	}
}

func TestTick_Classification(t *testing.T) {
	tests := []struct {
		name        string
		itemErr     error
		mediaErr    error
		wantOutcome Outcome
		wantFatal   bool
		wantMedia   bool
	}{
		{
			name:        "feed unauthorized skips",
			itemErr:     &errs.ProtocolError{Op: "fetch", StatusCode: 401},
			wantOutcome: Unauthorized,
		},
		{
			name:        "feed decode skips",
			itemErr:     &errs.DecodeError{Op: "fetch", Err: errors.New("bad json")},
			wantOutcome: DecodeFailed,
		},
		{
			name:        "feed unexpected status is fatal",
			itemErr:     &errs.ProtocolError{Op: "fetch", StatusCode: 500},
			wantOutcome: Fatal,
			wantFatal:   true,
		},
		{
			name:        "feed transport is fatal",
			itemErr:     &errs.TransportError{Op: "fetch", Err: errors.New("connection refused")},
			wantOutcome: Fatal,
			wantFatal:   true,
		},
		{
			name:        "media status skips",
			mediaErr:    &errs.ProtocolError{Op: "media", StatusCode: 404},
			wantOutcome: MediaFailed,
			wantMedia:   true,
		},
		{
			name:        "media decode skips",
			mediaErr:    &errs.DecodeError{Op: "media", Err: errors.New("no image")},
			wantOutcome: MediaFailed,
			wantMedia:   true,
		},
		{
			name:        "media transport is fatal",
			mediaErr:    &errs.TransportError{Op: "media", Err: errors.New("reset")},
			wantOutcome: Fatal,
			wantFatal:   true,
			wantMedia:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := okFeed()
			f.itemErr = tt.itemErr
			f.mediaErr = tt.mediaErr
			p := &fakePublisher{}
			rec := &memRecorder{}
			s := New(Deps{Feed: f, Publisher: p, Recorder: rec, Logger: quiet})

			outcome, err := s.Tick(context.Background())
			if outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", outcome, tt.wantOutcome)
			}
			if tt.wantFatal != (err != nil) {
				t.Errorf("err = %v, fatal expected: %v", err, tt.wantFatal)
			}
			if got := len(f.mediaURLs) > 0; got != tt.wantMedia {
				t.Errorf("media fetched = %v, want %v", got, tt.wantMedia)
			}
			if len(p.calls) != 0 {
				t.Errorf("nothing may be published, got %v", p.calls)
			}
			if len(rec.entries) != 1 || rec.entries[0].Outcome != string(tt.wantOutcome) || rec.entries[0].Error == "" {
				t.Errorf("entries = %+v", rec.entries)
			}
		})
	}
}

func TestTick_FatalWrapsCause(t *testing.T) {
	f := okFeed()
	f.itemErr = &errs.ProtocolError{Op: "fetch", StatusCode: 503}
	s := New(Deps{Feed: f, Publisher: &fakePublisher{}, Picker: fixedPicker(0), Logger: quiet})

	_, err := s.Tick(context.Background())
	var pe *errs.ProtocolError
	if !errors.As(err, &pe) || pe.StatusCode != 503 {
		t.Fatalf("expected wrapped ProtocolError, got %v", err)
	}
	if !strings.Contains(err.Error(), "programming_memes") {
		t.Errorf("error should name the category: %v", err)
	}
}

func TestTick_PublishFailureIsNotFatal(t *testing.T) {
	p := &fakePublisher{err: &errs.ProtocolError{Op: "post", StatusCode: 403, Body: []byte("duplicate")}}
	rec := &memRecorder{}
	s := New(Deps{Feed: okFeed(), Publisher: p, Recorder: rec, Logger: quiet})

	outcome, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("publish failure must not be fatal: %v", err)
	}
	if outcome != PublishFailed {
		t.Errorf("outcome = %s", outcome)
	}
	if rec.entries[0].Outcome != "publish_failed" {
		t.Errorf("entry = %+v", rec.entries[0])
	}
}

func TestTick_PublishPanicIsIsolated(t *testing.T) {
	p := &fakePublisher{panic: "boom"}
	rec := &memRecorder{}
	s := New(Deps{Feed: okFeed(), Publisher: p, Recorder: rec, Logger: quiet})

	outcome, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("a panicking publish must not escape the tick: %v", err)
	}
	if outcome != PublishFailed {
		t.Errorf("outcome = %s", outcome)
	}
	if !strings.Contains(rec.entries[0].Error, "boom") {
		t.Errorf("recorded error = %q", rec.entries[0].Error)
	}
}

func TestTick_RecorderFailureIsIgnored(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	s := New(Deps{Feed: okFeed(), Publisher: &fakePublisher{}, Recorder: rec, Logger: quiet})

	if outcome, err := s.Tick(context.Background()); err != nil || outcome != Published {
		t.Errorf("Tick = %s, %v", outcome, err)
	}
}

func TestTick_TruncatesLongTitle(t *testing.T) {
	f := okFeed()
	f.meme.Title = strings.Repeat("a ", 300)
	p := &fakePublisher{}
	s := New(Deps{Feed: f, Publisher: p, Logger: quiet})

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len([]rune(p.calls[0])); n > 280 {
		t.Errorf("status is %d runes", n)
	}
}

// ===================== Run =====================

func TestRun_KeepsCadence(t *testing.T) {
	tests := []struct {
		name      string
		work      time.Duration
		wantSleep time.Duration
	}{
		{"fast tick", 10 * time.Minute, 20 * time.Minute},
		{"overrun", 40 * time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			f := okFeed()
			var starts []time.Time
			f.onFetch = func() {
				starts = append(starts, clock.Now())
				clock.Advance(tt.work)
			}

			var sleeps []time.Duration
			sleep := func(ctx context.Context, d time.Duration) error {
				sleeps = append(sleeps, d)
				clock.Advance(d)
				if len(sleeps) == 3 {
					cancel()
					return ctx.Err()
				}
				return nil
			}

			s := New(Deps{Feed: f, Publisher: &fakePublisher{}, Logger: quiet, Now: clock.Now, Sleep: sleep})
			if err := s.Run(ctx); err != nil {
				t.Fatalf("Run = %v, want nil after cancel", err)
			}

			if len(sleeps) != 3 {
				t.Fatalf("sleeps = %v", sleeps)
			}
			for i, d := range sleeps {
				if d != tt.wantSleep {
					t.Errorf("sleep %d = %v, want %v", i, d, tt.wantSleep)
				}
			}
			wantGap := max(tt.work, DefaultInterval)
			for i := 1; i < len(starts); i++ {
				if gap := starts[i].Sub(starts[i-1]); gap != wantGap {
					t.Errorf("gap between tick %d and %d = %v, want %v", i-1, i, gap, wantGap)
				}
			}
		})
	}
}

func TestRun_ContinuesAfterSkippedTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := okFeed()
	f.itemErr = &errs.ProtocolError{Op: "fetch", StatusCode: 401}
	ticks := 0
	sleep := func(ctx context.Context, _ time.Duration) error {
		ticks++
		if ticks == 2 {
			f.itemErr = nil
		}
		if ticks == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	p := &fakePublisher{}
	s := New(Deps{Feed: f, Publisher: p, Logger: quiet, Sleep: sleep})
	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.categories) != 3 {
		t.Errorf("ticks run = %d, want 3", len(f.categories))
	}
	if len(p.calls) != 1 {
		t.Errorf("publishes = %d, want 1", len(p.calls))
	}
}

func TestRun_ReturnsFatal(t *testing.T) {
	f := okFeed()
	f.itemErr = &errs.TransportError{Op: "fetch", Err: errors.New("no route to host")}
	s := New(Deps{
		Feed:      f,
		Publisher: &fakePublisher{},
		Logger:    quiet,
		Sleep: func(context.Context, time.Duration) error {
			t.Error("must not sleep after a fatal tick")
			return nil
		},
	})
	err := s.Run(context.Background())
	if !errs.IsTransport(err) {
		t.Fatalf("Run = %v, want transport error", err)
	}
}

func TestRun_StopsWhenCanceledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Deps{Feed: okFeed(), Publisher: &fakePublisher{}, Logger: quiet, Interval: time.Hour})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := okFeed()
	s := New(Deps{Feed: f, Publisher: &fakePublisher{}, Logger: quiet})
	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.categories) != 0 {
		t.Errorf("no tick should run, got %v", f.categories)
	}
}

// ===================== end to end =====================

// TestTick_EndToEnd runs a tick through the real feed client, platform
// bindings and publisher against local servers.
func TestTick_EndToEnd(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	defer media.Close()

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/anime_memes" {
			t.Errorf("feed path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"title":"t","url":%q,"subreddit":"s"}`, media.URL+"/img.png")
	}))
	defer feedSrv.Close()

	var (
		mu       sync.Mutex
		uploaded string
		status   string
		mediaIDs string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/1.1/media/upload.json", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
			t.Errorf("upload not signed")
		}
		r.ParseForm()
		mu.Lock()
		uploaded = r.PostForm.Get("media")
		mu.Unlock()
		w.Write([]byte(`{"media_id":123,"media_id_string":"123"}`))
	})
	mux.HandleFunc("/1.1/statuses/update.json", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mu.Lock()
		status = r.PostForm.Get("status")
		mediaIDs = r.PostForm.Get("media_ids")
		mu.Unlock()
		w.Write([]byte(`{"id_str":"1"}`))
	})
	platform := httptest.NewServer(mux)
	defer platform.Close()

	tw := twitter.NewClient(oauth.Credential{Key: "ck", Secret: "cs"}, platform.Client()).
		WithEndpoints(twitter.Endpoints{
			UploadMedia:  platform.URL + "/1.1/media/upload.json",
			UpdateStatus: platform.URL + "/1.1/statuses/update.json",
		})
	rec := &memRecorder{}
	s := New(Deps{
		Feed:      feed.NewClient(feedSrv.URL, nil),
		Publisher: publish.New(tw, oauth.Credential{Key: "ak", Secret: "as"}, quiet),
		Recorder:  rec,
		Picker:    fixedPicker(1),
		Logger:    quiet,
	})

	outcome, err := s.Tick(context.Background())
	if err != nil || outcome != Published {
		t.Fatalf("Tick = %s, %v", outcome, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if uploaded != base64.StdEncoding.EncodeToString(png) {
		t.Errorf("uploaded media = %q", uploaded)
	}
	if status != "t" {
		t.Errorf("status = %q, want %q", status, "t")
	}
	if mediaIDs != "123" {
		t.Errorf("media_ids = %q, want %q", mediaIDs, "123")
	}
	if rec.entries[0].MediaID != "123" || rec.entries[0].MediaURL != media.URL+"/img.png" {
		t.Errorf("entry = %+v", rec.entries[0])
	}
}
