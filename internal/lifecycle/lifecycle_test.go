package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeCapture struct{ rec *recorder }

func (c fakeCapture) Start(context.Context) { c.rec.add("start") }
func (c fakeCapture) Stop()                 { c.rec.add("stop") }

type fakeSyncer struct {
	rec      *recorder
	accept   bool
	received string
}

func (s *fakeSyncer) SessionEnded(_ context.Context, interviewID string) bool {
	s.rec.add("sync")
	s.received = interviewID
	return s.accept
}

func TestHooksOrder(t *testing.T) {
	rec := &recorder{}
	syncer := &fakeSyncer{rec: rec, accept: true}
	hooks := NewHooks("interview-1", fakeCapture{rec: rec}, syncer, zap.NewNop())

	hooks.OnStart(context.Background())
	hooks.OnEnd(context.Background())

	want := []string{"start", "stop", "sync"}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if syncer.received != "interview-1" {
		t.Fatalf("expected interview id to reach syncer, got %q", syncer.received)
	}
}

func TestHooksWithoutSyncer(t *testing.T) {
	rec := &recorder{}
	hooks := NewHooks("interview-1", fakeCapture{rec: rec}, nil, nil)

	hooks.OnEnd(context.Background())

	if got := rec.list(); !reflect.DeepEqual(got, []string{"stop"}) {
		t.Fatalf("unexpected events %v", got)
	}
}

type handlerFunc struct{ rec *recorder }

func (h handlerFunc) OnStart(context.Context) { h.rec.add("start") }
func (h handlerFunc) OnEnd(context.Context)   { h.rec.add("end") }

func TestPollerTransitions(t *testing.T) {
	ticks := make(chan time.Time)
	orig := newTicker
	newTicker = func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }
	t.Cleanup(func() { newTicker = orig })

	type answer struct {
		live bool
		err  error
	}
	answers := []answer{
		{live: false},
		{live: true},
		{live: true},
		{err: errors.New("stat failed")},
		{live: false},
		{live: false},
		{live: true},
	}
	next := 0
	presence := func() (bool, error) {
		a := answers[next]
		next++
		return a.live, a.err
	}

	rec := &recorder{}
	poller := NewPoller(presence, 0, handlerFunc{rec: rec}, zap.NewNop())
	if poller.Latency() != DefaultPollInterval {
		t.Fatalf("expected default latency, got %s", poller.Latency())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	for range answers {
		ticks <- time.Now()
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	want := []string{"start", "end", "start"}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.live")
	presence := FileExists(path)

	live, err := presence()
	if err != nil || live {
		t.Fatalf("expected absent file, got %v, %v", live, err)
	}

	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("writing presence file: %v", err)
	}

	live, err = presence()
	if err != nil || !live {
		t.Fatalf("expected present file, got %v, %v", live, err)
	}
}
