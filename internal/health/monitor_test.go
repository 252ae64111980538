package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeStore answers pings with a swappable error.
type fakeStore struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeStore) pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestReadyBeforeProbe(t *testing.T) {
	m := New(&fakeStore{}, Config{})
	if err := m.Ready(context.Background()); err == nil {
		t.Fatal("expected error before first probe")
	}
}

func TestProbeTransitions(t *testing.T) {
	fs := &fakeStore{}
	m := New(fs, Config{Interval: time.Hour})
	ctx := context.Background()

	m.probe(ctx)
	if err := m.Ready(ctx); err != nil {
		t.Fatalf("expected ready after healthy probe, got: %v", err)
	}

	fs.setErr(errors.New("connection refused"))
	m.probe(ctx)
	if err := m.Ready(ctx); err == nil {
		t.Fatal("expected not ready after failed probe")
	}

	fs.setErr(nil)
	m.probe(ctx)
	if err := m.Ready(ctx); err != nil {
		t.Fatalf("expected recovery, got: %v", err)
	}
}

func TestProbeKeepsVerdictOnCancel(t *testing.T) {
	fs := &fakeStore{}
	m := New(fs, Config{Interval: time.Hour})
	m.probe(context.Background())

	fs.setErr(context.Canceled)
	m.probe(context.Background())
	if err := m.Ready(context.Background()); err != nil {
		t.Fatalf("cancellation must not flip readiness, got: %v", err)
	}
}

func TestStartStopLoop(t *testing.T) {
	fs := &fakeStore{}
	m := New(fs, Config{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	if err := m.Ready(ctx); err != nil {
		t.Fatalf("expected immediate verdict after Start, got: %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	m.Stop()

	if fs.pings() < 2 {
		t.Fatalf("expected the loop to keep probing, got %d pings", fs.pings())
	}
}

func TestStartAlreadyStarted(t *testing.T) {
	m := New(&fakeStore{}, Config{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	tkr := m.ticker
	m.Start(ctx)
	if m.ticker != tkr {
		t.Fatalf("ticker replaced unexpectedly")
	}
	m.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	m := New(&fakeStore{}, Config{})
	m.Stop() // must not block
}

func TestNewDefaults(t *testing.T) {
	m := New(&fakeStore{}, Config{})
	if m.cfg.Interval <= 0 || m.cfg.Timeout <= 0 || m.cfg.Logger == nil {
		t.Fatalf("defaults not applied %+v", m.cfg)
	}
}
