// Package health implements background monitoring of the backing store. It
// operates independently from the query path to keep lifecycle concerns
// (periodic probing, readiness state) isolated from request handling:
// readiness checks answer from the last probe instead of dialing the store
// on every request.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxisys/utapi/internal/telemetry"
)

// Pinger abstracts the single store operation the Monitor requires. It is
// satisfied by every datastore implementation.
type Pinger interface {
	// Ping verifies the store answers at all.
	Ping(ctx context.Context) error
}

// Config holds tunables for the Monitor.
type Config struct {
	Interval time.Duration // how often the store is probed
	Timeout  time.Duration // per-probe deadline
	Logger   *slog.Logger  // optional logger (defaults to slog.Default())
}

// Monitor encapsulates the background probe loop.
type Monitor struct {
	store Pinger
	cfg   Config

	mu      sync.Mutex
	probed  bool
	lastErr error

	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs but does not start a Monitor.
func New(store Pinger, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		store:  store,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start probes once synchronously so readiness has a verdict immediately,
// then launches the probe loop in a new goroutine.
func (m *Monitor) Start(ctx context.Context) {
	if m.ticker != nil {
		return // already started
	}
	m.probe(ctx)
	m.ticker = time.NewTicker(m.cfg.Interval)
	go m.loop(ctx)
}

// Stop signals the loop to exit and waits for completion. Stopping a
// monitor that never started is a no-op.
func (m *Monitor) Stop() {
	if m.ticker == nil {
		return
	}
	m.once.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

// Ready reports the last observed store state. It never dials the store.
func (m *Monitor) Ready(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.probed {
		return errors.New("backing store not probed yet")
	}
	if m.lastErr != nil {
		return fmt.Errorf("backing store unreachable: %w", m.lastErr)
	}
	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	log := m.cfg.Logger.With("domain", "health")
	defer func() {
		m.ticker.Stop()
		close(m.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("health monitor stop", "reason", "context_cancel")
			return
		case <-m.stopCh:
			log.Info("health monitor stop", "reason", "stop_signal")
			return
		case <-m.ticker.C:
			m.probe(ctx)
		}
	}
}

// probe pings the store once and records the verdict. Only transitions are
// logged so a long outage costs one line, not one per probe.
func (m *Monitor) probe(ctx context.Context) {
	log := m.cfg.Logger.With("domain", "health")
	pctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	err := m.store.Ping(pctx)
	cancel()
	if err != nil && errors.Is(err, context.Canceled) {
		return // shutting down; keep the last verdict
	}

	m.mu.Lock()
	prevProbed, prevErr := m.probed, m.lastErr
	m.probed = true
	m.lastErr = err
	m.mu.Unlock()

	if err != nil {
		telemetry.StoreUp.Set(0)
		if !prevProbed || prevErr == nil {
			log.Warn("backing store unreachable", "error", err)
		}
		return
	}
	telemetry.StoreUp.Set(1)
	if prevProbed && prevErr != nil {
		log.Info("backing store recovered")
	}
}
