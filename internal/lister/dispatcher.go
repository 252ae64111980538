package lister

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voxisys/utapi/datastore"
	"github.com/voxisys/utapi/internal/telemetry"
	"github.com/voxisys/utapi/schema"
)

// DefaultWorkers bounds concurrent queries when the configuration does not
// say otherwise.
const DefaultWorkers = 10

// Config assembles a Dispatcher.
type Config struct {
	// Store answers the metric queries.
	Store datastore.Store

	// Component names the resource served by service-level queries.
	Component string

	// Workers caps in-flight queries across all granularities. Zero or
	// negative falls back to DefaultWorkers.
	Workers int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// DumpLevel is the level at which per-key read failures are logged.
	// Defaults to slog.LevelError.
	DumpLevel slog.Leveler
}

// Dispatcher fronts the per-level listers behind one bounded entry point.
// The semaphore caps in-flight queries across all granularities so a burst
// of wide requests cannot monopolize the store.
type Dispatcher struct {
	component string
	log       *slog.Logger
	sem       *semaphore.Weighted
	listers   map[schema.Level]*ListMetrics
}

// NewDispatcher builds a dispatcher from cfg.
func NewDispatcher(cfg Config) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("domain", "lister")
	dump := slog.LevelError
	if cfg.DumpLevel != nil {
		dump = cfg.DumpLevel.Level()
	}
	listers := make(map[schema.Level]*ListMetrics, 3)
	for _, level := range schema.Levels() {
		l := NewListMetrics(level, cfg.Store, log)
		l.dump = dump
		listers[level] = l
	}
	return &Dispatcher{
		component: cfg.Component,
		log:       log,
		sem:       semaphore.NewWeighted(int64(workers)),
		listers:   listers,
	}
}

// ListMetrics validates and answers one query. Service-level queries ignore
// the resource list; the only service resource is the configured component.
func (d *Dispatcher) ListMetrics(ctx context.Context, level schema.Level, resources []string, start, end int64) ([]Metrics, error) {
	if level == schema.LevelService {
		resources = []string{d.component}
	}
	if err := validateQuery(level, resources, start, end); err != nil {
		return nil, err
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	telemetry.ListRequests.WithLabelValues(string(level)).Inc()
	began := time.Now()
	defer func() {
		telemetry.ListSeconds.WithLabelValues(string(level)).Observe(time.Since(began).Seconds())
	}()

	return d.listers[level].List(ctx, resources, start, end)
}

func validateQuery(level schema.Level, resources []string, start, end int64) error {
	if !schema.ValidLevel(string(level)) {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidRequest, level)
	}
	if len(resources) == 0 {
		return fmt.Errorf("%w: no resources named", ErrInvalidRequest)
	}
	for _, id := range resources {
		if id == "" {
			return fmt.Errorf("%w: empty resource id", ErrInvalidRequest)
		}
		if strings.Contains(id, ":") {
			return fmt.Errorf("%w: resource id %q contains a colon", ErrInvalidRequest, id)
		}
	}
	if start < 0 {
		return fmt.Errorf("%w: negative start time", ErrInvalidRequest)
	}
	if end < start {
		return fmt.Errorf("%w: time range ends before it starts", ErrInvalidRequest)
	}
	return nil
}
