// Package lister implements the metric read path: one batched query per
// resource, folded into the response record the HTTP layer serializes.
package lister

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/voxisys/utapi/datastore"
	"github.com/voxisys/utapi/internal/telemetry"
	"github.com/voxisys/utapi/schema"
)

// resourceConcurrency bounds how many resources of one request are queried
// at the same time.
const resourceConcurrency = 5

// Metrics is one resource's slice of the queried time range. Exactly one of
// the name fields is set, matching the requested granularity.
type Metrics struct {
	BucketName  string `json:"bucketName,omitempty"`
	AccountID   string `json:"accountId,omitempty"`
	ServiceName string `json:"serviceName,omitempty"`

	TimeRange       [2]int64         `json:"timeRange"`
	StorageUtilized [2]int64         `json:"storageUtilized"`
	IncomingBytes   int64            `json:"incomingBytes"`
	OutgoingBytes   int64            `json:"outgoingBytes"`
	NumberOfObjects [2]int64         `json:"numberOfObjects"`
	Operations      map[string]int64 `json:"operations"`
}

// deltaMetrics is every per-interval key family a query reads: one counter
// per operation plus the two traffic tallies.
var deltaMetrics = func() []string {
	ops := schema.Operations()
	out := make([]string, 0, len(ops)+2)
	for _, op := range ops {
		out = append(out, op.String())
	}
	return append(out, schema.MetricIncomingBytes, schema.MetricOutgoingBytes)
}()

// ListMetrics answers metric queries for one granularity.
type ListMetrics struct {
	level schema.Level
	store datastore.Store
	log   *slog.Logger
	dump  slog.Level // level for per-key degradation detail
}

// NewListMetrics builds a lister bound to one granularity. Per-key read
// failures are logged at slog.LevelError unless the dump field is lowered.
func NewListMetrics(level schema.Level, store datastore.Store, log *slog.Logger) *ListMetrics {
	return &ListMetrics{level: level, store: store, log: log, dump: slog.LevelError}
}

// List resolves every named resource over [start, end]. Results come back
// in request order. Resources are queried concurrently but each resource is
// a single batched round trip.
func (l *ListMetrics) List(ctx context.Context, resources []string, start, end int64) ([]Metrics, error) {
	out := make([]Metrics, len(resources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resourceConcurrency)
	for i, id := range resources {
		g.Go(func() error {
			m, err := l.resourceMetrics(gctx, id, start, end)
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// resourceMetrics builds, executes and folds the one batch that answers a
// query for a single resource.
func (l *ListMetrics) resourceMetrics(ctx context.Context, id string, start, end int64) (Metrics, error) {
	res := schema.Resource{Level: l.level, ID: id}
	boundaries := schema.Boundaries(start, end)
	// The final boundary is the query end and only anchors the absolute
	// lookups; deltas are keyed by interval starts.
	deltas := boundaries[:len(boundaries)-1]

	cmds := make([]datastore.Command, 0, len(deltas)*len(deltaMetrics)+4)
	keys := make([]string, 0, len(deltas)*len(deltaMetrics))
	for _, ts := range deltas {
		for _, metric := range deltaMetrics {
			key := schema.Key(res, metric, ts)
			cmds = append(cmds, datastore.Get(key))
			keys = append(keys, key)
		}
	}
	for _, metric := range schema.AbsoluteMetrics() {
		stateKey := schema.StateKey(res, metric)
		cmds = append(cmds,
			datastore.ZRevRangeByScoreFirst(stateKey, start),
			datastore.ZRevRangeByScoreFirst(stateKey, end),
		)
	}

	results, err := l.store.Batch(ctx, cmds)
	if err != nil {
		l.log.Error("metric query batch failed",
			"level", string(l.level), "resource", id, "error", err)
		return Metrics{}, ErrInternal
	}

	m := l.newMetrics(id, start, end)
	for i, key := range keys {
		r := results[i]
		if r.Err != nil {
			l.degraded(ctx, key, r.Err)
			continue
		}
		if r.Value == nil {
			continue
		}
		v, err := r.Int64()
		if err != nil {
			l.degraded(ctx, key, err)
			continue
		}
		metric, ok := schema.MetricFromKey(key, res)
		if !ok {
			continue
		}
		switch metric {
		case schema.MetricIncomingBytes:
			m.IncomingBytes += v
		case schema.MetricOutgoingBytes:
			m.OutgoingBytes += v
		default:
			op, err := schema.ParseOperation(metric)
			if err != nil {
				continue
			}
			m.Operations[op.ResponseName()] += v
		}
	}

	abs := results[len(keys):]
	storageState := schema.StateKey(res, schema.MetricStorageUtilized)
	objectState := schema.StateKey(res, schema.MetricNumberOfObjects)
	m.StorageUtilized[0] = l.sampleValue(ctx, abs[0], storageState)
	m.StorageUtilized[1] = l.sampleValue(ctx, abs[1], storageState)
	m.NumberOfObjects[0] = l.sampleValue(ctx, abs[2], objectState)
	m.NumberOfObjects[1] = l.sampleValue(ctx, abs[3], objectState)
	return m, nil
}

func (l *ListMetrics) newMetrics(id string, start, end int64) Metrics {
	m := Metrics{
		TimeRange:  [2]int64{start, end},
		Operations: make(map[string]int64, len(deltaMetrics)),
	}
	for _, op := range schema.Operations() {
		m.Operations[op.ResponseName()] = 0
	}
	switch l.level {
	case schema.LevelBucket:
		m.BucketName = id
	case schema.LevelAccount:
		m.AccountID = id
	case schema.LevelService:
		m.ServiceName = id
	}
	return m
}

// sampleValue extracts the nearest-predecessor sample from a reverse range
// reply. Missing timelines and unreadable members report zero; recorded
// samples are already non-negative but the floor is applied again here so a
// by-hand edit of the store cannot surface a negative total.
func (l *ListMetrics) sampleValue(ctx context.Context, r datastore.Result, key string) int64 {
	members, err := r.Strings()
	if err != nil {
		l.degraded(ctx, key, err)
		return 0
	}
	if len(members) == 0 {
		return 0
	}
	v, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		l.degraded(ctx, key, err)
		return 0
	}
	if v < 0 {
		return 0
	}
	return v
}

// degraded records a per-key read failure that the response absorbs as a
// zero instead of failing the request. The per-key detail is logged at the
// dump level so a store outage, which degrades every key of every query,
// can be kept out of the error stream.
func (l *ListMetrics) degraded(ctx context.Context, key string, err error) {
	telemetry.DegradedReads.Inc()
	l.log.Log(ctx, l.dump, "metric read failed, reporting zero",
		"level", string(l.level), "key", key, "error", err)
}
