// Package client implements the metric write path. Services embedding the
// client translate each completed storage operation into one PushMetric
// call; the client fans the event out across the enabled granularities,
// derives the affected keys and applies them to the datastore in pipelined
// batches.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/voxisys/utapi/datastore"
	"github.com/voxisys/utapi/schema"
)

// Clock abstracts time.Now so tests can pin writes to a known interval.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config assembles a Client.
type Config struct {
	// Component names the service whose traffic is metered, e.g. "s3".
	// Mandatory; service-level keys are derived from it.
	Component string

	// Levels restricts recording to the given granularities. Empty means
	// every level the event carries.
	Levels []schema.Level

	// Store receives the metric commands. A nil Store disables the client:
	// pushes succeed without doing anything.
	Store datastore.Store

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// DumpLevel is the level at which the full command list of a failed
	// batch is written to the log, on top of the usual one-line error.
	// Defaults to slog.LevelError.
	DumpLevel slog.Leveler

	// Clock defaults to the wall clock.
	Clock Clock
}

// Client records operation metrics. It is immutable after New and safe for
// concurrent use.
type Client struct {
	component string
	levels    map[schema.Level]bool // nil means all levels
	store     datastore.Store
	log       *slog.Logger
	dump      slog.Level
	clock     Clock
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Component == "" {
		return nil, errors.New("client: component is required")
	}
	c := &Client{
		component: cfg.Component,
		store:     cfg.Store,
		log:       cfg.Logger,
		dump:      slog.LevelError,
		clock:     cfg.Clock,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if cfg.DumpLevel != nil {
		c.dump = cfg.DumpLevel.Level()
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if len(cfg.Levels) > 0 {
		c.levels = make(map[schema.Level]bool, len(cfg.Levels))
		for _, l := range cfg.Levels {
			if !schema.ValidLevel(string(l)) {
				return nil, fmt.Errorf("client: unknown level %q", l)
			}
			c.levels[l] = true
		}
	}
	return c, nil
}

// Disabled reports whether pushes are dropped because no store was
// configured.
func (c *Client) Disabled() bool { return c.store == nil }

// PushMetric records one operation at every enabled granularity the event
// carries. The write targets the quarter-hour interval containing the
// current wall clock. requestID ties log lines back to the originating
// request and may be empty.
func (c *Client) PushMetric(ctx context.Context, op schema.Operation, requestID string, ev Event) error {
	if !op.Valid() {
		return fmt.Errorf("invalid operation %d", op)
	}
	if err := requireProperties(op, ev); err != nil {
		return err
	}
	if c.store == nil {
		return nil
	}
	resources := c.resources(ev)
	if len(resources) == 0 {
		return nil
	}
	ts := schema.IntervalStart(c.clock.Now())
	log := c.log.With("operation", op.String(), "requestId", requestID, "interval", ts)

	switch op {
	case schema.OpCreateBucket:
		return c.pushCreateBucket(ctx, resources, ts, log)
	case schema.OpUploadPart:
		return c.pushUploadPart(ctx, resources, ts, *ev.NewByteLength, log)
	case schema.OpCompleteMultipartUpload:
		return c.pushCompleteUpload(ctx, resources, ts, log)
	case schema.OpPutObject, schema.OpCopyObject:
		return c.pushObjectWrite(ctx, op, resources, ts, ev, log)
	case schema.OpDeleteObject, schema.OpMultiObjectDelete:
		return c.pushObjectDelete(ctx, op, resources, ts, ev, log)
	default:
		return c.pushGeneric(ctx, op, resources, ts, ev, log)
	}
}

// resources expands the event into the concrete resources to record at.
// Bucket and account apply only when the event names them; the service
// level is always derivable from the configured component.
func (c *Client) resources(ev Event) []schema.Resource {
	out := make([]schema.Resource, 0, 3)
	if ev.Bucket != "" && c.enabled(schema.LevelBucket) {
		out = append(out, schema.Resource{Level: schema.LevelBucket, ID: ev.Bucket})
	}
	if ev.AccountID != "" && c.enabled(schema.LevelAccount) {
		out = append(out, schema.Resource{Level: schema.LevelAccount, ID: ev.AccountID})
	}
	if c.enabled(schema.LevelService) {
		out = append(out, schema.Resource{Level: schema.LevelService, ID: c.component})
	}
	return out
}

func (c *Client) enabled(l schema.Level) bool {
	return c.levels == nil || c.levels[l]
}

// pushGeneric covers every operation that only counts itself, plus the read
// path's traffic accounting: getObject also folds the response size into
// outgoingBytes.
func (c *Client) pushGeneric(ctx context.Context, op schema.Operation, resources []schema.Resource, ts int64, ev Event, log *slog.Logger) error {
	cmds := make([]datastore.Command, 0, 2*len(resources))
	for _, res := range resources {
		if op == schema.OpGetObject {
			cmds = append(cmds, datastore.IncrBy(schema.Key(res, schema.MetricOutgoingBytes, ts), *ev.NewByteLength))
		}
		cmds = append(cmds, datastore.Incr(schema.Key(res, op.String(), ts)))
	}
	_, err := c.exec(ctx, cmds, log)
	return err
}

// pushCreateBucket zeroes the absolute counters and re-seeds their
// timelines. The bucket itself is new, so its creation counter is SET to 1
// rather than incremented; the account and service tallies accumulate.
func (c *Client) pushCreateBucket(ctx context.Context, resources []schema.Resource, ts int64, log *slog.Logger) error {
	cmds := make([]datastore.Command, 0, 7*len(resources))
	for _, res := range resources {
		for _, key := range schema.CounterKeys(res) {
			cmds = append(cmds, datastore.Set(key, "0"))
		}
		for _, metric := range schema.AbsoluteMetrics() {
			cmds = append(cmds, sampleCmds(res, metric, ts, 0)...)
		}
		opKey := schema.Key(res, schema.OpCreateBucket.String(), ts)
		if res.Level == schema.LevelBucket {
			cmds = append(cmds, datastore.Set(opKey, "1"))
		} else {
			cmds = append(cmds, datastore.Incr(opKey))
		}
	}
	_, err := c.exec(ctx, cmds, log)
	return err
}

func (c *Client) pushUploadPart(ctx context.Context, resources []schema.Resource, ts, size int64, log *slog.Logger) error {
	cmds := make([]datastore.Command, 0, 3*len(resources))
	for _, res := range resources {
		cmds = append(cmds,
			datastore.IncrBy(schema.CounterKey(res, schema.MetricStorageUtilized), size),
			datastore.IncrBy(schema.Key(res, schema.MetricIncomingBytes, ts), size),
			datastore.Incr(schema.Key(res, schema.OpUploadPart.String(), ts)),
		)
	}
	results, err := c.exec(ctx, cmds, log)
	if err != nil {
		return err
	}

	samples := make([]datastore.Command, 0, 2*len(resources))
	for i, res := range resources {
		v, err := results[i*3].Int64()
		if err != nil {
			return c.badReply(schema.CounterKey(res, schema.MetricStorageUtilized), err, log)
		}
		samples = append(samples, sampleCmds(res, schema.MetricStorageUtilized, ts, v)...)
	}
	_, err = c.exec(ctx, samples, log)
	return err
}

func (c *Client) pushCompleteUpload(ctx context.Context, resources []schema.Resource, ts int64, log *slog.Logger) error {
	cmds := make([]datastore.Command, 0, 2*len(resources))
	for _, res := range resources {
		cmds = append(cmds,
			datastore.Incr(schema.CounterKey(res, schema.MetricNumberOfObjects)),
			datastore.Incr(schema.Key(res, schema.OpCompleteMultipartUpload.String(), ts)),
		)
	}
	results, err := c.exec(ctx, cmds, log)
	if err != nil {
		return err
	}

	samples := make([]datastore.Command, 0, 2*len(resources))
	for i, res := range resources {
		v, err := results[i*2].Int64()
		if err != nil {
			return c.badReply(schema.CounterKey(res, schema.MetricNumberOfObjects), err, log)
		}
		samples = append(samples, sampleCmds(res, schema.MetricNumberOfObjects, ts, v)...)
	}
	_, err = c.exec(ctx, samples, log)
	return err
}

// pushObjectWrite records putObject and copyObject. Storage grows by the
// size difference against what the write replaced; the object count only
// moves when the object key is new. copyObject ingests no bytes over the
// wire, so only putObject feeds incomingBytes.
func (c *Client) pushObjectWrite(ctx context.Context, op schema.Operation, resources []schema.Resource, ts int64, ev Event, log *slog.Logger) error {
	size := *ev.NewByteLength
	var old int64
	if ev.OldByteLength != nil {
		old = *ev.OldByteLength
	}
	delta := size - old

	stride := 3
	if op == schema.OpPutObject {
		stride = 4
	}
	cmds := make([]datastore.Command, 0, stride*len(resources))
	for _, res := range resources {
		cmds = append(cmds, datastore.IncrBy(schema.CounterKey(res, schema.MetricStorageUtilized), delta))
		objKey := schema.CounterKey(res, schema.MetricNumberOfObjects)
		if ev.OldByteLength == nil {
			cmds = append(cmds, datastore.Incr(objKey))
		} else {
			cmds = append(cmds, datastore.Get(objKey))
		}
		if op == schema.OpPutObject {
			cmds = append(cmds, datastore.IncrBy(schema.Key(res, schema.MetricIncomingBytes, ts), size))
		}
		cmds = append(cmds, datastore.Incr(schema.Key(res, op.String(), ts)))
	}
	results, err := c.exec(ctx, cmds, log)
	if err != nil {
		return err
	}

	samples := make([]datastore.Command, 0, 4*len(resources))
	for i, res := range resources {
		base := i * stride
		storage, err := results[base].Int64()
		if err != nil {
			return c.badReply(schema.CounterKey(res, schema.MetricStorageUtilized), err, log)
		}
		objects, err := results[base+1].Int64()
		if err != nil {
			return c.badReply(schema.CounterKey(res, schema.MetricNumberOfObjects), err, log)
		}
		samples = append(samples, sampleCmds(res, schema.MetricStorageUtilized, ts, storage)...)
		samples = append(samples, sampleCmds(res, schema.MetricNumberOfObjects, ts, objects)...)
	}
	_, err = c.exec(ctx, samples, log)
	return err
}

func (c *Client) pushObjectDelete(ctx context.Context, op schema.Operation, resources []schema.Resource, ts int64, ev Event, log *slog.Logger) error {
	cmds := make([]datastore.Command, 0, 3*len(resources))
	for _, res := range resources {
		cmds = append(cmds,
			datastore.DecrBy(schema.CounterKey(res, schema.MetricStorageUtilized), *ev.ByteLength),
			datastore.DecrBy(schema.CounterKey(res, schema.MetricNumberOfObjects), *ev.NumberOfObjects),
			datastore.Incr(schema.Key(res, op.String(), ts)),
		)
	}
	results, err := c.exec(ctx, cmds, log)
	if err != nil {
		return err
	}

	samples := make([]datastore.Command, 0, 4*len(resources))
	for i, res := range resources {
		base := i * 3
		storage, err := results[base].Int64()
		if err != nil {
			return c.badReply(schema.CounterKey(res, schema.MetricStorageUtilized), err, log)
		}
		objects, err := results[base+1].Int64()
		if err != nil {
			return c.badReply(schema.CounterKey(res, schema.MetricNumberOfObjects), err, log)
		}
		samples = append(samples, sampleCmds(res, schema.MetricStorageUtilized, ts, storage)...)
		samples = append(samples, sampleCmds(res, schema.MetricNumberOfObjects, ts, objects)...)
	}
	_, err = c.exec(ctx, samples, log)
	return err
}

// sampleCmds replaces the timeline sample at ts with value. The removal
// rides in the same batch as the insert, so concurrent writers to the same
// interval converge on a single surviving sample. Samples never go below
// zero even when the backing counter does.
func sampleCmds(res schema.Resource, metric string, ts, value int64) []datastore.Command {
	if value < 0 {
		value = 0
	}
	key := schema.StateKey(res, metric)
	return []datastore.Command{
		datastore.ZRemRangeByScore(key, ts, ts),
		datastore.ZAdd(key, ts, strconv.FormatInt(value, 10)),
	}
}

// exec runs one batch and folds any failure into the opaque internal error
// after logging the offending commands.
func (c *Client) exec(ctx context.Context, cmds []datastore.Command, log *slog.Logger) ([]datastore.Result, error) {
	results, err := c.store.Batch(ctx, cmds)
	if err != nil {
		log.Error("metric batch failed", "error", err, "commands", len(cmds))
		c.dumpBatch(ctx, cmds, log)
		return nil, ErrInternal
	}
	failed := false
	for i, r := range results {
		if r.Err != nil {
			failed = true
			log.Error("metric command failed", "command", cmds[i].String(), "error", r.Err)
		}
	}
	if failed {
		return nil, ErrInternal
	}
	return results, nil
}

// dumpBatch writes the full command list of a failed batch at the configured
// dump level. Write batches stay small, a few commands per resource, so the
// dump is bounded.
func (c *Client) dumpBatch(ctx context.Context, cmds []datastore.Command, log *slog.Logger) {
	if !log.Enabled(ctx, c.dump) {
		return
	}
	lines := make([]string, len(cmds))
	for i, cmd := range cmds {
		lines[i] = cmd.String()
	}
	log.Log(ctx, c.dump, "failed batch contents", "batch", lines)
}

func (c *Client) badReply(key string, err error, log *slog.Logger) error {
	log.Error("unusable counter reply", "key", key, "error", err)
	return ErrInternal
}
