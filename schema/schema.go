// Package schema defines the key namespace and interval arithmetic shared by
// the metric write and read paths. Every stored datum is addressed by a flat
// string key derived from a resource, a metric name and, for interval
// counters, a normalized timestamp, so the two paths agree on layout without
// sharing any state.
package schema

import (
	"strconv"
	"strings"
)

// Level is the granularity at which metrics are recorded.
type Level string

const (
	LevelBucket  Level = "bucket"
	LevelAccount Level = "account"
	LevelService Level = "service"
)

// Levels returns the known granularities in canonical order.
func Levels() []Level {
	return []Level{LevelBucket, LevelAccount, LevelService}
}

// ValidLevel reports whether s names a known granularity.
func ValidLevel(s string) bool {
	switch Level(s) {
	case LevelBucket, LevelAccount, LevelService:
		return true
	}
	return false
}

// Resource identifies one metered entity at one granularity, such as the
// bucket "photos" or the account "379763717565". Resource ids never contain
// a colon, which keeps every derived key unambiguous.
type Resource struct {
	Level Level
	ID    string
}

// Prefix returns the "level:id" fragment every key for r starts with.
func (r Resource) Prefix() string {
	return string(r.Level) + ":" + r.ID
}

// Metrics that are not operation counters. Operation counters use the
// operation name itself as the metric component of the key.
const (
	MetricStorageUtilized = "storageUtilized"
	MetricNumberOfObjects = "numberOfObjects"
	MetricIncomingBytes   = "incomingBytes"
	MetricOutgoingBytes   = "outgoingBytes"
)

// AbsoluteMetrics lists the metrics kept as a running counter plus a sampled
// timeline rather than as per-interval deltas.
func AbsoluteMetrics() []string {
	return []string{MetricStorageUtilized, MetricNumberOfObjects}
}

// Key returns the interval key holding the delta of metric for the quarter
// hour starting at ts (epoch milliseconds):
//
//	{level}:{id}:{metric}:{timestamp}
func Key(r Resource, metric string, ts int64) string {
	return r.Prefix() + ":" + metric + ":" + strconv.FormatInt(ts, 10)
}

// CounterKey returns the running-counter key for an absolute metric:
//
//	{level}:{id}:counter:{metric}
func CounterKey(r Resource, metric string) string {
	return r.Prefix() + ":counter:" + metric
}

// StateKey returns the sampled-timeline key for an absolute metric:
//
//	{level}:{id}:state:{metric}
func StateKey(r Resource, metric string) string {
	return r.Prefix() + ":state:" + metric
}

// CounterKeys returns the running-counter keys of every absolute metric for
// r, in AbsoluteMetrics order.
func CounterKeys(r Resource) []string {
	metrics := AbsoluteMetrics()
	keys := make([]string, 0, len(metrics))
	for _, m := range metrics {
		keys = append(keys, CounterKey(r, m))
	}
	return keys
}

// MetricFromKey recovers the metric component from an interval key that was
// built for r. It reports false when the key belongs to another resource or
// is a counter or state key rather than an interval key.
func MetricFromKey(key string, r Resource) (string, bool) {
	rest, ok := strings.CutPrefix(key, r.Prefix()+":")
	if !ok {
		return "", false
	}
	metric, _, ok := strings.Cut(rest, ":")
	if !ok || metric == "" || metric == "counter" || metric == "state" {
		return "", false
	}
	return metric, true
}
