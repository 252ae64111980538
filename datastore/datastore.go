// Package datastore defines the storage contract of the metric service and
// provides its Redis, SQLite and in-memory implementations. Both metric
// paths compose batches of small counter and sorted-set commands; an
// implementation executes a batch in one round trip where its backend
// allows it.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("datastore: key not found")

// Store is the port both metric paths are written against.
//
// Value conventions: counters are decimal strings holding an int64; sorted
// set members are strings scored by epoch-millisecond timestamps. A missing
// key reads as ErrNotFound from Get and as a nil Result value from Batch.
type Store interface {
	// Get returns the string value at key.
	Get(ctx context.Context, key string) (string, error)

	// Set unconditionally stores value at key.
	Set(ctx context.Context, key, value string) error

	// Incr adds one to the integer at key, creating it at zero first, and
	// returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// IncrBy adds n to the integer at key and returns the new value.
	IncrBy(ctx context.Context, key string, n int64) (int64, error)

	// DecrBy subtracts n from the integer at key and returns the new value.
	// The value is allowed to go negative, exactly as its Redis counterpart.
	DecrBy(ctx context.Context, key string, n int64) (int64, error)

	// ZAdd inserts member into the sorted set at key with the given score,
	// re-scoring the member if it already exists.
	ZAdd(ctx context.Context, key string, score int64, member string) error

	// ZRangeByScore returns members with min <= score <= max in ascending
	// score order.
	ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error)

	// ZRevRangeByScore returns up to count members with score <= max in
	// descending score order. count <= 0 means no limit.
	ZRevRangeByScore(ctx context.Context, key string, max, count int64) ([]string, error)

	// ZRemRangeByScore removes members with min <= score <= max and returns
	// the number removed.
	ZRemRangeByScore(ctx context.Context, key string, min, max int64) (int64, error)

	// Batch executes cmds in order and returns exactly one Result per
	// command. Failures of individual commands are reported through the
	// matching Result and do not stop the batch; the returned error is
	// reserved for failures of the round trip as a whole, in which case no
	// Results are returned.
	Batch(ctx context.Context, cmds []Command) ([]Result, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connections.
	Close() error
}

// Result carries the outcome of one batched command. Value is nil when the
// addressed key was absent, int64 for arithmetic commands, string for Get
// and []string for range commands.
type Result struct {
	Value any
	Err   error
}

// Int64 interprets the result as an integer counter. An absent key reads
// as zero.
func (r Result) Int64() (int64, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	switch v := r.Value.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("non-integer value %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected value type %T", r.Value)
	}
}

// Strings interprets the result as the member list of a range command.
func (r Result) Strings() ([]string, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	switch v := r.Value.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected value type %T", r.Value)
	}
}
