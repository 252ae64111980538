package datastore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore adapts a go-redis client to the Store port. A Batch is queued
// on one pipeline and executed in a single round trip.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an already configured client. The caller keeps
// ownership of client configuration; Close closes it.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	return s.client.IncrBy(ctx, key, n).Result()
}

func (s *RedisStore) DecrBy(ctx context.Context, key string, n int64) (int64, error) {
	return s.client.DecrBy(ctx, key, n).Result()
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score int64, member string) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err()
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	by := &redis.ZRangeBy{Min: formatScore(min), Max: formatScore(max)}
	return s.client.ZRangeByScore(ctx, key, by).Result()
}

func (s *RedisStore) ZRevRangeByScore(ctx context.Context, key string, max, count int64) ([]string, error) {
	by := &redis.ZRangeBy{Min: "-inf", Max: formatScore(max)}
	if count > 0 {
		by.Count = count
	}
	return s.client.ZRevRangeByScore(ctx, key, by).Result()
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max int64) (int64, error) {
	return s.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Result()
}

func (s *RedisStore) Batch(ctx context.Context, cmds []Command) ([]Result, error) {
	pipe := s.client.Pipeline()
	resolvers := make([]func() Result, len(cmds))
	for i, c := range cmds {
		resolvers[i] = queue(ctx, pipe, c)
	}
	// Exec surfaces the first per-command error; those are picked up from
	// the individual commands below. Only a failure of the round trip
	// itself aborts the whole batch.
	if _, err := pipe.Exec(ctx); err != nil && !isServerError(err) && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	results := make([]Result, len(resolvers))
	for i, resolve := range resolvers {
		results[i] = resolve()
	}
	return results, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }

func queue(ctx context.Context, pipe redis.Pipeliner, c Command) func() Result {
	switch c.kind {
	case cmdGet:
		cmd := pipe.Get(ctx, c.key)
		return func() Result { return stringCmdResult(cmd) }
	case cmdSet:
		cmd := pipe.Set(ctx, c.key, c.member, 0)
		return func() Result { return statusCmdResult(cmd) }
	case cmdIncr:
		cmd := pipe.Incr(ctx, c.key)
		return func() Result { return intCmdResult(cmd) }
	case cmdIncrBy:
		cmd := pipe.IncrBy(ctx, c.key, c.n)
		return func() Result { return intCmdResult(cmd) }
	case cmdDecrBy:
		cmd := pipe.DecrBy(ctx, c.key, c.n)
		return func() Result { return intCmdResult(cmd) }
	case cmdZAdd:
		cmd := pipe.ZAdd(ctx, c.key, redis.Z{Score: float64(c.n), Member: c.member})
		return func() Result { return intCmdResult(cmd) }
	case cmdZRemRangeByScore:
		cmd := pipe.ZRemRangeByScore(ctx, c.key, formatScore(c.n), formatScore(c.max))
		return func() Result { return intCmdResult(cmd) }
	case cmdZRevRangeByScoreFirst:
		cmd := pipe.ZRevRangeByScore(ctx, c.key, &redis.ZRangeBy{Min: "-inf", Max: formatScore(c.max), Count: 1})
		return func() Result { return stringsCmdResult(cmd) }
	default:
		return func() Result { return Result{Err: fmt.Errorf("invalid command %q", c.String())} }
	}
}

func intCmdResult(cmd *redis.IntCmd) Result {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return Result{}
	}
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: v}
}

func stringCmdResult(cmd *redis.StringCmd) Result {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return Result{}
	}
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: v}
}

func stringsCmdResult(cmd *redis.StringSliceCmd) Result {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return Result{}
	}
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: v}
}

func statusCmdResult(cmd *redis.StatusCmd) Result {
	if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return Result{Err: err}
	}
	return Result{}
}

// isServerError reports whether err was produced by the server rather than
// by the connection, e.g. a WRONGTYPE reply.
func isServerError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr)
}

func formatScore(n int64) string { return strconv.FormatInt(n, 10) }
