package datastore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory behind one mutex. It backs
// tests and scratch deployments that run without a durable store, and it
// follows the same value and absence conventions as the Redis adapter.
type MemoryStore struct {
	mu      sync.Mutex
	strings map[string]string
	zsets   map[string][]zentry
}

type zentry struct {
	score  int64
	member string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		zsets:   make(map[string][]zentry),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	return nil
}

func (m *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrBy(ctx, key, 1)
}

func (m *MemoryStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(key, n)
}

func (m *MemoryStore) DecrBy(ctx context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(key, -n)
}

func (m *MemoryStore) ZAdd(ctx context.Context, key string, score int64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zaddLocked(key, score, member)
	return nil
}

func (m *MemoryStore) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.zsets[key] {
		if e.score >= min && e.score <= max {
			out = append(out, e.member)
		}
	}
	return out, nil
}

func (m *MemoryStore) ZRevRangeByScore(ctx context.Context, key string, max, count int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zrevLocked(key, max, count), nil
}

func (m *MemoryStore) ZRemRangeByScore(ctx context.Context, key string, min, max int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zremLocked(key, min, max), nil
}

func (m *MemoryStore) Batch(ctx context.Context, cmds []Command) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]Result, len(cmds))
	for i, c := range cmds {
		results[i] = m.applyLocked(c)
	}
	return results, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) applyLocked(c Command) Result {
	switch c.kind {
	case cmdGet:
		v, ok := m.strings[c.key]
		if !ok {
			return Result{}
		}
		return Result{Value: v}
	case cmdSet:
		m.strings[c.key] = c.member
		return Result{}
	case cmdIncr:
		return intResult(m.addLocked(c.key, 1))
	case cmdIncrBy:
		return intResult(m.addLocked(c.key, c.n))
	case cmdDecrBy:
		return intResult(m.addLocked(c.key, -c.n))
	case cmdZAdd:
		return Result{Value: m.zaddLocked(c.key, c.n, c.member)}
	case cmdZRemRangeByScore:
		return Result{Value: m.zremLocked(c.key, c.n, c.max)}
	case cmdZRevRangeByScoreFirst:
		return Result{Value: m.zrevLocked(c.key, c.max, 1)}
	default:
		return Result{Err: fmt.Errorf("invalid command %q", c.String())}
	}
}

func intResult(n int64, err error) Result {
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: n}
}

func (m *MemoryStore) addLocked(key string, delta int64) (int64, error) {
	var cur int64
	if raw, ok := m.strings[key]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		cur = n
	}
	cur += delta
	m.strings[key] = strconv.FormatInt(cur, 10)
	return cur, nil
}

// zaddLocked keeps each set ordered by (score, member) so range reads are
// simple slices. It returns 1 when the member is new, 0 when it was
// re-scored, mirroring ZADD.
func (m *MemoryStore) zaddLocked(key string, score int64, member string) int64 {
	entries := m.zsets[key]
	added := int64(1)
	for i := range entries {
		if entries[i].member == member {
			entries = append(entries[:i], entries[i+1:]...)
			added = 0
			break
		}
	}
	at := sort.Search(len(entries), func(i int) bool {
		if entries[i].score != score {
			return entries[i].score > score
		}
		return entries[i].member > member
	})
	entries = append(entries, zentry{})
	copy(entries[at+1:], entries[at:])
	entries[at] = zentry{score: score, member: member}
	m.zsets[key] = entries
	return added
}

func (m *MemoryStore) zremLocked(key string, min, max int64) int64 {
	entries := m.zsets[key]
	kept := entries[:0]
	var removed int64
	for _, e := range entries {
		if e.score >= min && e.score <= max {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(m.zsets, key)
	} else {
		m.zsets[key] = kept
	}
	return removed
}

func (m *MemoryStore) zrevLocked(key string, max, count int64) []string {
	entries := m.zsets[key]
	var out []string
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].score > max {
			continue
		}
		out = append(out, entries[i].member)
		if count > 0 && int64(len(out)) == count {
			break
		}
	}
	return out
}
