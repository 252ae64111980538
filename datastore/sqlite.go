package datastore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	// database/sql SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a single SQLite database. It exists for
// single-node deployments that want durable counters without operating a
// Redis; batches run inside one transaction instead of one pipeline.
type SQLiteStore struct{ db *sql.DB }

// NewSQLiteStore constructs the store, initializing the required schema if
// absent. The caller owns the handle; Close closes it.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	schema := `CREATE TABLE IF NOT EXISTS counters (
key TEXT PRIMARY KEY,
value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS samples (
key TEXT NOT NULL,
member TEXT NOT NULL,
score INTEGER NOT NULL,
PRIMARY KEY (key, member)
);
CREATE INDEX IF NOT EXISTS samples_by_score ON samples (key, score);`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so the command helpers
// serve direct calls and batches alike.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	return getQ(ctx, s.db, key)
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	return setQ(ctx, s.db, key, value)
}

func (s *SQLiteStore) Incr(ctx context.Context, key string) (int64, error) {
	return addQ(ctx, s.db, key, 1)
}

func (s *SQLiteStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	return addQ(ctx, s.db, key, n)
}

func (s *SQLiteStore) DecrBy(ctx context.Context, key string, n int64) (int64, error) {
	return addQ(ctx, s.db, key, -n)
}

func (s *SQLiteStore) ZAdd(ctx context.Context, key string, score int64, member string) error {
	return zaddQ(ctx, s.db, key, score, member)
}

func (s *SQLiteStore) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	return zrangeQ(ctx, s.db, key, min, max)
}

func (s *SQLiteStore) ZRevRangeByScore(ctx context.Context, key string, max, count int64) ([]string, error) {
	return zrevQ(ctx, s.db, key, max, count)
}

func (s *SQLiteStore) ZRemRangeByScore(ctx context.Context, key string, min, max int64) (int64, error) {
	return zremQ(ctx, s.db, key, min, max)
}

func (s *SQLiteStore) Batch(ctx context.Context, cmds []Command) ([]Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(cmds))
	for i, c := range cmds {
		results[i] = applyQ(ctx, tx, c)
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return results, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func applyQ(ctx context.Context, q querier, c Command) Result {
	switch c.kind {
	case cmdGet:
		v, err := getQ(ctx, q, c.key)
		if errors.Is(err, ErrNotFound) {
			return Result{}
		}
		if err != nil {
			return Result{Err: err}
		}
		return Result{Value: v}
	case cmdSet:
		return Result{Err: setQ(ctx, q, c.key, c.member)}
	case cmdIncr:
		return intResult(addQ(ctx, q, c.key, 1))
	case cmdIncrBy:
		return intResult(addQ(ctx, q, c.key, c.n))
	case cmdDecrBy:
		return intResult(addQ(ctx, q, c.key, -c.n))
	case cmdZAdd:
		return Result{Err: zaddQ(ctx, q, c.key, c.n, c.member)}
	case cmdZRemRangeByScore:
		return intResult(zremQ(ctx, q, c.key, c.n, c.max))
	case cmdZRevRangeByScoreFirst:
		v, err := zrevQ(ctx, q, c.key, c.max, 1)
		if err != nil {
			return Result{Err: err}
		}
		return Result{Value: v}
	default:
		return Result{Err: errors.New("invalid command " + strconv.Quote(c.String()))}
	}
}

func getQ(ctx context.Context, q querier, key string) (string, error) {
	const sel = `SELECT value FROM counters WHERE key = ?`
	var v string
	if err := q.QueryRowContext(ctx, sel, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func setQ(ctx context.Context, q querier, key, value string) error {
	const up = `INSERT INTO counters (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := q.ExecContext(ctx, up, key, value)
	return err
}

func addQ(ctx context.Context, q querier, key string, delta int64) (int64, error) {
	const up = `INSERT INTO counters (key, value) VALUES (?1, CAST(?2 AS TEXT))
ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(counters.value AS INTEGER) + ?2 AS TEXT)
RETURNING CAST(value AS INTEGER)`
	var v int64
	if err := q.QueryRowContext(ctx, up, key, delta).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func zaddQ(ctx context.Context, q querier, key string, score int64, member string) error {
	const up = `INSERT INTO samples (key, member, score) VALUES (?, ?, ?)
ON CONFLICT(key, member) DO UPDATE SET score = excluded.score`
	_, err := q.ExecContext(ctx, up, key, member, score)
	return err
}

func zremQ(ctx context.Context, q querier, key string, min, max int64) (int64, error) {
	const del = `DELETE FROM samples WHERE key = ? AND score BETWEEN ? AND ?`
	res, err := q.ExecContext(ctx, del, key, min, max)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func zrangeQ(ctx context.Context, q querier, key string, min, max int64) ([]string, error) {
	const sel = `SELECT member FROM samples WHERE key = ? AND score BETWEEN ? AND ?
ORDER BY score ASC, member ASC`
	return members(q.QueryContext(ctx, sel, key, min, max))
}

func zrevQ(ctx context.Context, q querier, key string, max, count int64) ([]string, error) {
	// SQLite treats a negative LIMIT as unlimited.
	if count <= 0 {
		count = -1
	}
	const sel = `SELECT member FROM samples WHERE key = ? AND score <= ?
ORDER BY score DESC, member DESC LIMIT ?`
	return members(q.QueryContext(ctx, sel, key, max, count))
}

func members(rows *sql.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
