package datastore

import (
	"fmt"
	"strconv"
)

type cmdKind uint8

const (
	cmdGet cmdKind = iota + 1
	cmdSet
	cmdIncr
	cmdIncrBy
	cmdDecrBy
	cmdZAdd
	cmdZRemRangeByScore
	cmdZRevRangeByScoreFirst
)

// Command is one element of a Batch. Build values with the constructors in
// this package; the zero Command is invalid.
type Command struct {
	kind   cmdKind
	key    string
	n      int64  // incrby/decrby amount, zadd score, range min
	max    int64  // range max
	member string // zadd member, set value
}

// Get reads the string value at key. An absent key yields a nil Result
// value, not an error.
func Get(key string) Command { return Command{kind: cmdGet, key: key} }

// Set stores value at key.
func Set(key, value string) Command { return Command{kind: cmdSet, key: key, member: value} }

// Incr adds one to the integer at key.
func Incr(key string) Command { return Command{kind: cmdIncr, key: key} }

// IncrBy adds n to the integer at key.
func IncrBy(key string, n int64) Command { return Command{kind: cmdIncrBy, key: key, n: n} }

// DecrBy subtracts n from the integer at key.
func DecrBy(key string, n int64) Command { return Command{kind: cmdDecrBy, key: key, n: n} }

// ZAdd inserts member with score into the sorted set at key.
func ZAdd(key string, score int64, member string) Command {
	return Command{kind: cmdZAdd, key: key, n: score, member: member}
}

// ZRemRangeByScore removes members of the sorted set at key with
// min <= score <= max.
func ZRemRangeByScore(key string, min, max int64) Command {
	return Command{kind: cmdZRemRangeByScore, key: key, n: min, max: max}
}

// ZRevRangeByScoreFirst fetches the single member with the highest score
// not exceeding max.
func ZRevRangeByScoreFirst(key string, max int64) Command {
	return Command{kind: cmdZRevRangeByScoreFirst, key: key, max: max}
}

// Key returns the key the command addresses.
func (c Command) Key() string { return c.key }

// String renders the command in wire form, which keeps store error logs
// readable, e.g. "incrby bucket:photos:counter:storageUtilized 2048".
func (c Command) String() string {
	switch c.kind {
	case cmdGet:
		return "get " + c.key
	case cmdSet:
		return "set " + c.key + " " + c.member
	case cmdIncr:
		return "incr " + c.key
	case cmdIncrBy:
		return "incrby " + c.key + " " + strconv.FormatInt(c.n, 10)
	case cmdDecrBy:
		return "decrby " + c.key + " " + strconv.FormatInt(c.n, 10)
	case cmdZAdd:
		return "zadd " + c.key + " " + strconv.FormatInt(c.n, 10) + " " + c.member
	case cmdZRemRangeByScore:
		return fmt.Sprintf("zremrangebyscore %s %d %d", c.key, c.n, c.max)
	case cmdZRevRangeByScoreFirst:
		return fmt.Sprintf("zrevrangebyscore %s %d -inf limit 0 1", c.key, c.max)
	default:
		return fmt.Sprintf("invalid(%d)", c.kind)
	}
}
