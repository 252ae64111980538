package lister

import "errors"

var (
	// ErrInvalidRequest rejects a query before it touches the store:
	// unknown granularity, no resources, malformed ids or time range.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInternal is the opaque failure callers see when the store cannot
	// answer; details are logged, never returned.
	ErrInternal = errors.New("internal error")
)
