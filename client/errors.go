package client

import "errors"

var (
	// ErrMissingProperty reports an event that lacks a numeric field the
	// operation's accounting needs. The push is rejected before any store
	// command is issued.
	ErrMissingProperty = errors.New("event is missing a required property")

	// ErrInternal is what callers see when the store misbehaves. The
	// specifics are written to the log, never propagated.
	ErrInternal = errors.New("internal error")
)
