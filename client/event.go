package client

import (
	"fmt"

	"github.com/voxisys/utapi/schema"
)

// Event carries the measurable payload of one storage operation. Only the
// fields the operation's accounting consumes need to be set; all sizes are
// bytes. Pointer fields distinguish "absent" from a legitimate zero.
type Event struct {
	// Bucket and AccountID select the granularities the event can be
	// recorded at. Service-level recording always applies and uses the
	// component name the client was configured with.
	Bucket    string
	AccountID string

	// ByteLength is the stored size of the data a delete removes.
	ByteLength *int64

	// NewByteLength is the size of the incoming object or part, or of the
	// payload served by a read.
	NewByteLength *int64

	// OldByteLength is the size of the object an overwrite replaces. Leave
	// nil when the object key did not exist before.
	OldByteLength *int64

	// NumberOfObjects is how many objects a delete removes.
	NumberOfObjects *int64
}

// requireProperties rejects events that lack the numeric fields the
// operation folds into counters. Operations not listed here have no
// numeric preconditions.
func requireProperties(op schema.Operation, ev Event) error {
	switch op {
	case schema.OpPutObject, schema.OpCopyObject, schema.OpUploadPart, schema.OpGetObject:
		if ev.NewByteLength == nil {
			return fmt.Errorf("%w: %s needs NewByteLength", ErrMissingProperty, op)
		}
	case schema.OpDeleteObject, schema.OpMultiObjectDelete:
		if ev.ByteLength == nil {
			return fmt.Errorf("%w: %s needs ByteLength", ErrMissingProperty, op)
		}
		if ev.NumberOfObjects == nil {
			return fmt.Errorf("%w: %s needs NumberOfObjects", ErrMissingProperty, op)
		}
	}
	return nil
}
