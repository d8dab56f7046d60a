package ingest

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed event envelope. These requests are
// never counted or enqueued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	// ErrDuplicate means the event id was accepted before.
	ErrDuplicate = errors.New("event id already accepted")

	// ErrUnavailable means the counter store or the queue is unreachable.
	// Callers should treat it as retryable.
	ErrUnavailable = errors.New("store unavailable")
)
