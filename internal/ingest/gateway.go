package ingest

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Uttam1728/event-analytics/internal/bucket"
	"github.com/Uttam1728/event-analytics/internal/metrics"
	"github.com/Uttam1728/event-analytics/internal/models"
)

// Counter is the minute-bucket side of an accepted event.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
}

// Appender is the durable-queue side of an accepted event.
type Appender interface {
	Append(ctx context.Context, event models.Event) (string, error)
}

// Registry claims event ids; Register returns false for an id that was
// already accepted. Unregister releases a claim again when the submission
// it belongs to ultimately failed.
type Registry interface {
	Register(ctx context.Context, eventID string) (bool, error)
	Unregister(ctx context.Context, eventID string) error
}

// Receipt is the outcome of a submission.
type Receipt struct {
	Accepted bool
	EventID  string
}

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Gateway coordinates a single accepted event across the minute-bucket
// counter and the durable queue.
type Gateway struct {
	counter  Counter
	queue    Appender
	registry Registry
	log      *logrus.Entry
}

func NewGateway(counter Counter, queue Appender, registry Registry, log *logrus.Logger) *Gateway {
	return &Gateway{
		counter:  counter,
		queue:    queue,
		registry: registry,
		log:      log.WithField("component", "ingest"),
	}
}

// Submit validates the envelope, rejects duplicate ids, reflects the event
// in its minute bucket and appends it to the durable queue.
//
// The bucket is incremented before the append on purpose: the counter is a
// best-effort real-time signal, durability is the queue's job. When the
// append fails after a successful increment the request reports failure and
// the counted-not-queued case is logged and surfaced in metrics rather than
// hidden.
func (g *Gateway) Submit(ctx context.Context, event models.Event) (Receipt, error) {
	rejected := Receipt{Accepted: false, EventID: event.EventID}

	if err := ValidateEvent(&event); err != nil {
		metrics.EventsRejectedInvalid.Inc()
		return rejected, err
	}

	fresh, err := g.registry.Register(ctx, event.EventID)
	if err != nil {
		return rejected, fmt.Errorf("%w: id registry: %v", ErrUnavailable, err)
	}
	if !fresh {
		metrics.EventsRejectedDuplicate.Inc()
		g.log.WithField("event_id", event.EventID).Info("duplicate event id rejected")
		return rejected, ErrDuplicate
	}

	key := bucket.Key(event.EventType, event.Timestamp)
	if _, err := g.counter.Increment(ctx, key); err != nil {
		// The counter is best effort: the event is still durably queued.
		metrics.BucketIncrementErrors.Inc()
		g.log.WithFields(logrus.Fields{
			"event_id": event.EventID,
			"bucket":   key,
		}).Warnf("minute bucket increment failed: %v", err)
	}

	if _, err := g.queue.Append(ctx, event); err != nil {
		metrics.CountedNotQueued.Inc()
		g.log.WithFields(logrus.Fields{
			"event_id": event.EventID,
			"bucket":   key,
		}).Errorf("event counted but not queued: %v", err)
		// The event was never accepted, so release the id claim; otherwise
		// the caller's retry would be rejected as a duplicate.
		if relErr := g.registry.Unregister(ctx, event.EventID); relErr != nil {
			g.log.WithField("event_id", event.EventID).Errorf("failed to release id claim: %v", relErr)
		}
		return rejected, fmt.Errorf("%w: queue append: %v", ErrUnavailable, err)
	}

	metrics.EventsAccepted.Inc()
	return Receipt{Accepted: true, EventID: event.EventID}, nil
}

// ValidateEvent checks the envelope fields. The payload stays opaque.
func ValidateEvent(event *models.Event) error {
	if event.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "event_id is required"}
	}
	if _, err := uuid.Parse(event.EventID); err != nil {
		return &ValidationError{Field: "event_id", Message: "event_id must be a valid UUID"}
	}
	if event.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "user_id is required"}
	}
	if !userIDPattern.MatchString(event.UserID) {
		return &ValidationError{Field: "user_id", Message: "user_id can only contain alphanumeric characters, underscore, hyphen, and dot"}
	}
	if event.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp is required"}
	}
	if event.EventType != models.EventTypePageView {
		return &ValidationError{Field: "event_type", Message: fmt.Sprintf("invalid event_type: %s", event.EventType)}
	}
	event.Timestamp = event.Timestamp.UTC()
	return nil
}
