package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AcceptedIDs records every accepted event id so a re-submission can be
// rejected before it is counted or enqueued again.
type AcceptedIDs struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAcceptedIDs(client *redis.Client, ttl time.Duration) *AcceptedIDs {
	return &AcceptedIDs{client: client, ttl: ttl}
}

// Register claims an event id. It returns false when the id was already
// accepted within the registry's retention window.
func (r *AcceptedIDs) Register(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("event:%s", eventID)

	// SETNX claims the id atomically across concurrent submissions.
	wasSet, err := r.client.SetNX(ctx, key, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return wasSet, nil
}

// Unregister releases a claimed id again. The gateway uses it when the
// queue append fails after the claim, so a retry of the same event is not
// mistaken for a duplicate.
func (r *AcceptedIDs) Unregister(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, fmt.Sprintf("event:%s", eventID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
