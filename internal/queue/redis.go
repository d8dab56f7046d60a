package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Uttam1728/event-analytics/internal/models"
)

// Stream is a durable queue on a Redis stream. Appends are retained until
// every consumer group has acknowledged them; per-group claim state lives
// in the stream's pending entries list, so a crashed consumer's entries
// can be reclaimed by a peer or a restarted instance.
type Stream struct {
	client *redis.Client
	name   string
}

func NewStream(client *redis.Client, name string) *Stream {
	return &Stream{client: client, name: name}
}

func (s *Stream) Name() string {
	return s.name
}

// RegisterGroup creates a consumer group reading from the start of the
// stream. An already existing group is fine.
func (s *Stream) RegisterGroup(ctx context.Context, group string) error {
	err := s.client.XGroupCreateMkStream(ctx, s.name, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", group, err)
	}
	return nil
}

// Append adds an event to the stream and returns its sequence id.
func (s *Stream) Append(ctx context.Context, event models.Event) (string, error) {
	values := map[string]interface{}{
		"event_id":   event.EventID,
		"user_id":    event.UserID,
		"timestamp":  event.Timestamp.UTC().Format(time.RFC3339Nano),
		"event_type": string(event.EventType),
		"queued_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	// Stream fields take scalars only, so the payload travels as a JSON string.
	if len(event.Payload) > 0 {
		values["payload"] = string(event.Payload)
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append to stream %s: %w", s.name, err)
	}
	return id, nil
}

// Read delivers up to count entries that are not pending for the group,
// marking them pending for consumer. It blocks up to block when nothing is
// available and then returns an empty slice.
func (s *Stream) Read(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{s.name, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read group %s: %w", group, err)
	}

	var entries []Entry
	for _, st := range streams {
		for _, msg := range st.Messages {
			entries = append(entries, entryFromMessage(msg, 1))
		}
	}
	return entries, nil
}

// Ack removes entries from the group's pending set. Acknowledging an
// already acknowledged id is a no-op.
func (s *Stream) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, s.name, group, ids...).Err(); err != nil {
		return fmt.Errorf("ack %d entries: %w", len(ids), err)
	}
	return nil
}

// Reclaim transfers entries pending longer than staleAfter to consumer and
// redelivers them. Delivery counts come from the pending entries list, so a
// caller can spot entries that have exceeded their retry budget.
func (s *Stream) Reclaim(ctx context.Context, group, consumer string, staleAfter time.Duration, count int64) ([]Entry, error) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.name,
		Group:  group,
		Idle:   staleAfter,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list stale pending entries: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	retries := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		retries[p.ID] = p.RetryCount
	}

	msgs, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   s.name,
		Group:    group,
		Consumer: consumer,
		MinIdle:  staleAfter,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claim stale entries: %w", err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		// XCLAIM bumps the delivery counter for the new consumer.
		entries = append(entries, entryFromMessage(msg, retries[msg.ID]+1))
	}
	return entries, nil
}

// DeadLetter moves an entry to the side stream <name>:dead and
// acknowledges the original so it is never redelivered.
func (s *Stream) DeadLetter(ctx context.Context, group string, entry Entry, reason string) error {
	record, err := json.Marshal(entry.Event)
	if err != nil {
		record = []byte(fmt.Sprintf("%+v", entry.Event))
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name + ":dead",
		Values: map[string]interface{}{
			"source_id":      entry.ID,
			"group":          group,
			"delivery_count": entry.DeliveryCount,
			"reason":         reason,
			"event":          string(record),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("dead-letter %s: %w", entry.ID, err)
	}
	return s.Ack(ctx, group, entry.ID)
}

// Len reports the number of retained entries.
func (s *Stream) Len(ctx context.Context) (int64, error) {
	n, err := s.client.XLen(ctx, s.name).Result()
	if err != nil {
		return 0, fmt.Errorf("stream length: %w", err)
	}
	return n, nil
}

// PendingCount reports how many entries are pending for a group.
func (s *Stream) PendingCount(ctx context.Context, group string) (int64, error) {
	p, err := s.client.XPending(ctx, s.name, group).Result()
	if err != nil {
		return 0, fmt.Errorf("pending summary for %s: %w", group, err)
	}
	return p.Count, nil
}

// Trim discards entries acknowledged by every consumer group. For each
// group the boundary is its lowest pending id, or the id after its last
// delivered one when nothing is pending; everything below the minimum
// boundary across groups is gone for good.
func (s *Stream) Trim(ctx context.Context) (int64, error) {
	groups, err := s.client.XInfoGroups(ctx, s.name).Result()
	if err != nil {
		return 0, fmt.Errorf("list consumer groups: %w", err)
	}
	if len(groups) == 0 {
		return 0, nil
	}

	boundaries := make([]streamID, 0, len(groups))
	for _, g := range groups {
		p, err := s.client.XPending(ctx, s.name, g.Name).Result()
		if err != nil {
			return 0, fmt.Errorf("pending summary for %s: %w", g.Name, err)
		}
		boundary, err := ackBoundary(g.LastDeliveredID, p.Count, p.Lower)
		if err != nil {
			return 0, err
		}
		boundaries = append(boundaries, boundary)
	}

	removed, err := s.client.XTrimMinID(ctx, s.name, minBoundary(boundaries).String()).Result()
	if err != nil {
		return 0, fmt.Errorf("trim stream: %w", err)
	}
	return removed, nil
}

func entryFromMessage(msg redis.XMessage, deliveryCount int64) Entry {
	e := Entry{ID: msg.ID, DeliveryCount: deliveryCount}
	e.Event.EventID = stringField(msg.Values, "event_id")
	e.Event.UserID = stringField(msg.Values, "user_id")
	e.Event.EventType = models.EventType(stringField(msg.Values, "event_type"))
	if ts, err := time.Parse(time.RFC3339Nano, stringField(msg.Values, "timestamp")); err == nil {
		e.Event.Timestamp = ts
	}
	if qa, err := time.Parse(time.RFC3339Nano, stringField(msg.Values, "queued_at")); err == nil {
		e.QueuedAt = qa
	}
	if payload := stringField(msg.Values, "payload"); payload != "" {
		e.Event.Payload = json.RawMessage(payload)
	}
	return e
}

func stringField(values map[string]interface{}, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
