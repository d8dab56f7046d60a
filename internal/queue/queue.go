// Package queue provides an append-only durable event log with consumer
// groups, at-least-once delivery, claim/reclaim recovery and dead-lettering,
// backed by a Redis stream.
package queue

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Uttam1728/event-analytics/internal/models"
)

// Entry is one delivered queue element. ID is the stream sequence id
// assigned at append time. DeliveryCount starts at 1 on first delivery
// and grows on every reclaim.
type Entry struct {
	ID            string
	Event         models.Event
	DeliveryCount int64
	QueuedAt      time.Time
}

// streamID is a parsed Redis stream id (<ms>-<seq>).
type streamID struct {
	ms  uint64
	seq uint64
}

func parseStreamID(id string) (streamID, error) {
	dash := strings.IndexByte(id, '-')
	if dash < 0 {
		return streamID{}, fmt.Errorf("malformed stream id %q", id)
	}
	ms, err := strconv.ParseUint(id[:dash], 10, 64)
	if err != nil {
		return streamID{}, fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	seq, err := strconv.ParseUint(id[dash+1:], 10, 64)
	if err != nil {
		return streamID{}, fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	return streamID{ms: ms, seq: seq}, nil
}

func (s streamID) String() string {
	return strconv.FormatUint(s.ms, 10) + "-" + strconv.FormatUint(s.seq, 10)
}

func (s streamID) less(o streamID) bool {
	if s.ms != o.ms {
		return s.ms < o.ms
	}
	return s.seq < o.seq
}

// next returns the id immediately following s.
func (s streamID) next() streamID {
	if s.seq == ^uint64(0) {
		return streamID{ms: s.ms + 1, seq: 0}
	}
	return streamID{ms: s.ms, seq: s.seq + 1}
}

// ackBoundary is the first id a group has not fully acknowledged: its
// lowest pending id when entries are pending, otherwise the id right
// after its last delivered one.
func ackBoundary(lastDelivered string, pendingCount int64, lowestPending string) (streamID, error) {
	if pendingCount > 0 {
		return parseStreamID(lowestPending)
	}
	last, err := parseStreamID(lastDelivered)
	if err != nil {
		return streamID{}, err
	}
	return last.next(), nil
}

// minBoundary picks the lowest boundary across groups; only entries below
// it are acknowledged by every group and safe to discard.
func minBoundary(boundaries []streamID) streamID {
	min := boundaries[0]
	for _, b := range boundaries[1:] {
		if b.less(min) {
			min = b
		}
	}
	return min
}
