package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Uttam1728/event-analytics/internal/models"
)

// Key format: <event_type>_YYYY-MM-DD_HH:MM, always UTC.
const keyTimeLayout = "2006-01-02_15:04"

// Truncate floors a timestamp to its minute boundary in UTC.
func Truncate(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Minute)
}

// Key derives the minute-bucket key for an event type and timestamp.
// Events between 10:00:00 and 10:00:59 belong to the "10:00" bucket.
func Key(eventType models.EventType, ts time.Time) string {
	return fmt.Sprintf("%s_%s", eventType, Truncate(ts).Format(keyTimeLayout))
}

// incrWithTTLScript creates the bucket at 1 with a TTL on first increment
// and refreshes the TTL on every later one, as a single atomic step.
var incrWithTTLScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[1])
return count
`)

// Store keeps per-minute counters in Redis. Increments are atomic;
// expired or absent buckets read as zero.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	count, err := incrWithTTLScript.Run(ctx, s.client, []string{key}, int(s.ttl.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment bucket %s: %w", key, err)
	}
	return count, nil
}

func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get bucket %s: %w", key, err)
	}
	return count, nil
}

// ListRecent returns counts for the n minutes ending at now's minute
// inclusive, ascending, with absent minutes reported as zero.
func (s *Store) ListRecent(ctx context.Context, eventType models.EventType, now time.Time, n int) ([]models.MinutePoint, error) {
	minutes := Window(now, n)
	points := make([]models.MinutePoint, 0, len(minutes))
	for _, m := range minutes {
		count, err := s.Get(ctx, Key(eventType, m))
		if err != nil {
			return nil, err
		}
		points = append(points, models.MinutePoint{
			MinuteTimestamp: m.Format("2006-01-02T15:04:05Z"),
			Count:           count,
		})
	}
	return points, nil
}

// Window lists the n minute boundaries ending at now's minute inclusive,
// in ascending order.
func Window(now time.Time, n int) []time.Time {
	end := Truncate(now)
	minutes := make([]time.Time, 0, n)
	for i := n - 1; i >= 0; i-- {
		minutes = append(minutes, end.Add(-time.Duration(i)*time.Minute))
	}
	return minutes
}
