package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uttam1728/event-analytics/internal/bucket"
	"github.com/Uttam1728/event-analytics/internal/ingest"
	"github.com/Uttam1728/event-analytics/internal/models"
	"github.com/Uttam1728/event-analytics/internal/status"
)

type fakeGateway struct {
	err error
}

func (f *fakeGateway) Submit(_ context.Context, event models.Event) (ingest.Receipt, error) {
	if f.err != nil {
		return ingest.Receipt{Accepted: false, EventID: event.EventID}, f.err
	}
	return ingest.Receipt{Accepted: true, EventID: event.EventID}, nil
}

type fakeBuckets struct {
	counts map[string]int64
}

func (f *fakeBuckets) Get(_ context.Context, key string) (int64, error) {
	return f.counts[key], nil
}

func (f *fakeBuckets) ListRecent(_ context.Context, eventType models.EventType, now time.Time, n int) ([]models.MinutePoint, error) {
	points := make([]models.MinutePoint, 0, n)
	for _, m := range bucket.Window(now, n) {
		points = append(points, models.MinutePoint{
			MinuteTimestamp: m.Format("2006-01-02T15:04:05Z"),
			Count:           f.counts[bucket.Key(eventType, m)],
		})
	}
	return points, nil
}

type fakeReporter struct {
	snap status.Snapshot
	err  error
}

func (f *fakeReporter) Snapshot(context.Context) (status.Snapshot, error) {
	return f.snap, f.err
}

func newApp(gw Submitter, buckets BucketReader, reporter Snapshotter, dataDir string) *fiber.App {
	app := fiber.New()
	eh := NewEventHandler(gw)
	ah := NewAnalyticsHandler(buckets)
	sh := NewStatusHandler(reporter, dataDir)

	app.Post("/events", eh.HandleEvent)
	app.Get("/analytics/page_views_per_minute", ah.HandlePageViewsPerMinute)
	app.Get("/analytics/minute-buckets/:bucket_key", ah.HandleMinuteBucket)
	app.Get("/persist-events/status", sh.HandleStatus)
	app.Get("/persist-events/files", sh.HandleFiles)
	app.Get("/health", sh.HandleHealth)
	return app
}

func postEvent(t *testing.T, app *fiber.App, body string) (int, models.EventResponse) {
	t.Helper()
	req := httptest.NewRequest("POST", "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out models.EventResponse
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	return resp.StatusCode, out
}

const validBody = `{
	"event_id": "9f1c1f6e-8d3a-4a1e-b8f7-0a4c5d6e7f80",
	"user_id": "user-1",
	"timestamp": "2024-06-07T12:34:10Z",
	"event_type": "page_view",
	"payload": {"page_url": "https://example.com/home"}
}`

func TestHandleEvent_Accepted(t *testing.T) {
	app := newApp(&fakeGateway{}, &fakeBuckets{}, &fakeReporter{}, t.TempDir())

	code, out := postEvent(t, app, validBody)
	assert.Equal(t, fiber.StatusCreated, code)
	assert.True(t, out.Accepted)
	assert.Equal(t, "9f1c1f6e-8d3a-4a1e-b8f7-0a4c5d6e7f80", out.EventID)
}

func TestHandleEvent_BadBody(t *testing.T) {
	app := newApp(&fakeGateway{}, &fakeBuckets{}, &fakeReporter{}, t.TempDir())

	code, out := postEvent(t, app, "{not json")
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.False(t, out.Accepted)
}

func TestHandleEvent_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &ingest.ValidationError{Field: "user_id", Message: "user_id is required"}, fiber.StatusBadRequest},
		{"duplicate", ingest.ErrDuplicate, fiber.StatusConflict},
		{"unavailable", ingest.ErrUnavailable, fiber.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(&fakeGateway{err: tt.err}, &fakeBuckets{}, &fakeReporter{}, t.TempDir())
			code, out := postEvent(t, app, validBody)
			assert.Equal(t, tt.code, code)
			assert.False(t, out.Accepted)
		})
	}
}

func TestHandlePageViewsPerMinute_ZeroPadded(t *testing.T) {
	now := time.Now().UTC()
	buckets := &fakeBuckets{counts: map[string]int64{
		bucket.Key(models.EventTypePageView, now): 3,
	}}
	app := newApp(&fakeGateway{}, buckets, &fakeReporter{}, t.TempDir())

	resp, err := app.Test(httptest.NewRequest("GET", "/analytics/page_views_per_minute", nil), 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		PageViews []models.MinutePoint `json:"page_views_per_minute"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.PageViews, 5)

	// Current minute carries the count, the rest of the window is zero.
	assert.Equal(t, int64(3), out.PageViews[4].Count)
	for _, p := range out.PageViews[:4] {
		assert.Equal(t, int64(0), p.Count)
	}
}

func TestHandleMinuteBucket(t *testing.T) {
	buckets := &fakeBuckets{counts: map[string]int64{
		"page_view_2024-06-07_12:34": 3,
	}}
	app := newApp(&fakeGateway{}, buckets, &fakeReporter{}, t.TempDir())

	resp, err := app.Test(httptest.NewRequest("GET", "/analytics/minute-buckets/page_view_2024-06-07_12:34", nil), 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(3), out["page_view_2024-06-07_12:34"])
}

func TestHandleMinuteBucket_AbsentIsZero(t *testing.T) {
	app := newApp(&fakeGateway{}, &fakeBuckets{}, &fakeReporter{}, t.TempDir())

	resp, err := app.Test(httptest.NewRequest("GET", "/analytics/minute-buckets/page_view_2024-06-07_00:00", nil), 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(0), out["page_view_2024-06-07_00:00"])
}

func TestHandleStatus(t *testing.T) {
	snap := status.Snapshot{
		QueueLength:  7,
		PendingCount: 2,
		WorkerAlive:  true,
	}
	app := newApp(&fakeGateway{}, &fakeBuckets{}, &fakeReporter{snap: snap}, t.TempDir())

	resp, err := app.Test(httptest.NewRequest("GET", "/persist-events/status", nil), 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out status.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(7), out.QueueLength)
	assert.Equal(t, int64(2), out.PendingCount)
	assert.True(t, out.WorkerAlive)
}

func TestHandleStatus_ReporterError(t *testing.T) {
	app := newApp(&fakeGateway{}, &fakeBuckets{}, &fakeReporter{err: errors.New("redis down")}, t.TempDir())

	resp, err := app.Test(httptest.NewRequest("GET", "/persist-events/status", nil), 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestHandleHealth(t *testing.T) {
	app := newApp(&fakeGateway{}, &fakeBuckets{}, &fakeReporter{}, t.TempDir())

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil), 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
