package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uttam1728/event-analytics/internal/models"
)

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) Increment(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	return f.counts[key], nil
}

type fakeAppender struct {
	appended []models.Event
	err      error
}

func (f *fakeAppender) Append(_ context.Context, event models.Event) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.appended = append(f.appended, event)
	return "1-0", nil
}

type fakeRegistry struct {
	ids map[string]bool
	err error
}

func (f *fakeRegistry) Register(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.ids == nil {
		f.ids = make(map[string]bool)
	}
	if f.ids[id] {
		return false, nil
	}
	f.ids[id] = true
	return true, nil
}

func (f *fakeRegistry) Unregister(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.ids, id)
	return nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func validEvent() models.Event {
	return models.Event{
		EventID:   "9f1c1f6e-8d3a-4a1e-b8f7-0a4c5d6e7f80",
		UserID:    "user_1.a-b",
		Timestamp: time.Date(2024, 6, 7, 12, 34, 10, 0, time.UTC),
		EventType: models.EventTypePageView,
	}
}

func TestSubmit_AcceptsValidEvent(t *testing.T) {
	counter := &fakeCounter{}
	appender := &fakeAppender{}
	gw := NewGateway(counter, appender, &fakeRegistry{}, testLogger())

	receipt, err := gw.Submit(context.Background(), validEvent())
	require.NoError(t, err)

	assert.True(t, receipt.Accepted)
	assert.Equal(t, "9f1c1f6e-8d3a-4a1e-b8f7-0a4c5d6e7f80", receipt.EventID)
	assert.Equal(t, int64(1), counter.counts["page_view_2024-06-07_12:34"])
	require.Len(t, appender.appended, 1)
	assert.Equal(t, "9f1c1f6e-8d3a-4a1e-b8f7-0a4c5d6e7f80", appender.appended[0].EventID)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Event)
		field  string
	}{
		{"missing event_id", func(e *models.Event) { e.EventID = "" }, "event_id"},
		{"non-uuid event_id", func(e *models.Event) { e.EventID = "not-a-uuid" }, "event_id"},
		{"missing user_id", func(e *models.Event) { e.UserID = "" }, "user_id"},
		{"bad user_id charset", func(e *models.Event) { e.UserID = "user one" }, "user_id"},
		{"missing timestamp", func(e *models.Event) { e.Timestamp = time.Time{} }, "timestamp"},
		{"wrong event_type", func(e *models.Event) { e.EventType = "click" }, "event_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &fakeCounter{}
			appender := &fakeAppender{}
			gw := NewGateway(counter, appender, &fakeRegistry{}, testLogger())

			event := validEvent()
			tt.mutate(&event)

			receipt, err := gw.Submit(context.Background(), event)
			assert.False(t, receipt.Accepted)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)

			// Invalid events are never counted or enqueued.
			assert.Empty(t, counter.counts)
			assert.Empty(t, appender.appended)
		})
	}
}

func TestSubmit_RejectsDuplicateID(t *testing.T) {
	counter := &fakeCounter{}
	appender := &fakeAppender{}
	gw := NewGateway(counter, appender, &fakeRegistry{}, testLogger())

	first, err := gw.Submit(context.Background(), validEvent())
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := gw.Submit(context.Background(), validEvent())
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.False(t, second.Accepted)

	// The duplicate is neither recounted nor re-enqueued.
	assert.Equal(t, int64(1), counter.counts["page_view_2024-06-07_12:34"])
	assert.Len(t, appender.appended, 1)
}

func TestSubmit_RegistryUnavailable(t *testing.T) {
	gw := NewGateway(&fakeCounter{}, &fakeAppender{}, &fakeRegistry{err: errors.New("connection refused")}, testLogger())

	receipt, err := gw.Submit(context.Background(), validEvent())
	assert.False(t, receipt.Accepted)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSubmit_CountedButNotQueued(t *testing.T) {
	counter := &fakeCounter{}
	appender := &fakeAppender{err: errors.New("connection refused")}
	gw := NewGateway(counter, appender, &fakeRegistry{}, testLogger())

	receipt, err := gw.Submit(context.Background(), validEvent())
	assert.False(t, receipt.Accepted)
	assert.ErrorIs(t, err, ErrUnavailable)

	// The increment happened before the failed append; the inconsistency
	// window is reported, never hidden.
	assert.Equal(t, int64(1), counter.counts["page_view_2024-06-07_12:34"])
}

func TestSubmit_RetryAfterAppendFailureIsNotADuplicate(t *testing.T) {
	counter := &fakeCounter{}
	appender := &fakeAppender{err: errors.New("connection refused")}
	reg := &fakeRegistry{}
	gw := NewGateway(counter, appender, reg, testLogger())

	receipt, err := gw.Submit(context.Background(), validEvent())
	require.ErrorIs(t, err, ErrUnavailable)
	require.False(t, receipt.Accepted)

	// The append failed, so the id claim must have been released: the
	// caller's retry is a fresh submission, not a duplicate.
	appender.err = nil
	receipt, err = gw.Submit(context.Background(), validEvent())
	require.NoError(t, err)
	assert.True(t, receipt.Accepted)
	require.Len(t, appender.appended, 1)
	assert.Equal(t, "9f1c1f6e-8d3a-4a1e-b8f7-0a4c5d6e7f80", appender.appended[0].EventID)
}

func TestSubmit_CounterFailureStillQueues(t *testing.T) {
	counter := &fakeCounter{err: errors.New("connection refused")}
	appender := &fakeAppender{}
	gw := NewGateway(counter, appender, &fakeRegistry{}, testLogger())

	receipt, err := gw.Submit(context.Background(), validEvent())
	require.NoError(t, err)
	assert.True(t, receipt.Accepted)
	assert.Len(t, appender.appended, 1)
}

func TestValidateEvent_NormalizesTimestampToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	event := validEvent()
	event.Timestamp = time.Date(2024, 6, 7, 14, 34, 10, 0, loc)

	require.NoError(t, ValidateEvent(&event))
	assert.Equal(t, time.UTC, event.Timestamp.Location())
	assert.Equal(t, 12, event.Timestamp.Hour())
}
