// Package worker runs the background persistence loop: it drains the
// durable queue in batches, writes entries to rotated event files and
// acknowledges them once the write is durably flushed.
package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Uttam1728/event-analytics/internal/metrics"
	"github.com/Uttam1728/event-analytics/internal/models"
	"github.com/Uttam1728/event-analytics/internal/queue"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Source is the queue surface the worker consumes.
type Source interface {
	Read(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]queue.Entry, error)
	Ack(ctx context.Context, group string, ids ...string) error
	Reclaim(ctx context.Context, group, consumer string, staleAfter time.Duration, count int64) ([]queue.Entry, error)
	DeadLetter(ctx context.Context, group string, entry queue.Entry, reason string) error
	Trim(ctx context.Context) (int64, error)
}

// Sink receives durably flushed batches of serialized records.
type Sink interface {
	WriteBatch(records [][]byte) error
}

type Config struct {
	Group         string
	Consumer      string
	BatchSize     int64
	BlockTimeout  time.Duration
	StaleAfter    time.Duration
	MaxDeliveries int64
	ReclaimEvery  time.Duration
	TrimEvery     time.Duration
	DedupWindow   int
}

// Worker is a single long-lived consumer under the persistence group. Its
// only blocking point is the bounded queue read, so shutdown is observed
// between iterations, never mid-write.
type Worker struct {
	source Source
	sink   Sink
	cfg    Config
	log    *logrus.Entry

	recent    *recentIDs
	state     atomic.Int32
	heartbeat atomic.Int64

	lastReclaim time.Time
	lastTrim    time.Time

	done chan struct{}
}

func New(source Source, sink Sink, cfg Config, log *logrus.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}

	return &Worker{
		source: source,
		sink:   sink,
		cfg:    cfg,
		log:    log.WithField("component", "persistence-worker"),
		recent: newRecentIDs(cfg.DedupWindow),
		done:   make(chan struct{}),
	}
}

// Run loops until ctx is cancelled. Per-batch errors are logged and
// counted; they never terminate the loop.
func (w *Worker) Run(ctx context.Context) {
	w.state.Store(int32(StateRunning))
	w.beat()
	w.log.WithFields(logrus.Fields{
		"group":    w.cfg.Group,
		"consumer": w.cfg.Consumer,
	}).Info("persistence worker started")

	defer func() {
		w.state.Store(int32(StateStopped))
		close(w.done)
		w.log.Info("persistence worker stopped")
	}()

	for {
		if ctx.Err() != nil {
			w.state.Store(int32(StateStopping))
			return
		}

		w.beat()
		w.maybeReclaim(ctx)

		entries, err := w.source.Read(ctx, w.cfg.Group, w.cfg.Consumer, w.cfg.BatchSize, w.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.state.Store(int32(StateStopping))
				return
			}
			w.log.Errorf("queue read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if len(entries) > 0 {
			w.processBatch(ctx, entries)
		}

		w.maybeTrim(ctx)
	}
}

// processBatch writes a batch to the sink and acknowledges every entry it
// wrote or deliberately skipped. A failed write acknowledges nothing, so
// the whole batch is redelivered.
func (w *Worker) processBatch(ctx context.Context, entries []queue.Entry) {
	records := make([][]byte, 0, len(entries))
	ackIDs := make([]string, 0, len(entries))
	written := make([]string, 0, len(entries))

	now := time.Now().UTC()
	for _, e := range entries {
		if w.recent.Seen(e.Event.EventID) {
			// Redelivered duplicate: skip the line but still ack, or the
			// entry would be redelivered forever.
			metrics.DuplicatesSkipped.Inc()
			ackIDs = append(ackIDs, e.ID)
			continue
		}

		record, err := json.Marshal(models.PersistedRecord{
			StreamID:    e.ID,
			ProcessedAt: now,
			EventID:     e.Event.EventID,
			UserID:      e.Event.UserID,
			Timestamp:   e.Event.Timestamp,
			EventType:   e.Event.EventType,
			Payload:     e.Event.Payload,
		})
		if err != nil {
			// A record that cannot serialize will never succeed; park it.
			w.deadLetter(ctx, e, "record serialization failed")
			continue
		}

		records = append(records, record)
		ackIDs = append(ackIDs, e.ID)
		written = append(written, e.Event.EventID)
	}

	if len(records) > 0 {
		if err := w.sink.WriteBatch(records); err != nil {
			metrics.WriteFailures.Inc()
			w.log.Errorf("batch write failed, leaving %d entries pending: %v", len(entries), err)
			return
		}
		metrics.BatchesWritten.Inc()
		metrics.EntriesWritten.Add(float64(len(records)))
	}

	for _, id := range written {
		w.recent.Add(id)
	}

	if err := w.source.Ack(w.ackContext(ctx), w.cfg.Group, ackIDs...); err != nil {
		// Entries stay pending and will be reclaimed; the dedup window
		// keeps the rewrite from duplicating lines.
		w.log.Errorf("ack failed for %d entries: %v", len(ackIDs), err)
		return
	}

	w.log.WithFields(logrus.Fields{
		"batch":   len(entries),
		"written": len(written),
		"skipped": len(entries) - len(written),
	}).Debug("batch persisted")
}

// maybeReclaim periodically takes over entries another (or a previous)
// consumer left pending past the staleness threshold.
func (w *Worker) maybeReclaim(ctx context.Context) {
	if w.cfg.ReclaimEvery <= 0 || time.Since(w.lastReclaim) < w.cfg.ReclaimEvery {
		return
	}
	w.lastReclaim = time.Now()

	entries, err := w.source.Reclaim(ctx, w.cfg.Group, w.cfg.Consumer, w.cfg.StaleAfter, w.cfg.BatchSize)
	if err != nil {
		w.log.Errorf("reclaim failed: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	metrics.EntriesReclaimed.Add(float64(len(entries)))
	w.log.WithField("count", len(entries)).Info("reclaimed stale pending entries")

	retry := entries[:0:0]
	for _, e := range entries {
		if e.DeliveryCount > w.cfg.MaxDeliveries {
			w.deadLetter(ctx, e, "delivery count exceeded")
			continue
		}
		retry = append(retry, e)
	}

	if len(retry) > 0 {
		w.processBatch(ctx, retry)
	}
}

func (w *Worker) maybeTrim(ctx context.Context) {
	if w.cfg.TrimEvery <= 0 || time.Since(w.lastTrim) < w.cfg.TrimEvery {
		return
	}
	w.lastTrim = time.Now()

	removed, err := w.source.Trim(ctx)
	if err != nil {
		w.log.Errorf("trim failed: %v", err)
		return
	}
	if removed > 0 {
		w.log.WithField("removed", removed).Debug("trimmed acknowledged entries")
	}
}

func (w *Worker) deadLetter(ctx context.Context, e queue.Entry, reason string) {
	metrics.EntriesDeadLettered.Inc()
	w.log.WithFields(logrus.Fields{
		"stream_id":      e.ID,
		"event_id":       e.Event.EventID,
		"delivery_count": e.DeliveryCount,
		"reason":         reason,
	}).Warn("entry dead-lettered")

	if err := w.source.DeadLetter(w.ackContext(ctx), w.cfg.Group, e, reason); err != nil {
		w.log.Errorf("dead-letter failed for %s: %v", e.ID, err)
	}
}

// ackContext keeps acks working during shutdown drain: once the loop's
// context is cancelled, acknowledgements of an in-flight batch run under a
// short detached deadline instead.
func (w *Worker) ackContext(ctx context.Context) context.Context {
	if ctx.Err() == nil {
		return ctx
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		<-drainCtx.Done()
		cancel()
	}()
	return drainCtx
}

func (w *Worker) beat() {
	w.heartbeat.Store(time.Now().UnixNano())
}

// Heartbeat reports the time of the most recent loop iteration.
func (w *Worker) Heartbeat() time.Time {
	ns := w.heartbeat.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Alive reports whether the heartbeat is younger than maxAge.
func (w *Worker) Alive(maxAge time.Duration) bool {
	hb := w.Heartbeat()
	return !hb.IsZero() && time.Since(hb) < maxAge
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// Done is closed once the loop has fully exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
