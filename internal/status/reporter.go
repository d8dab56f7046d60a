package status

import (
	"context"
	"time"

	"github.com/Uttam1728/event-analytics/internal/storage"
)

// QueueInfo is the read-only queue surface the reporter needs.
type QueueInfo interface {
	Len(ctx context.Context) (int64, error)
	PendingCount(ctx context.Context, group string) (int64, error)
}

// WorkerInfo is state the persistence worker publishes; reading it never
// blocks on worker internals.
type WorkerInfo interface {
	Heartbeat() time.Time
	Alive(maxAge time.Duration) bool
}

type Snapshot struct {
	QueueLength    int64     `json:"queue_length"`
	PendingCount   int64     `json:"pending_count"`
	FileCount      int       `json:"file_count"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	WorkerAlive    bool      `json:"worker_alive"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
	Timestamp      time.Time `json:"timestamp"`
}

// Reporter aggregates queue depth, pending count, file inventory and
// worker liveness into one health snapshot.
type Reporter struct {
	queue          QueueInfo
	worker         WorkerInfo
	group          string
	dataDir        string
	heartbeatStale time.Duration
}

func NewReporter(queue QueueInfo, worker WorkerInfo, group, dataDir string, heartbeatStale time.Duration) *Reporter {
	return &Reporter{
		queue:          queue,
		worker:         worker,
		group:          group,
		dataDir:        dataDir,
		heartbeatStale: heartbeatStale,
	}
}

func (r *Reporter) Snapshot(ctx context.Context) (Snapshot, error) {
	length, err := r.queue.Len(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	pending, err := r.queue.PendingCount(ctx, r.group)
	if err != nil {
		return Snapshot{}, err
	}
	fileCount, totalSize, err := storage.Stats(r.dataDir)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		QueueLength:    length,
		PendingCount:   pending,
		FileCount:      fileCount,
		TotalSizeBytes: totalSize,
		WorkerAlive:    r.worker.Alive(r.heartbeatStale),
		LastHeartbeat:  r.worker.Heartbeat().UTC(),
		Timestamp:      time.Now().UTC(),
	}, nil
}
