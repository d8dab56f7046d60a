package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	EventsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_events_accepted_total",
		Help: "The total number of events accepted at ingestion",
	})
	EventsRejectedInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_events_rejected_invalid_total",
		Help: "The total number of events rejected by envelope validation",
	})
	EventsRejectedDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_events_rejected_duplicate_total",
		Help: "The total number of events rejected as duplicate event ids",
	})
	BucketIncrementErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_bucket_increment_errors_total",
		Help: "The total number of failed minute-bucket increments",
	})
	CountedNotQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_counted_not_queued_total",
		Help: "Events counted in a minute bucket but not appended to the queue",
	})

	BatchesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persistence_batches_written_total",
		Help: "The total number of batches durably written to event files",
	})
	EntriesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persistence_entries_written_total",
		Help: "The total number of entries written to event files",
	})
	DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persistence_duplicates_skipped_total",
		Help: "Redelivered entries suppressed by the recent-id window",
	})
	WriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persistence_write_failures_total",
		Help: "The total number of failed batch writes",
	})
	EntriesReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persistence_entries_reclaimed_total",
		Help: "Stale pending entries reclaimed for redelivery",
	})
	EntriesDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persistence_entries_dead_lettered_total",
		Help: "Entries routed to the dead-letter stream",
	})
	FilesRotated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persistence_files_rotated_total",
		Help: "The total number of closed (rotated) event files",
	})
)

// Serve exposes /metrics on its own listener so scraping never contends
// with the ingestion port.
func Serve(addr string, log *logrus.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Infof("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("metrics listener stopped: %v", err)
		}
	}()
}
