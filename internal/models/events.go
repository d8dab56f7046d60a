package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypePageView EventType = "page_view"
)

// Event is the envelope accepted at ingestion. Payload is kept opaque;
// only the envelope fields are validated.
type Event struct {
	EventID   string          `json:"event_id"`
	UserID    string          `json:"user_id"`
	Timestamp time.Time       `json:"timestamp"`
	EventType EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PersistedRecord is one line in a persisted events file.
type PersistedRecord struct {
	StreamID    string          `json:"stream_id"`
	ProcessedAt time.Time       `json:"processed_at"`
	EventID     string          `json:"event_id"`
	UserID      string          `json:"user_id"`
	Timestamp   time.Time       `json:"timestamp"`
	EventType   EventType       `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type EventResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
	EventID  string `json:"event_id"`
}

type MinutePoint struct {
	MinuteTimestamp string `json:"minute_timestamp"`
	Count           int64  `json:"count"`
}

type FileInfo struct {
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	EventCount int64     `json:"event_count"`
	Modified   time.Time `json:"modified"`
}

type FilesResponse struct {
	Files          []FileInfo `json:"files"`
	TotalFiles     int        `json:"total_files"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
}
