package models

import (
	"database/sql"
	"time"
)

// FetchStatus is the lifecycle state of a fetch cursor
type FetchStatus string

const (
	StatusIdle                 FetchStatus = "idle"
	StatusRunning              FetchStatus = "running"
	StatusPaused               FetchStatus = "paused"
	StatusPausedMaxPages       FetchStatus = "paused_max_pages"
	StatusCompleted            FetchStatus = "completed"
	StatusErrorProcessingEvent FetchStatus = "error_processing_event"
	StatusErrorSkippedPage     FetchStatus = "error_skipped_page"
	StatusErrorUnexpected      FetchStatus = "error_unexpected"
)

// Resumable reports whether a new pass should continue after the stored page
func (s FetchStatus) Resumable() bool {
	return s == StatusPaused || s == StatusPausedMaxPages
}

// FetchState is the durable cursor for one fetch type
type FetchState struct {
	FetchType              string       `db:"fetch_type"`
	LastProcessedPage      int          `db:"last_processed_page"`
	LastProcessedTimestamp sql.NullTime `db:"last_processed_timestamp"`
	Status                 FetchStatus  `db:"status"`
	UpdatedAt              time.Time    `db:"updated_at"`
}

// FetchStateUpdate carries the optional fields of a cursor update.
// Nil fields are left unchanged.
type FetchStateUpdate struct {
	Page      *int
	Timestamp *time.Time
	Status    *FetchStatus
}
