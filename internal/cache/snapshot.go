package cache

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable, successfully decoded provider dataset. Once
// published it must not be modified by anyone.
type Snapshot[T any] struct {
	Data        *T
	Fingerprint string
	FetchedAt   time.Time
	ExecutionID uuid.UUID
}

// NewSnapshot creates a snapshot stamped with the current time
func NewSnapshot[T any](data *T, fingerprint string, executionID uuid.UUID) *Snapshot[T] {
	return &Snapshot[T]{
		Data:        data,
		Fingerprint: fingerprint,
		FetchedAt:   time.Now(),
		ExecutionID: executionID,
	}
}

// EntryStatus is the type-independent view of a slot, used for status
// reporting and staleness metrics.
type EntryStatus struct {
	Name                string     `json:"name"`
	Published           bool       `json:"published"`
	Fingerprint         string     `json:"fingerprint,omitempty"`
	ExecutionID         string     `json:"execution_id,omitempty"`
	FetchedAt           *time.Time `json:"fetched_at,omitempty"`
	CheckedAt           *time.Time `json:"checked_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
}

// Age returns how long ago the published data was fetched, or zero when
// nothing has been published.
func (s EntryStatus) Age(now time.Time) time.Duration {
	if s.FetchedAt == nil {
		return 0
	}
	return now.Sub(*s.FetchedAt)
}
