package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ipranges/internal/domain"
)

var (
	// ErrEmptySnapshot is returned when publishing a snapshot without data
	ErrEmptySnapshot = errors.New("snapshot has no data")
	// ErrTypeMismatch is returned when a slot is accessed with the wrong type
	ErrTypeMismatch = errors.New("cache entry type mismatch")
)

// Slot holds the current snapshot of one provider. Reads are lock-free;
// publishes are serialized so at most one writer touches the slot at a time.
type Slot[T any] struct {
	name domain.ProviderName

	read      atomic.Pointer[Snapshot[T]]
	writeLock chan struct{}

	writers    atomic.Int32
	maxWriters atomic.Int32

	mu                  sync.Mutex
	checkedAt           time.Time
	consecutiveFailures int
	lastError           string
	lastFailureAt       time.Time
}

func newSlot[T any](name domain.ProviderName) *Slot[T] {
	return &Slot[T]{
		name:      name,
		writeLock: make(chan struct{}, 1),
	}
}

// Name returns the slot's provider name
func (s *Slot[T]) Name() domain.ProviderName {
	return s.name
}

// Get returns the current snapshot, or false if nothing was ever published
func (s *Slot[T]) Get() (*Snapshot[T], bool) {
	snap := s.read.Load()
	return snap, snap != nil
}

// Publish atomically replaces the slot's snapshot. Readers observe either
// the previous or the new snapshot, never a mix.
func (s *Slot[T]) Publish(snap *Snapshot[T]) error {
	_, err := s.publish(snap, false)
	return err
}

// PublishIfChanged publishes snap unless the current snapshot carries the
// same fingerprint. The comparison and the swap happen under the same
// write lock. It reports whether the snapshot was replaced.
func (s *Slot[T]) PublishIfChanged(snap *Snapshot[T]) (bool, error) {
	return s.publish(snap, true)
}

func (s *Slot[T]) publish(snap *Snapshot[T], skipUnchanged bool) (bool, error) {
	if snap == nil || snap.Data == nil {
		return false, ErrEmptySnapshot
	}

	s.writeLock <- struct{}{}
	defer func() { <-s.writeLock }()

	n := s.writers.Add(1)
	defer s.writers.Add(-1)
	for {
		peak := s.maxWriters.Load()
		if n <= peak || s.maxWriters.CompareAndSwap(peak, n) {
			break
		}
	}

	changed := true
	if skipUnchanged && snap.Fingerprint != "" {
		if cur := s.read.Load(); cur != nil && cur.Fingerprint == snap.Fingerprint {
			changed = false
		}
	}
	if changed {
		s.read.Store(snap)
	}

	s.mu.Lock()
	s.checkedAt = snap.FetchedAt
	s.consecutiveFailures = 0
	s.mu.Unlock()
	return changed, nil
}

// RecordFailure notes a failed refresh without touching the snapshot
func (s *Slot[T]) RecordFailure(err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	s.lastFailureAt = at
	if err != nil {
		s.lastError = err.Error()
	}
}

// MaxConcurrentWriters returns the highest number of writers ever observed
// inside the slot's critical section.
func (s *Slot[T]) MaxConcurrentWriters() int32 {
	return s.maxWriters.Load()
}

// Status returns a type-independent view of the slot
func (s *Slot[T]) Status() EntryStatus {
	st := EntryStatus{Name: string(s.name)}
	if snap := s.read.Load(); snap != nil {
		fetched := snap.FetchedAt
		st.Published = true
		st.Fingerprint = snap.Fingerprint
		st.ExecutionID = snap.ExecutionID.String()
		st.FetchedAt = &fetched
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkedAt.IsZero() {
		checked := s.checkedAt
		st.CheckedAt = &checked
	}
	st.ConsecutiveFailures = s.consecutiveFailures
	st.LastError = s.lastError
	if !s.lastFailureAt.IsZero() {
		failed := s.lastFailureAt
		st.LastFailureAt = &failed
	}
	return st
}
