// Package cache holds the most recent successfully decoded dataset of every
// provider. Each provider owns a typed Slot; the Store is the name-keyed
// registry of those slots and offers a type-independent status view.
package cache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ipranges/internal/domain"
)

// entry is the type-erased face of a Slot
type entry interface {
	Name() domain.ProviderName
	Status() EntryStatus
}

// Store maps provider names to their typed slots. The map is only written
// at registration; publishing and reading go straight to the slots.
type Store struct {
	mu    sync.RWMutex
	slots map[domain.ProviderName]entry
}

// New creates an empty store
func New() *Store {
	return &Store{
		slots: make(map[domain.ProviderName]entry),
	}
}

// Register returns the slot for name, creating it on first use. Registering
// an existing name with a different data type fails with ErrTypeMismatch.
func Register[T any](s *Store, name domain.ProviderName) (*Slot[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.slots[name]; ok {
		slot, ok := e.(*Slot[T])
		if !ok {
			return nil, fmt.Errorf("%w: %s registered as %T", ErrTypeMismatch, name, e)
		}
		return slot, nil
	}

	slot := newSlot[T](name)
	s.slots[name] = slot
	return slot, nil
}

// SlotFor returns the typed slot registered under name
func SlotFor[T any](s *Store, name domain.ProviderName) (*Slot[T], error) {
	s.mu.RLock()
	e, ok := s.slots[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotYetAvailable, name)
	}
	slot, ok := e.(*Slot[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s registered as %T", ErrTypeMismatch, name, e)
	}
	return slot, nil
}

// Lookup returns the current snapshot for name. It fails with
// domain.ErrNotYetAvailable when the provider is unknown or has never
// published, and with ErrTypeMismatch when T is not the slot's type.
func Lookup[T any](s *Store, name domain.ProviderName) (*Snapshot[T], error) {
	slot, err := SlotFor[T](s, name)
	if err != nil {
		return nil, err
	}
	snap, ok := slot.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotYetAvailable, name)
	}
	return snap, nil
}

// Names returns the registered provider names in sorted order
func (s *Store) Names() []domain.ProviderName {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]domain.ProviderName, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Status returns the status of every registered slot, sorted by name
func (s *Store) Status() []EntryStatus {
	s.mu.RLock()
	entries := make([]entry, 0, len(s.slots))
	for _, e := range s.slots {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]EntryStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EntryStatus returns the status of one slot
func (s *Store) EntryStatus(name domain.ProviderName) (EntryStatus, bool) {
	s.mu.RLock()
	e, ok := s.slots[name]
	s.mu.RUnlock()
	if !ok {
		return EntryStatus{}, false
	}
	return e.Status(), true
}
