// Package schedule holds the live set of expanded events and keeps it
// fresh. Readers take one Snapshot and lay it out; refreshes replace the
// whole Snapshot at once.
package schedule

import (
	"sync/atomic"
	"time"

	"calview/internal/model"
)

// Snapshot is an immutable view of every known event at one point in time.
type Snapshot struct {
	Events     []model.Event `json:"events"`
	Generation uint64        `json:"generation"`
	FetchedAt  time.Time     `json:"fetched_at"`
	// Sources lists the source IDs that contributed to Events.
	Sources []string `json:"sources"`
}

// Store publishes snapshots to concurrent readers.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// NewStore returns a store holding an empty generation-0 snapshot.
func NewStore() *Store {
	s := &Store{}
	s.cur.Store(&Snapshot{Events: []model.Event{}})
	return s
}

// Load returns the current snapshot. Callers must not modify it.
func (s *Store) Load() *Snapshot {
	return s.cur.Load()
}

// Swap installs snap with the next generation number and returns it.
func (s *Store) Swap(snap *Snapshot) *Snapshot {
	for {
		prev := s.cur.Load()
		next := *snap
		next.Generation = prev.Generation + 1
		if s.cur.CompareAndSwap(prev, &next) {
			return &next
		}
	}
}

// EventsOn returns the snapshot's events dated d.
func (snap *Snapshot) EventsOn(d model.Date) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range snap.Events {
		if ev.StartDate == d {
			out = append(out, ev)
		}
	}
	return out
}
