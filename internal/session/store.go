package session

import (
	"sync"
)

// Store holds the most recently published snapshot. Publishing replaces the
// whole snapshot under the lock, so readers never observe a partial scan.
type Store struct {
	mu     sync.RWMutex
	latest *Snapshot
	seq    uint64
}

func NewStore() *Store {
	return &Store{}
}

// Latest returns the current snapshot and its publish sequence number.
// The returned snapshot is shared and must not be mutated.
func (s *Store) Latest() (*Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.seq
}

// Publish replaces the current snapshot. Snapshots older than the one
// already published are dropped, so a slow scan that finishes after a
// newer one cannot roll the view back. Returns the new sequence number and
// whether snap was accepted.
func (s *Store) Publish(snap *Snapshot) (uint64, bool) {
	return s.PublishAndNotify(snap, nil)
}

// PublishAndNotify is Publish, calling notify under the same lock when the
// snapshot is accepted so observers see publishes in sequence order.
func (s *Store) PublishAndNotify(snap *Snapshot, notify func(*Snapshot, uint64)) (uint64, bool) {
	if snap == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest != nil && snap.Timestamp.Before(s.latest.Timestamp) {
		return s.seq, false
	}
	s.latest = snap
	s.seq++
	if notify != nil {
		notify(snap, s.seq)
	}
	return s.seq, true
}
