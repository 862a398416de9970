// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package unifi

import (
	"sync"
)

// DedupSet is the in-memory set of recently seen event IDs, shared by
// all adapters and the REST backfill for the lifetime of one
// supervisor run. It is not persisted: the store's primary-key
// uniqueness is the durable dedup backstop, so losing this set on
// restart is harmless.
type DedupSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupSet creates an empty dedup set.
func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[string]struct{})}
}

// Insert records an event ID. Returns false when the ID was already
// present (the event must be dropped silently).
func (s *DedupSet) Insert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Len returns the number of tracked IDs.
func (s *DedupSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// StateTracker maps entity IDs to the 64-bit hash of their last known
// state, backing the heartbeat filter: refresh-grade messages whose
// state hash is unchanged carry no information and are dropped.
// Like DedupSet it lives only for the current supervisor run.
type StateTracker struct {
	mu     sync.Mutex
	states map[string]uint64
}

// NewStateTracker creates an empty state tracker.
func NewStateTracker() *StateTracker {
	return &StateTracker{states: make(map[string]uint64)}
}

// Changed compares hash against the entity's recorded state hash.
// New entities and changed states record the hash and return true;
// an identical hash returns false.
func (t *StateTracker) Changed(entityID string, hash uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.states[entityID]; ok && old == hash {
		return false
	}
	t.states[entityID] = hash
	return true
}

// Len returns the number of tracked entities.
func (t *StateTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}
