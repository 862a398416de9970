// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package unifi

import (
	"fmt"
	"sync"
	"testing"

	"github.com/tomtom215/gatewatch/internal/models"
)

func TestDedupSetInsert(t *testing.T) {
	s := NewDedupSet()

	if !s.Insert("a") {
		t.Error("first insert reported duplicate")
	}
	if s.Insert("a") {
		t.Error("second insert of same id reported novel")
	}
	if !s.Insert("b") {
		t.Error("distinct id reported duplicate")
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestDedupSetConcurrent(t *testing.T) {
	s := NewDedupSet()
	const workers = 8
	const ids = 100

	var wg sync.WaitGroup
	novel := make([]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < ids; i++ {
				if s.Insert(fmt.Sprintf("id-%d", i)) {
					novel[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, n := range novel {
		total += n
	}
	if total != ids {
		t.Errorf("novel inserts = %d, want %d", total, ids)
	}
}

func TestStateTrackerChanged(t *testing.T) {
	tr := NewStateTracker()

	state1 := models.HashStateBytes([]byte(`{"state":"CONNECTED"}`))
	state2 := models.HashStateBytes([]byte(`{"state":"DISCONNECTED"}`))

	if !tr.Changed("camera:abc", state1) {
		t.Error("new entity reported unchanged")
	}
	if tr.Changed("camera:abc", state1) {
		t.Error("identical state reported changed")
	}
	if !tr.Changed("camera:abc", state2) {
		t.Error("changed state reported unchanged")
	}
	if tr.Changed("camera:abc", state2) {
		t.Error("repeated new state reported changed")
	}

	// Distinct entities track independently.
	if !tr.Changed("camera:def", state2) {
		t.Error("distinct entity shared state with another entity")
	}
}
