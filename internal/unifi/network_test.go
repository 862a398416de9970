// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package unifi

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gatewatch/internal/models"
)

func TestParseNetworkMessageEventTypePrecedence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"type wins", `{"type":"alarm","key":"EVT_X"}`, "alarm"},
		{"key second", `{"key":"EVT_WU_Upgrade"}`, "EVT_WU_Upgrade"},
		{"meta.message third", `{"meta":{"message":"sta:sync"}}`, "sta:sync"},
		{"unknown fallback", `{"data":[]}`, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, _, _, err := parseNetworkMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("parseNetworkMessage: %v", err)
			}
			if ev.EventType != tt.want {
				t.Errorf("EventType = %q, want %q", ev.EventType, tt.want)
			}
		})
	}
}

func TestParseNetworkMessageFields(t *testing.T) {
	raw := `{"key":"EVT_WU_Upgrade","_id":"E1","time":1700000000000,"data":[{"msg":"upgrade done"}]}`

	ev, _, stateRaw, err := parseNetworkMessage([]byte(raw))
	if err != nil {
		t.Fatalf("parseNetworkMessage: %v", err)
	}

	if ev.Source != models.SourceNetwork {
		t.Errorf("Source = %q", ev.Source)
	}
	if got := ev.Timestamp.Unix(); got != 1_700_000_000 {
		t.Errorf("Timestamp = %d, want 1700000000", got)
	}
	if ev.ID == "" {
		t.Error("empty event id")
	}
	if string(stateRaw) != `[{"msg":"upgrade done"}]` {
		t.Errorf("stateRaw = %s", stateRaw)
	}

	// The _id key field plus second bucketing make the id stable
	// across delivery paths.
	again, _, _, _ := parseNetworkMessage([]byte(raw))
	if again.ID != ev.ID {
		t.Error("re-decoding the same payload produced a different id")
	}
}

func TestParseNetworkMessageAlarmSeverity(t *testing.T) {
	ev, _, _, err := parseNetworkMessage([]byte(`{"type":"alarm","data":[{"msg":"AP offline"}]}`))
	if err != nil {
		t.Fatalf("parseNetworkMessage: %v", err)
	}
	if ev.Severity != models.SeverityWarning {
		t.Errorf("Severity = %q, want warning", ev.Severity)
	}
	if ev.Summary != "AP offline" {
		t.Errorf("Summary = %q", ev.Summary)
	}
}

func TestParseNetworkMessageMalformed(t *testing.T) {
	if _, _, _, err := parseNetworkMessage([]byte(`{not json`)); !IsProtocolError(err) {
		t.Errorf("got %v, want ProtocolError", err)
	}
}

func TestNetworkSummary(t *testing.T) {
	tests := []struct {
		eventType string
		payload   string
		want      string
	}{
		{"sta:sync", `{"data":[{"hostname":"laptop"}]}`, "Client sync: laptop"},
		{"sta:sync", `{"data":[]}`, "Client sync event"},
		{"device:sync", `{}`, "Device sync event"},
		{"alarm", `{"data":[{"msg":"AP lost"}]}`, "AP lost"},
		{"evt", `{"data":[]}`, "System event"},
		{"backup:done", `{}`, "backup:done event"},
	}

	for _, tt := range tests {
		var payload map[string]any
		if err := json.Unmarshal([]byte(tt.payload), &payload); err != nil {
			t.Fatalf("bad test payload: %v", err)
		}
		if got := networkSummary(tt.eventType, payload); got != tt.want {
			t.Errorf("networkSummary(%s) = %q, want %q", tt.eventType, got, tt.want)
		}
	}
}

func TestNetworkRefreshFilter(t *testing.T) {
	f := networkRefresh{}

	payload := map[string]any{"data": []any{map[string]any{"_id": "dev1"}}}
	entity, ok := f.EntityID("sta:sync", payload, "fallback")
	if !ok || entity != "sta:sync:dev1" {
		t.Errorf("EntityID = %q, %v", entity, ok)
	}

	payload = map[string]any{"data": []any{map[string]any{"mac": "aa:bb"}}}
	entity, ok = f.EntityID("device:sync", payload, "fallback")
	if !ok || entity != "device:sync:aa:bb" {
		t.Errorf("EntityID = %q, %v", entity, ok)
	}

	entity, ok = f.EntityID("sta:sync", map[string]any{}, "fb")
	if !ok || entity != "sta:sync:fb" {
		t.Errorf("EntityID fallback = %q, %v", entity, ok)
	}

	if _, ok := f.EntityID("alarm", payload, "x"); ok {
		t.Error("alarm treated as refresh")
	}
}

// TestNetworkAdapterStateFilter covers the boundary behavior: two
// byte-identical sync bodies yield one emitted event, a change emits
// again.
func TestNetworkAdapterStateFilter(t *testing.T) {
	events := make(chan models.Event, 10)
	a := &NetworkAdapter{
		events: events,
		dedup:  NewDedupSet(),
		states: NewStateTracker(),
		filter: networkRefresh{},
	}

	ctx := context.Background()
	msg1 := `{"type":"sta:sync","time":1700000000000,"data":[{"_id":"dev1","rssi":10}]}`
	msg2 := `{"type":"sta:sync","time":1700000005000,"data":[{"_id":"dev1","rssi":10}]}`
	msg3 := `{"type":"sta:sync","time":1700000010000,"data":[{"_id":"dev1","rssi":11}]}`

	a.handleMessage(ctx, []byte(msg1))
	a.handleMessage(ctx, []byte(msg2)) // unchanged state, dropped
	a.handleMessage(ctx, []byte(msg3)) // changed state, emitted

	if got := drainEvents(events); len(got) != 2 {
		t.Fatalf("emitted %d events, want 2", len(got))
	}
}

func drainEvents(ch chan models.Event) []models.Event {
	var out []models.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}
