// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package unifi

import (
	"context"
	"testing"

	"github.com/tomtom215/gatewatch/internal/models"
)

func TestParseSystemMessageFields(t *testing.T) {
	raw := `{"type":"FIRMWARE_UPDATE","id":"S1","timestamp":1700000000000,"data":{"message":"firmware updated"}}`

	ev, _, stateRaw, err := parseSystemMessage([]byte(raw))
	if err != nil {
		t.Fatalf("parseSystemMessage: %v", err)
	}

	if ev.Source != models.SourceSystem {
		t.Errorf("Source = %q", ev.Source)
	}
	if ev.EventType != "FIRMWARE_UPDATE" {
		t.Errorf("EventType = %q", ev.EventType)
	}
	if ev.Summary != "firmware updated" {
		t.Errorf("Summary = %q", ev.Summary)
	}
	if got := ev.Timestamp.Unix(); got != 1_700_000_000 {
		t.Errorf("Timestamp = %d", got)
	}
	if string(stateRaw) != `{"message":"firmware updated"}` {
		t.Errorf("stateRaw = %s", stateRaw)
	}
}

func TestParseSystemMessageKeyFallback(t *testing.T) {
	ev, _, _, err := parseSystemMessage([]byte(`{"key":"REBOOT"}`))
	if err != nil {
		t.Fatalf("parseSystemMessage: %v", err)
	}
	if ev.EventType != "REBOOT" {
		t.Errorf("EventType = %q, want REBOOT", ev.EventType)
	}
	if ev.Summary != "System event: REBOOT" {
		t.Errorf("Summary = %q", ev.Summary)
	}
}

func TestParseSystemMessageMalformed(t *testing.T) {
	if _, _, _, err := parseSystemMessage([]byte(`not json at all`)); !IsProtocolError(err) {
		t.Errorf("got %v, want ProtocolError", err)
	}
}

func TestSystemRefreshFilter(t *testing.T) {
	f := systemRefresh{}

	payload := map[string]any{"data": map[string]any{"deviceId": "dev9"}}
	entity, ok := f.EntityID("DEVICE_STATE_CHANGED", payload, "fb")
	if !ok || entity != "system:dev9" {
		t.Errorf("EntityID = %q, %v", entity, ok)
	}

	// Any type containing "state" is a state update.
	payload = map[string]any{"data": map[string]any{"id": "dev2"}}
	entity, ok = f.EntityID("port_state_update", payload, "fb")
	if !ok || entity != "system:dev2" {
		t.Errorf("EntityID = %q, %v", entity, ok)
	}

	entity, ok = f.EntityID("DEVICE_STATE_CHANGED", map[string]any{}, "fb")
	if !ok || entity != "system:fb" {
		t.Errorf("EntityID fallback = %q, %v", entity, ok)
	}

	if _, ok := f.EntityID("FIRMWARE_UPDATE", payload, "fb"); ok {
		t.Error("non-state type treated as refresh")
	}
}

func TestSystemAdapterStateFilter(t *testing.T) {
	events := make(chan models.Event, 10)
	a := &SystemAdapter{
		events: events,
		dedup:  NewDedupSet(),
		states: NewStateTracker(),
		filter: systemRefresh{},
	}

	ctx := context.Background()
	msg1 := `{"type":"DEVICE_STATE_CHANGED","timestamp":1700000000000,"data":{"deviceId":"d1","state":"ok"}}`
	msg2 := `{"type":"DEVICE_STATE_CHANGED","timestamp":1700000005000,"data":{"deviceId":"d1","state":"ok"}}`

	a.handleMessage(ctx, []byte(msg1))
	a.handleMessage(ctx, []byte(msg2)) // unchanged, dropped

	if got := drainEvents(events); len(got) != 1 {
		t.Fatalf("emitted %d events, want 1", len(got))
	}
}
