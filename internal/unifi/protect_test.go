// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package unifi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gatewatch/internal/models"
)

// memCursorStore is an in-memory CursorStore for adapter tests.
type memCursorStore struct {
	mu      sync.Mutex
	cursors map[string]string
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: make(map[string]string)}
}

func (m *memCursorStore) LastUpdateID(_ context.Context, source string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[source], nil
}

func (m *memCursorStore) SetLastUpdateID(_ context.Context, source, updateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[source] = updateID
	return nil
}

func newTestProtectAdapter(cursors CursorStore) (*ProtectAdapter, chan models.Event) {
	events := make(chan models.Event, 10)
	a := &ProtectAdapter{
		events:      events,
		dedup:       NewDedupSet(),
		states:      NewStateTracker(),
		cursors:     cursors,
		bootstrapID: "bootstrap-1",
	}
	return a, events
}

// TestProtectAdapterFrameDedup is the binary-frame dedup scenario: a
// camera update emits once with the cursor advanced, and a re-delivery
// of the same bytes is dropped by the state filter.
func TestProtectAdapterFrameDedup(t *testing.T) {
	cursors := newMemCursorStore()
	a, events := newTestProtectAdapter(cursors)

	wire, err := EncodeProtectMessage(ActionFrame{
		Action:      "update",
		ID:          "abc",
		ModelKey:    "camera",
		NewUpdateID: "u7",
	}, map[string]any{"name": "Front", "state": "CONNECTED"}, false)
	if err != nil {
		t.Fatalf("EncodeProtectMessage: %v", err)
	}

	ctx := context.Background()
	a.handleMessage(ctx, wire)

	got := drainEvents(events)
	if len(got) != 1 {
		t.Fatalf("emitted %d events, want 1", len(got))
	}
	ev := got[0]
	if ev.EventType != "camera.update" {
		t.Errorf("EventType = %q, want camera.update", ev.EventType)
	}
	if ev.Severity != "" {
		t.Errorf("Severity = %q, want none", ev.Severity)
	}
	if cursor, _ := cursors.LastUpdateID(ctx, "protect"); cursor != "u7" {
		t.Errorf("cursor = %q, want u7", cursor)
	}

	// Same bytes again: unchanged state, dropped.
	a.handleMessage(ctx, wire)
	if got := drainEvents(events); len(got) != 0 {
		t.Fatalf("re-delivery emitted %d events, want 0", len(got))
	}
}

// TestProtectAdapterCorruptMessage verifies that a protocol error
// drops the message and the adapter keeps processing.
func TestProtectAdapterCorruptMessage(t *testing.T) {
	a, events := newTestProtectAdapter(newMemCursorStore())
	ctx := context.Background()

	wire, err := EncodeProtectMessage(ActionFrame{Action: "add", ID: "e1", ModelKey: "event"},
		map[string]any{"type": "motion"}, false)
	if err != nil {
		t.Fatalf("EncodeProtectMessage: %v", err)
	}

	// Second header claims packet type 1 (action) instead of 2.
	corrupt := append([]byte(nil), wire...)
	first, _ := parseFrameHeader(corrupt)
	corrupt[frameHeaderSize+int(first.payloadSize)] = packetTypeAction

	a.handleMessage(ctx, corrupt)
	if got := drainEvents(events); len(got) != 0 {
		t.Fatal("corrupt message emitted an event")
	}

	// The next well-formed message is processed normally.
	a.handleMessage(ctx, wire)
	if got := drainEvents(events); len(got) != 1 {
		t.Fatalf("follow-up message emitted %d events, want 1", len(got))
	}
}

func TestProtectAdapterResumeCursor(t *testing.T) {
	ctx := context.Background()

	cursors := newMemCursorStore()
	a, _ := newTestProtectAdapter(cursors)

	if got := a.resumeCursor(ctx); got != "bootstrap-1" {
		t.Errorf("resumeCursor = %q, want bootstrap-1", got)
	}

	if err := cursors.SetLastUpdateID(ctx, "protect", "u42"); err != nil {
		t.Fatal(err)
	}
	if got := a.resumeCursor(ctx); got != "u42" {
		t.Errorf("resumeCursor = %q, want u42", got)
	}
}

func TestBuildProtectEventTypes(t *testing.T) {
	tests := []struct {
		name   string
		action ActionFrame
		data   map[string]any
		want   string
	}{
		{
			name:   "event modelKey prefers data.type",
			action: ActionFrame{Action: "add", ID: "e1", ModelKey: "event"},
			data:   map[string]any{"type": "motion"},
			want:   "motion",
		},
		{
			name:   "event modelKey without data.type",
			action: ActionFrame{Action: "add", ID: "e1", ModelKey: "event"},
			data:   map[string]any{},
			want:   "event.add",
		},
		{
			name:   "other modelKeys use modelKey.action",
			action: ActionFrame{Action: "update", ID: "n1", ModelKey: "nvr"},
			data:   map[string]any{},
			want:   "nvr.update",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := mustProtectMessage(t, tt.action, tt.data)
			ev := buildProtectEvent(msg)
			if ev.EventType != tt.want {
				t.Errorf("EventType = %q, want %q", ev.EventType, tt.want)
			}
		})
	}
}

func TestBuildProtectEventSeverity(t *testing.T) {
	// Unhealthy storage device sets error.
	msg := mustProtectMessage(t, ActionFrame{Action: "update", ID: "n1", ModelKey: "nvr"},
		map[string]any{"systemInfo": map[string]any{"storage": map[string]any{
			"devices": []any{
				map[string]any{"healthy": true},
				map[string]any{"healthy": false},
			},
		}}})
	ev := buildProtectEvent(msg)
	if ev.Severity != models.SeverityError {
		t.Errorf("nvr Severity = %q, want error", ev.Severity)
	}
	if ev.Summary != "Storage: 1 unhealthy device(s)" {
		t.Errorf("Summary = %q", ev.Summary)
	}

	// Disconnected camera sets warning.
	msg = mustProtectMessage(t, ActionFrame{Action: "update", ID: "c1", ModelKey: "camera"},
		map[string]any{"name": "Gate", "state": "DISCONNECTED"})
	ev = buildProtectEvent(msg)
	if ev.Severity != models.SeverityWarning {
		t.Errorf("camera Severity = %q, want warning", ev.Severity)
	}
	if ev.Summary != "Camera 'Gate': DISCONNECTED" {
		t.Errorf("Summary = %q", ev.Summary)
	}
}

func TestBuildProtectEventRawEnvelope(t *testing.T) {
	msg := mustProtectMessage(t, ActionFrame{Action: "update", ID: "abc", ModelKey: "camera"},
		map[string]any{"name": "Front"})
	ev := buildProtectEvent(msg)

	var envelope struct {
		Action   string         `json:"action"`
		ModelKey string         `json:"modelKey"`
		ID       string         `json:"id"`
		Data     map[string]any `json:"data"`
	}
	if err := json.Unmarshal(ev.Raw, &envelope); err != nil {
		t.Fatalf("raw envelope not valid JSON: %v", err)
	}
	if envelope.Action != "update" || envelope.ModelKey != "camera" || envelope.ID != "abc" {
		t.Errorf("envelope = %+v", envelope)
	}
	if envelope.Data["name"] != "Front" {
		t.Errorf("envelope data = %v", envelope.Data)
	}
}

func TestProtectTimestamp(t *testing.T) {
	// Milliseconds: values above 1e12.
	ts := protectTimestamp(map[string]any{"start": float64(1_700_000_000_000)})
	if ts.Unix() != 1_700_000_000 {
		t.Errorf("ms timestamp = %d", ts.Unix())
	}

	// Seconds: values at or below 1e12.
	ts = protectTimestamp(map[string]any{"timestamp": float64(1_700_000_000)})
	if ts.Unix() != 1_700_000_000 {
		t.Errorf("s timestamp = %d", ts.Unix())
	}

	// start preferred over timestamp.
	ts = protectTimestamp(map[string]any{
		"start":     float64(1_600_000_000),
		"timestamp": float64(1_700_000_000),
	})
	if ts.Unix() != 1_600_000_000 {
		t.Errorf("preference timestamp = %d", ts.Unix())
	}

	// Fallback: now.
	ts = protectTimestamp(map[string]any{})
	if time.Since(ts) > time.Minute {
		t.Errorf("fallback timestamp too old: %v", ts)
	}
}

func mustProtectMessage(t *testing.T, action ActionFrame, data map[string]any) *ProtectMessage {
	t.Helper()
	wire, err := EncodeProtectMessage(action, data, false)
	if err != nil {
		t.Fatalf("EncodeProtectMessage: %v", err)
	}
	msg, err := DecodeProtectMessage(wire)
	if err != nil {
		t.Fatalf("DecodeProtectMessage: %v", err)
	}
	return msg
}
