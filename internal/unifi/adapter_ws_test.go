// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package unifi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/gatewatch/internal/models"
)

// TestNetworkAdapterWebsocket drives the adapter against a real
// (TLS, cookie-authenticated) websocket server: one event frame, then
// a server-initiated normal close.
func TestNetworkAdapterWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", loginHandler(t, "x-csrf-token"))
	mux.HandleFunc("/proxy/network/wss/s/default/events", func(w http.ResponseWriter, r *http.Request) {
		// The upgrade request must carry the session cookie.
		if c, err := r.Cookie("TOKEN"); err != nil || c.Value != "session-cookie" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		frame := `{"key":"EVT_WU_Upgrade","_id":"E1","time":1700000000000,"data":[{"msg":"done"}]}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Errorf("write: %v", err)
			return
		}

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))

		// Wait for the client's close response (or error).
		_, _, _ = conn.ReadMessage()
	})

	_, cfg := newTestConsole(t, mux)
	session, err := Login(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	events := make(chan models.Event, 10)
	adapter := NewNetworkAdapter(session, events, NewDedupSet(), NewStateTracker())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Normal server close returns nil: the supervisor treats it as a
	// reconnectable disconnect, not a failure.
	if err := adapter.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := drainEvents(events)
	if len(got) != 1 {
		t.Fatalf("emitted %d events, want 1", len(got))
	}
	if got[0].EventType != "EVT_WU_Upgrade" {
		t.Errorf("EventType = %q", got[0].EventType)
	}
}

// TestProtectAdapterWebsocket exercises the binary path end to end,
// including the resume cursor in the dial URL.
func TestProtectAdapterWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotCursor := make(chan string, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", loginHandler(t, "x-csrf-token"))
	mux.HandleFunc("/proxy/protect/ws/updates", func(w http.ResponseWriter, r *http.Request) {
		gotCursor <- r.URL.Query().Get("lastUpdateId")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		wire, err := EncodeProtectMessage(ActionFrame{
			Action:      "add",
			ID:          "evt-1",
			ModelKey:    "event",
			NewUpdateID: "u9",
		}, map[string]any{"type": "motion", "start": float64(1_700_000_000_000)}, true)
		if err != nil {
			t.Errorf("encode: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, wire); err != nil {
			t.Errorf("write: %v", err)
			return
		}

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	})

	_, cfg := newTestConsole(t, mux)
	session, err := Login(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	cursors := newMemCursorStore()
	events := make(chan models.Event, 10)
	adapter := NewProtectAdapter(session, events, NewDedupSet(), NewStateTracker(), cursors, "boot-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := adapter.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if cursor := <-gotCursor; cursor != "boot-1" {
		t.Errorf("dial cursor = %q, want boot-1", cursor)
	}

	got := drainEvents(events)
	if len(got) != 1 {
		t.Fatalf("emitted %d events, want 1", len(got))
	}
	if got[0].EventType != "motion" {
		t.Errorf("EventType = %q, want motion", got[0].EventType)
	}
	if got[0].Timestamp.Unix() != 1_700_000_000 {
		t.Errorf("Timestamp = %d", got[0].Timestamp.Unix())
	}
	if cursor, _ := cursors.LastUpdateID(context.Background(), "protect"); cursor != "u9" {
		t.Errorf("saved cursor = %q, want u9", cursor)
	}
}
