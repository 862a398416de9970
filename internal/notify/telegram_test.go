// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/gatewatch/internal/config"
	"github.com/tomtom215/gatewatch/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"hello_world", `hello\_world`},
		{"test.event", `test\.event`},
		{"a*b[c]d(e)f", `a\*b\[c\]d\(e\)f`},
		{"~`>#+-=|{}.!", "\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := EscapeMarkdownV2(tt.in); got != tt.want {
			t.Errorf("EscapeMarkdownV2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMessage(t *testing.T) {
	ev := &models.StoredEvent{
		Event: models.Event{
			Timestamp: time.Unix(1_700_000_000, 0).UTC(),
			Source:    models.SourceProtect,
			EventType: "camera.update",
			Summary:   "Camera 'Front': CONNECTED",
		},
	}

	msg := FormatMessage(ev)

	if !strings.Contains(msg, `*camera\.update*`) {
		t.Errorf("header not escaped: %q", msg)
	}
	if !strings.Contains(msg, `Camera 'Front': CONNECTED`) {
		t.Errorf("summary missing: %q", msg)
	}
	if !strings.Contains(msg, "_Source: protect | 2023-11-14 22:13:20 UTC_") {
		t.Errorf("footer wrong: %q", msg)
	}
	// Header, blank line, summary, blank line, footer.
	if got := strings.Count(msg, "\n\n"); got != 2 {
		t.Errorf("blank-line separators = %d, want 2", got)
	}
}

func newTestSender(t *testing.T, handler http.HandlerFunc) *TelegramSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := newTelegramSender(&config.TelegramConfig{
		BotToken:    "TOKEN",
		ChatID:      "42",
		MaxAttempts: 10,
	}, srv.URL)
	// No pacing in tests.
	s.limiter = rate.NewLimiter(rate.Inf, 1)
	return s
}

func TestTelegramSendSuccess(t *testing.T) {
	var got map[string]any
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	ev := &models.StoredEvent{Event: models.Event{
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		Source:    models.SourceNetwork,
		EventType: "alarm",
		Summary:   "AP offline",
	}}

	if err := sender.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got["chat_id"] != "42" {
		t.Errorf("chat_id = %v", got["chat_id"])
	}
	if got["parse_mode"] != "MarkdownV2" {
		t.Errorf("parse_mode = %v", got["parse_mode"])
	}
	if text, _ := got["text"].(string); !strings.Contains(text, "AP offline") {
		t.Errorf("text = %v", got["text"])
	}
}

func TestTelegramSendNon2xxIsFailure(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusInternalServerError)
	})

	ev := &models.StoredEvent{Event: models.Event{EventType: "x", Summary: "y"}}
	if err := sender.Send(context.Background(), ev); err == nil {
		t.Fatal("500 response did not error")
	}
}

func TestTelegramBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusBadGateway)
	})

	ev := &models.StoredEvent{Event: models.Event{EventType: "x", Summary: "y"}}
	for i := 0; i < 8; i++ {
		_ = sender.Send(context.Background(), ev)
	}

	// After five consecutive failures the breaker opens and stops
	// reaching the endpoint.
	if calls > 5 {
		t.Errorf("endpoint called %d times, breaker never opened", calls)
	}
}
