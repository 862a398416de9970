// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Package notify delivers classified events to the chat channel with
// retry, rate limiting, and a circuit breaker.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/gatewatch/internal/config"
	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/metrics"
	"github.com/tomtom215/gatewatch/internal/models"
)

// Sender delivers one notification. Transport failures and non-2xx
// responses are retryable.
type Sender interface {
	Send(ctx context.Context, ev *models.StoredEvent) error
}

// markdownV2Specials is the exact MarkdownV2 escape set. Every
// occurrence is prefixed with a backslash.
const markdownV2Specials = "_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 escapes text for a Telegram MarkdownV2 body.
func EscapeMarkdownV2(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) * 2)
	for _, r := range text {
		if strings.ContainsRune(markdownV2Specials, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// TelegramSender posts notifications to the Telegram Bot API.
type TelegramSender struct {
	client  *http.Client
	apiBase string
	token   string
	chatID  string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewTelegramSender builds a sender for the configured bot and chat.
func NewTelegramSender(cfg *config.TelegramConfig) *TelegramSender {
	return newTelegramSender(cfg, "https://api.telegram.org")
}

func newTelegramSender(cfg *config.TelegramConfig, apiBase string) *TelegramSender {
	cbName := "telegram-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,

		// The dispatcher already retries per event with its own
		// backoff; the breaker only guards against hammering a dead
		// endpoint across many queued events.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	return &TelegramSender{
		client:  &http.Client{Timeout: 30 * time.Second},
		apiBase: apiBase,
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		// Telegram allows ~20 messages/minute to one group chat.
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
		breaker: cb,
	}
}

// Send delivers one event notification. Non-2xx is a retryable failure
// counted against the event's attempt budget by the dispatcher.
func (t *TelegramSender) Send(ctx context.Context, ev *models.StoredEvent) error {
	return t.send(ctx, FormatMessage(ev))
}

// SendText delivers an arbitrary pre-escaped MarkdownV2 message. Used
// by the test-notification endpoint.
func (t *TelegramSender) SendText(ctx context.Context, text string) error {
	return t.send(ctx, text)
}

func (t *TelegramSender) send(ctx context.Context, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := t.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, t.post(ctx, text)
	})
	return err
}

func (t *TelegramSender) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram api returned status %d: %s", resp.StatusCode, snippet)
	}

	return nil
}

// FormatMessage renders the MarkdownV2 notification body: a header
// line with the escaped event type, the escaped summary, and a dimmed
// footer with source and UTC timestamp.
func FormatMessage(ev *models.StoredEvent) string {
	return fmt.Sprintf("\U0001F514 *%s*\n\n%s\n\n_Source: %s | %s_",
		EscapeMarkdownV2(ev.EventType),
		EscapeMarkdownV2(ev.Summary),
		ev.Source,
		ev.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
}

// TestMessage is the body sent by the test-notification endpoint.
const TestMessage = "\U0001F9EA *Test Notification*\n\nThis is a test message from Gatewatch\\. If you see this, your Telegram integration is working correctly\\!"

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
