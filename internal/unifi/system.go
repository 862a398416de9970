// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

/*
system.go - UniFi OS System Event Adapter

Websocket endpoint: /api/ws/system (JSON text frames). Carries
cross-application OS-level events. DEVICE_STATE_CHANGED and other
state-carrying types are refresh-grade and go through the state-hash
filter.
*/

package unifi

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/metrics"
	"github.com/tomtom215/gatewatch/internal/models"
)

// SystemAdapter streams the UniFi OS system feed into the shared event
// channel.
type SystemAdapter struct {
	session *Session
	events  chan<- models.Event
	dedup   *DedupSet
	states  *StateTracker
	filter  RefreshFilter
}

// NewSystemAdapter creates the System feed adapter.
func NewSystemAdapter(session *Session, events chan<- models.Event, dedup *DedupSet, states *StateTracker) *SystemAdapter {
	return &SystemAdapter{
		session: session,
		events:  events,
		dedup:   dedup,
		states:  states,
		filter:  systemRefresh{},
	}
}

// Name returns the source tag for supervision and logging.
func (a *SystemAdapter) Name() string {
	return string(models.SourceSystem)
}

// Run connects and consumes the feed until error, server close, or
// cancellation. The supervisor restarts it after the reconnect delay.
func (a *SystemAdapter) Run(ctx context.Context) error {
	wsURL := "wss://" + a.session.Host() + "/api/ws/system"

	conn, err := a.session.dialWebsocket(ctx, wsURL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	logging.Info().Msg("System websocket connected")

	return readLoop(ctx, conn, a.Name(), func(msgType int, data []byte) {
		if msgType != websocket.TextMessage {
			return
		}
		a.handleMessage(ctx, data)
	})
}

func (a *SystemAdapter) handleMessage(ctx context.Context, raw []byte) {
	ev, payload, stateRaw, err := parseSystemMessage(raw)
	if err != nil {
		metrics.ProtocolErrors.WithLabelValues(a.Name()).Inc()
		logging.Warn().Err(err).Msg("Failed to parse system event")
		return
	}

	if entityID, ok := a.filter.EntityID(ev.EventType, payload, ev.ID); ok {
		if !a.states.Changed(entityID, models.HashStateBytes(stateRaw)) {
			metrics.RefreshesSuppressed.WithLabelValues(a.Name()).Inc()
			logging.Trace().Str("entity", entityID).Msg("Skipping unchanged state")
			return
		}
	}

	if !a.dedup.Insert(ev.ID) {
		metrics.EventsDeduplicated.WithLabelValues(a.Name()).Inc()
		logging.Trace().Str("id", ev.ID).Msg("Skipping duplicate event")
		return
	}

	select {
	case a.events <- *ev:
		metrics.EventsIngested.WithLabelValues(a.Name()).Inc()
	case <-ctx.Done():
	}
}

// parseSystemMessage decodes one websocket text frame into a canonical
// event plus the decoded payload and the raw state body.
func parseSystemMessage(raw []byte) (*models.Event, map[string]any, []byte, error) {
	var msg struct {
		Type      string          `json:"type"`
		Key       string          `json:"key"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
		ID        string          `json:"id"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, nil, nil, protocolErr("system event parse failed", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, nil, protocolErr("system event parse failed", err)
	}

	// Event type precedence: type, key.
	eventType := msg.Type
	if eventType == "" {
		eventType = msg.Key
	}
	if eventType == "" {
		eventType = "unknown"
	}

	ts := time.Now().UTC()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp).UTC()
	}

	keyFields := models.ExtractKeyFields(payload)
	if msg.ID != "" {
		keyFields = []string{msg.ID}
	}

	stateRaw := []byte("null")
	if len(msg.Data) > 0 {
		stateRaw = msg.Data
	}

	ev := &models.Event{
		ID:        models.GenerateEventID(models.SourceSystem, eventType, ts, keyFields),
		Timestamp: ts,
		Source:    models.SourceSystem,
		EventType: eventType,
		Summary:   systemSummary(eventType, payload),
		Raw:       raw,
	}
	return ev, payload, stateRaw, nil
}

func systemSummary(eventType string, payload map[string]any) string {
	if data, ok := payload["data"].(map[string]any); ok {
		if msg, ok := data["message"].(string); ok {
			return msg
		}
		if msg, ok := data["msg"].(string); ok {
			return msg
		}
	}
	return "System event: " + eventType
}
