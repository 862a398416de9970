// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

/*
network.go - Network Controller Event Adapter

Websocket endpoint: /proxy/network/wss/s/default/events (JSON text
frames). Event types seen here: alarm, evt, sta:sync, device:sync,
backup:done, and friends. The sync types are refresh-grade and go
through the state-hash filter.
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

// NetworkAdapter streams the Network controller event feed into the
// shared event channel.
type NetworkAdapter struct {
	session *Session
	events  chan<- models.Event
	dedup   *DedupSet
	states  *StateTracker
	filter  RefreshFilter
}

// NewNetworkAdapter creates the Network feed adapter. The dedup set
// and state tracker are shared with the other adapters and the
// backfill.
func NewNetworkAdapter(session *Session, events chan<- models.Event, dedup *DedupSet, states *StateTracker) *NetworkAdapter {
	return &NetworkAdapter{
		session: session,
		events:  events,
		dedup:   dedup,
		states:  states,
		filter:  networkRefresh{},
	}
}

// Name returns the source tag for supervision and logging.
func (a *NetworkAdapter) Name() string {
	return string(models.SourceNetwork)
}

// Run connects and consumes the feed until error, server close, or
// cancellation. The supervisor restarts it after the reconnect delay.
func (a *NetworkAdapter) Run(ctx context.Context) error {
	wsURL := "wss://" + a.session.Host() + "/proxy/network/wss/s/default/events"

	conn, err := a.session.dialWebsocket(ctx, wsURL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	logging.Info().Msg("Network websocket connected")

	return readLoop(ctx, conn, a.Name(), func(msgType int, data []byte) {
		if msgType != websocket.TextMessage {
			return
		}
		a.handleMessage(ctx, data)
	})
}

func (a *NetworkAdapter) handleMessage(ctx context.Context, raw []byte) {
	ev, payload, stateRaw, err := parseNetworkMessage(raw)
	if err != nil {
		metrics.ProtocolErrors.WithLabelValues(a.Name()).Inc()
		logging.Warn().Err(err).Msg("Failed to parse network event")
		return
	}

	if entityID, ok := a.filter.EntityID(ev.EventType, payload, ev.ID); ok {
		if !a.states.Changed(entityID, models.HashStateBytes(stateRaw)) {
			metrics.RefreshesSuppressed.WithLabelValues(a.Name()).Inc()
			logging.Trace().Str("entity", entityID).Msg("Skipping unchanged sync")
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

// parseNetworkMessage decodes one websocket text frame into a
// canonical event plus the decoded payload and the raw state body used
// by the heartbeat filter.
func parseNetworkMessage(raw []byte) (*models.Event, map[string]any, []byte, error) {
	var msg struct {
		Type string `json:"type"`
		Key  string `json:"key"`
		Meta struct {
			Message string `json:"message"`
		} `json:"meta"`
		Data json.RawMessage `json:"data"`
		Time int64           `json:"time"`
		ID   string          `json:"_id"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, nil, nil, protocolErr("network event parse failed", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, nil, protocolErr("network event parse failed", err)
	}

	// Event type precedence: type, key, meta.message.
	eventType := msg.Type
	if eventType == "" {
		eventType = msg.Key
	}
	if eventType == "" {
		eventType = msg.Meta.Message
	}
	if eventType == "" {
		eventType = "unknown"
	}

	ts := time.Now().UTC()
	if msg.Time > 0 {
		ts = time.UnixMilli(msg.Time).UTC()
	}

	var severity models.Severity
	if eventType == "alarm" {
		severity = models.SeverityWarning
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
		ID:        models.GenerateEventID(models.SourceNetwork, eventType, ts, keyFields),
		Timestamp: ts,
		Source:    models.SourceNetwork,
		EventType: eventType,
		Summary:   networkSummary(eventType, payload),
		Severity:  severity,
		Raw:       raw,
	}
	return ev, payload, stateRaw, nil
}

func networkSummary(eventType string, payload map[string]any) string {
	var first map[string]any
	if data, ok := payload["data"].([]any); ok && len(data) > 0 {
		first, _ = data[0].(map[string]any)
	}

	switch eventType {
	case "sta:sync":
		if hostname, ok := first["hostname"].(string); ok {
			return "Client sync: " + hostname
		}
		return "Client sync event"
	case "device:sync":
		return "Device sync event"
	case "alarm":
		if msg, ok := first["msg"].(string); ok {
			return msg
		}
		return "Alarm event"
	case "evt":
		if msg, ok := first["msg"].(string); ok {
			return msg
		}
		return "System event"
	default:
		return eventType + " event"
	}
}
