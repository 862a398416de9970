// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

/*
protect.go - Protect (NVR) Binary Event Adapter

Websocket endpoint: /proxy/protect/ws/updates?lastUpdateId=X, binary
frames per frame.go. Carries NVR status, storage health, camera state,
motion, doorbell, and sensor events.

Resume: the URL carries an opaque cursor. Before each connect the
adapter prefers the cursor saved in sync_state over the startup
bootstrap value, so restarts resume from the last persisted progress
point. The cursor advances on every emitted event that carried a
newUpdateId.
*/

package unifi

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/metrics"
	"github.com/tomtom215/gatewatch/internal/models"
)

// CursorStore persists the Protect resume cursor. Satisfied by
// *database.DB.
type CursorStore interface {
	LastUpdateID(ctx context.Context, source string) (string, error)
	SetLastUpdateID(ctx context.Context, source, updateID string) error
}

// ProtectAdapter streams the Protect binary feed into the shared event
// channel.
type ProtectAdapter struct {
	session     *Session
	events      chan<- models.Event
	dedup       *DedupSet
	states      *StateTracker
	cursors     CursorStore
	bootstrapID string
}

// NewProtectAdapter creates the Protect feed adapter. bootstrapID is
// the cursor from the bootstrap endpoint, used until a durable cursor
// has been persisted.
func NewProtectAdapter(session *Session, events chan<- models.Event, dedup *DedupSet, states *StateTracker, cursors CursorStore, bootstrapID string) *ProtectAdapter {
	return &ProtectAdapter{
		session:     session,
		events:      events,
		dedup:       dedup,
		states:      states,
		cursors:     cursors,
		bootstrapID: bootstrapID,
	}
}

// Name returns the source tag for supervision and logging.
func (a *ProtectAdapter) Name() string {
	return string(models.SourceProtect)
}

// Run connects with the current resume cursor and consumes the feed
// until error, server close, or cancellation.
func (a *ProtectAdapter) Run(ctx context.Context) error {
	cursor := a.resumeCursor(ctx)
	wsURL := fmt.Sprintf("wss://%s/proxy/protect/ws/updates?lastUpdateId=%s",
		a.session.Host(), url.QueryEscape(cursor))

	conn, err := a.session.dialWebsocket(ctx, wsURL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	logging.Info().Str("last_update_id", cursor).Msg("Protect websocket connected")

	return readLoop(ctx, conn, a.Name(), func(msgType int, data []byte) {
		if msgType != websocket.BinaryMessage {
			return
		}
		a.handleMessage(ctx, data)
	})
}

// resumeCursor returns the durable cursor when one has been saved,
// falling back to the bootstrap value.
func (a *ProtectAdapter) resumeCursor(ctx context.Context) string {
	if a.cursors == nil {
		return a.bootstrapID
	}

	saved, err := a.cursors.LastUpdateID(ctx, a.Name())
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to load saved lastUpdateId, using bootstrap")
		return a.bootstrapID
	}
	if saved == "" {
		return a.bootstrapID
	}

	logging.Info().Str("saved_id", saved).Msg("Resuming Protect from saved lastUpdateId")
	return saved
}

func (a *ProtectAdapter) handleMessage(ctx context.Context, data []byte) {
	msg, err := DecodeProtectMessage(data)
	if err != nil {
		// Protocol errors drop the message, never the connection.
		metrics.ProtocolErrors.WithLabelValues(a.Name()).Inc()
		logging.Warn().Err(err).Msg("Failed to parse Protect packet")
		return
	}

	if msg.Action.Action == "update" {
		entityID := msg.Action.ModelKey + ":" + msg.Action.ID
		if !a.states.Changed(entityID, models.HashStateBytes(msg.stateBytes())) {
			metrics.RefreshesSuppressed.WithLabelValues(a.Name()).Inc()
			logging.Trace().Str("entity", entityID).Msg("Skipping unchanged update")
			return
		}
	}

	ev := buildProtectEvent(msg)

	if !a.dedup.Insert(ev.ID) {
		metrics.EventsDeduplicated.WithLabelValues(a.Name()).Inc()
		logging.Trace().Str("id", ev.ID).Msg("Skipping duplicate event")
		return
	}

	// Save the cursor for resume after restart.
	if msg.Action.NewUpdateID != "" && a.cursors != nil {
		if err := a.cursors.SetLastUpdateID(ctx, a.Name(), msg.Action.NewUpdateID); err != nil {
			logging.Warn().Err(err).Msg("Failed to save lastUpdateId")
		}
	}

	logging.Debug().Str("event_type", ev.EventType).Str("summary", ev.Summary).Msg("Protect event")

	select {
	case a.events <- *ev:
		metrics.EventsIngested.WithLabelValues(a.Name()).Inc()
	case <-ctx.Done():
	}
}

// stateBytes returns the state body hashed by the heartbeat filter.
func (m *ProtectMessage) stateBytes() []byte {
	if len(m.DataRaw) > 0 {
		return m.DataRaw
	}
	return []byte("null")
}

// protectEnvelope is the normalized raw payload stored for Protect
// events.
type protectEnvelope struct {
	Action   string          `json:"action"`
	ModelKey string          `json:"modelKey"`
	ID       string          `json:"id"`
	Data     json.RawMessage `json:"data"`
}

// buildProtectEvent converts a decoded frame pair to a canonical event.
func buildProtectEvent(msg *ProtectMessage) *models.Event {
	action := msg.Action

	// For the "event" modelKey the payload type is the meaningful
	// name (motion, ring, …); everything else is "{modelKey}.{action}".
	eventType := action.ModelKey + "." + action.Action
	if action.ModelKey == "event" {
		if t, ok := msg.Data["type"].(string); ok {
			eventType = t
		}
	}

	ts := protectTimestamp(msg.Data)

	keyFields := []string{action.ID}
	if eid, ok := msg.Data["id"].(string); ok {
		keyFields = append(keyFields, eid)
	}

	dataJSON := json.RawMessage("null")
	if msg.Data != nil {
		dataJSON = msg.DataRaw
	}
	raw, err := json.Marshal(protectEnvelope{
		Action:   action.Action,
		ModelKey: action.ModelKey,
		ID:       action.ID,
		Data:     dataJSON,
	})
	if err != nil {
		raw = []byte("null")
	}

	return &models.Event{
		ID:        models.GenerateEventID(models.SourceProtect, eventType, ts, keyFields),
		Timestamp: ts,
		Source:    models.SourceProtect,
		EventType: eventType,
		Summary:   protectSummary(action.ModelKey, action.Action, msg.Data),
		Severity:  protectSeverity(action.ModelKey, msg.Data),
		Raw:       raw,
	}
}

// protectTimestamp probes data.start then data.timestamp; values above
// 1e12 are milliseconds, below are seconds. Falls back to now.
func protectTimestamp(data map[string]any) time.Time {
	for _, key := range [...]string{"start", "timestamp"} {
		v, ok := data[key]
		if !ok {
			continue
		}
		f, ok := v.(float64)
		if !ok {
			continue
		}
		ts := int64(f)
		if ts > 1_000_000_000_000 {
			ts /= 1000
		}
		return time.Unix(ts, 0).UTC()
	}
	return time.Now().UTC()
}

func protectSummary(modelKey, action string, data map[string]any) string {
	switch modelKey {
	case "nvr":
		if n := unhealthyStorageDevices(data); n > 0 {
			return fmt.Sprintf("Storage: %d unhealthy device(s)", n)
		}
		return "NVR " + action
	case "camera":
		name, ok := data["name"].(string)
		if !ok {
			name = "Unknown"
		}
		state, ok := data["state"].(string)
		if !ok {
			state = "unknown"
		}
		return fmt.Sprintf("Camera '%s': %s", name, state)
	case "event":
		eventType, ok := data["type"].(string)
		if !ok {
			eventType = "unknown"
		}
		return "Protect event: " + eventType
	case "sensor":
		name, ok := data["name"].(string)
		if !ok {
			name = "Unknown"
		}
		return fmt.Sprintf("Sensor '%s' %s", name, action)
	default:
		return modelKey + " " + action
	}
}

func protectSeverity(modelKey string, data map[string]any) models.Severity {
	switch modelKey {
	case "nvr":
		if unhealthyStorageDevices(data) > 0 {
			return models.SeverityError
		}
	case "camera":
		if state, ok := data["state"].(string); ok && state == "DISCONNECTED" {
			return models.SeverityWarning
		}
	}
	return ""
}

// unhealthyStorageDevices counts systemInfo.storage.devices entries
// with healthy == false.
func unhealthyStorageDevices(data map[string]any) int {
	systemInfo, ok := data["systemInfo"].(map[string]any)
	if !ok {
		return 0
	}
	storage, ok := systemInfo["storage"].(map[string]any)
	if !ok {
		return 0
	}
	devices, ok := storage["devices"].([]any)
	if !ok {
		return 0
	}

	count := 0
	for _, d := range devices {
		dev, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if healthy, ok := dev["healthy"].(bool); ok && !healthy {
			count++
		}
	}
	return count
}
