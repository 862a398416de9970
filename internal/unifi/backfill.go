// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

/*
backfill.go - One-Shot Historical REST Backfill

Runs once, after the websocket adapters are live, so that any live
event that also appears in the historical results is already in the
shared dedup set and gets skipped. The reverse order would leave a
window during which live events could be missed.
*/

package unifi

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gatewatch/internal/config"
	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/metrics"
	"github.com/tomtom215/gatewatch/internal/models"
)

// Backfill pulls recent historical events over REST and feeds them
// through the shared dedup set into the same channel the adapters use.
type Backfill struct {
	session *Session
	events  chan<- models.Event
	dedup   *DedupSet
	cfg     config.BackfillConfig
}

// NewBackfill creates the backfill job.
func NewBackfill(session *Session, events chan<- models.Event, dedup *DedupSet, cfg config.BackfillConfig) *Backfill {
	return &Backfill{
		session: session,
		events:  events,
		dedup:   dedup,
		cfg:     cfg,
	}
}

// Run fetches and emits historical events. Fetch failures are logged
// and skipped: backfill is best-effort, the live feeds are the source
// of truth. Returns the number of events emitted.
func (b *Backfill) Run(ctx context.Context) int {
	count := 0

	rows, err := b.session.NetworkEvents(ctx, b.cfg.NetworkLimit)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to fetch historical network events")
	} else {
		n := b.emit(ctx, rows, parseNetworkBackfillEvent(models.SourceNetwork))
		metrics.BackfillEvents.WithLabelValues(string(models.SourceNetwork)).Add(float64(n))
		logging.Debug().Int("count", n).Msg("Loaded historical network events")
		count += n
	}

	rows, fromFallback, err := b.session.SystemEvents(ctx, b.cfg.SystemLimit)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to fetch historical system events")
	} else {
		// The alarm fallback serves a second schema through the network
		// proxy; the source tag it gets is a configured policy.
		source := models.SourceSystem
		if fromFallback && b.cfg.AlarmFallback == config.AlarmFallbackDistinct {
			source = models.SourceNetwork
		}
		n := b.emit(ctx, rows, parseSystemBackfillEvent(source))
		metrics.BackfillEvents.WithLabelValues(string(source)).Add(float64(n))
		logging.Debug().Int("count", n).Bool("fallback", fromFallback).Msg("Loaded historical system events")
		count += n
	}

	logging.Info().Int("count", count).Msg("Historical backfill complete")
	return count
}

// emit parses rows and pushes novel events into the channel.
func (b *Backfill) emit(ctx context.Context, rows []json.RawMessage, parse func([]byte) *models.Event) int {
	count := 0
	for _, raw := range rows {
		ev := parse(raw)
		if ev == nil {
			continue
		}
		if !b.dedup.Insert(ev.ID) {
			continue
		}

		select {
		case b.events <- *ev:
			count++
		case <-ctx.Done():
			return count
		}
	}
	return count
}

// parseNetworkBackfillEvent parses one row from the network event
// history endpoint. REST rows prefer "key" over "type" and may carry
// the timestamp under "time" or "datetime", in either ms or s.
func parseNetworkBackfillEvent(source models.EventSource) func([]byte) *models.Event {
	return func(raw []byte) *models.Event {
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			logging.Debug().Err(err).Msg("Skipping unparseable backfill row")
			return nil
		}

		eventType := stringField(payload, "key", "type")
		if eventType == "" {
			eventType = "unknown"
		}

		ts := numericTimestamp(payload, "time", "datetime")

		summary := stringField(payload, "msg")
		if summary == "" {
			summary = eventType + " event"
		}

		var severity models.Severity
		switch eventType {
		case "EVT_LAN_CLIENT_BLOCKED", "EVT_AP_LOST_CONTACT":
			severity = models.SeverityWarning
		}

		keyFields := models.ExtractKeyFields(payload)
		if id, ok := payload["_id"].(string); ok {
			keyFields = []string{id}
		}

		return &models.Event{
			ID:        models.GenerateEventID(source, eventType, ts, keyFields),
			Timestamp: ts,
			Source:    source,
			EventType: eventType,
			Summary:   summary,
			Severity:  severity,
			Raw:       raw,
		}
	}
}

// parseSystemBackfillEvent parses one row from the system logs (or
// alarm fallback) endpoint.
func parseSystemBackfillEvent(source models.EventSource) func([]byte) *models.Event {
	return func(raw []byte) *models.Event {
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			logging.Debug().Err(err).Msg("Skipping unparseable backfill row")
			return nil
		}

		eventType := stringField(payload, "key", "type", "eventType")
		if eventType == "" {
			eventType = "unknown"
		}

		ts := numericTimestamp(payload, "time", "timestamp")

		summary := stringField(payload, "msg", "message", "description")
		if summary == "" {
			summary = eventType + " event"
		}

		keyFields := models.ExtractKeyFields(payload)
		if id, ok := payload["_id"].(string); ok {
			keyFields = []string{id}
		}

		return &models.Event{
			ID:        models.GenerateEventID(source, eventType, ts, keyFields),
			Timestamp: ts,
			Source:    source,
			EventType: eventType,
			Summary:   summary,
			Raw:       raw,
		}
	}
}

// stringField returns the first non-empty string value among keys.
func stringField(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := payload[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// numericTimestamp probes keys for a unix timestamp; values above 1e12
// are milliseconds, below are seconds. Falls back to now.
func numericTimestamp(payload map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		f, ok := payload[k].(float64)
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
