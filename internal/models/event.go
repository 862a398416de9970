// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package models

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EventSource identifies which UniFi subsystem produced an event.
type EventSource string

// Known event sources. The value doubles as the stable lowercase tag
// used in event IDs and in the store.
const (
	SourceNetwork EventSource = "network"
	SourceSystem  EventSource = "system"
	SourceProtect EventSource = "protect"
)

// ParseEventSource maps a stored source tag back to an EventSource.
// Unknown tags are preserved as-is so that a configured distinct
// backfill tag survives a round-trip through the store.
func ParseEventSource(s string) EventSource {
	return EventSource(s)
}

// Severity is an optional event severity level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Classification is the disposition applied to an event type.
type Classification string

const (
	// ClassificationIgnored - stored, never notified.
	ClassificationIgnored Classification = "ignored"

	// ClassificationUnclassified - stored, awaiting an operator decision.
	ClassificationUnclassified Classification = "unclassified"

	// ClassificationNotify - stored and queued for notification.
	ClassificationNotify Classification = "notify"

	// ClassificationSuppressed - dropped entirely: not persisted, not
	// logged, not notified.
	ClassificationSuppressed Classification = "suppressed"
)

// ParseClassification returns the Classification for s, or false if s
// is not a recognized classification string.
func ParseClassification(s string) (Classification, bool) {
	switch Classification(s) {
	case ClassificationIgnored, ClassificationUnclassified,
		ClassificationNotify, ClassificationSuppressed:
		return Classification(s), true
	}
	return "", false
}

// Event is the canonical unified event from any UniFi source.
// Immutable after creation.
type Event struct {
	// ID is a deterministic content hash, see GenerateEventID.
	ID string `json:"id"`

	// Timestamp is when the event occurred (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Source is the UniFi subsystem that generated this event.
	Source EventSource `json:"source"`

	// EventType, e.g. "alarm", "camera.update", "sta:sync".
	EventType string `json:"event_type"`

	// Summary is a short human-readable description.
	Summary string `json:"summary"`

	// Severity is empty when the source assigned none.
	Severity Severity `json:"severity,omitempty"`

	// Raw is the original payload; for Protect events a normalized
	// {action, modelKey, id, data} envelope.
	Raw json.RawMessage `json:"raw"`
}

// StoredEvent is an Event plus its classification state in the store.
type StoredEvent struct {
	Event

	Classification Classification `json:"classification"`
	Notified       bool           `json:"notified"`
	NotifyAttempts int            `json:"notify_attempts"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Rule maps an event type to a classification.
type Rule struct {
	EventType      string         `json:"event_type"`
	Classification Classification `json:"classification"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// EventTypeSummary aggregates stored events by type for the rules UI.
type EventTypeSummary struct {
	EventType       string         `json:"event_type"`
	Count           int64          `json:"count"`
	LatestTimestamp time.Time      `json:"latest_timestamp"`
	Classification  Classification `json:"classification"`
}

// NotificationLogEntry records one terminal notification outcome.
type NotificationLogEntry struct {
	ID        uuid.UUID `json:"id"`
	EventID   string    `json:"event_id,omitempty"`
	EventType string    `json:"event_type,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Status    string    `json:"status"` // "sent" or "failed"
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification log statuses.
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)
