// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/models"
)

// EventFilter selects stored events for QueryEvents/CountEvents.
// Zero values mean "no constraint".
type EventFilter struct {
	Classifications []models.Classification
	EventTypes      []string
	Search          string
	Limit           int
	Offset          int
}

// StoreEvent persists an event, applying the classification rule for
// its type. Returns the classification that was applied.
//
// A suppressed event is never inserted: the rule lookup and the insert
// happen under the same mutex hold, so suppression cannot race with a
// concurrent rule edit. Re-inserting an existing id is a no-op
// (INSERT OR IGNORE on the primary key).
func (db *DB) StoreEvent(ctx context.Context, event *models.Event) (models.Classification, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	classification, err := db.ruleLocked(ctx, event.EventType)
	if err != nil {
		return "", fmt.Errorf("rule lookup for %s failed: %w", event.EventType, err)
	}

	if classification == models.ClassificationSuppressed {
		return classification, nil
	}

	var severity any
	if event.Severity != "" {
		severity = string(event.Severity)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO events
		(id, source, event_type, severity, payload_json, summary, timestamp, classification, notified, notify_attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, false, 0, ?)`,
		event.ID,
		string(event.Source),
		event.EventType,
		severity,
		string(event.Raw),
		event.Summary,
		event.Timestamp.Unix(),
		string(classification),
		time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store event %s: %w", event.ID, err)
	}

	logging.Debug().
		Str("id", event.ID).
		Str("event_type", event.EventType).
		Str("classification", string(classification)).
		Msg("Event stored")

	return classification, nil
}

// PendingNotifications returns events classified notify that have not
// yet been delivered, oldest first.
func (db *DB) PendingNotifications(ctx context.Context) ([]models.StoredEvent, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source, event_type, severity, payload_json, summary, timestamp,
		       classification, notified, notify_attempts, created_at
		FROM events
		WHERE classification = 'notify' AND notified = false
		ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending notifications: %w", err)
	}
	defer closeQuietly(rows)

	return scanStoredEvents(rows)
}

// MarkNotified records a successful delivery for an event.
func (db *DB) MarkNotified(ctx context.Context, eventID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx,
		"UPDATE events SET notified = true WHERE id = ?", eventID); err != nil {
		return fmt.Errorf("failed to mark event %s notified: %w", eventID, err)
	}
	return nil
}

// IncrementNotifyAttempts bumps the attempt counter for an event and
// returns the new value.
func (db *DB) IncrementNotifyAttempts(ctx context.Context, eventID string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx,
		"UPDATE events SET notify_attempts = notify_attempts + 1 WHERE id = ?", eventID); err != nil {
		return 0, fmt.Errorf("failed to increment notify attempts for %s: %w", eventID, err)
	}

	var attempts int
	err := db.conn.QueryRowContext(ctx,
		"SELECT notify_attempts FROM events WHERE id = ?", eventID).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to read notify attempts for %s: %w", eventID, err)
	}
	return attempts, nil
}

// GetEvent returns a single stored event by id, or sql.ErrNoRows.
func (db *DB) GetEvent(ctx context.Context, eventID string) (*models.StoredEvent, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source, event_type, severity, payload_json, summary, timestamp,
		       classification, notified, notify_attempts, created_at
		FROM events WHERE id = ?`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event %s: %w", eventID, err)
	}
	defer closeQuietly(rows)

	events, err := scanStoredEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, sql.ErrNoRows
	}
	return &events[0], nil
}

// QueryEvents returns stored events matching the filter, newest first.
func (db *DB) QueryEvents(ctx context.Context, filter EventFilter) ([]models.StoredEvent, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query, args := buildEventQuery(`
		SELECT id, source, event_type, severity, payload_json, summary, timestamp,
		       classification, notified, notify_attempts, created_at
		FROM events WHERE 1=1`, filter)

	query += " ORDER BY timestamp DESC, id DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer closeQuietly(rows)

	return scanStoredEvents(rows)
}

// CountEvents returns the number of stored events matching the filter.
func (db *DB) CountEvents(ctx context.Context, filter EventFilter) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query, args := buildEventQuery("SELECT COUNT(*) FROM events WHERE 1=1", filter)

	var count int64
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// EventTypeSummaries returns distinct event types with counts, latest
// occurrence, and effective classification, latest first.
func (db *DB) EventTypeSummaries(ctx context.Context) ([]models.EventTypeSummary, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT e.event_type,
		       COUNT(*) AS count,
		       MAX(e.timestamp) AS latest,
		       COALESCE(r.classification, 'unclassified') AS classification
		FROM events e
		LEFT JOIN event_type_rules r ON e.event_type = r.event_type
		GROUP BY e.event_type, r.classification
		ORDER BY latest DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query event type summaries: %w", err)
	}
	defer closeQuietly(rows)

	var summaries []models.EventTypeSummary
	for rows.Next() {
		var s models.EventTypeSummary
		var latest int64
		var classification string
		if err := rows.Scan(&s.EventType, &s.Count, &latest, &classification); err != nil {
			return nil, fmt.Errorf("failed to scan event type summary: %w", err)
		}
		s.LatestTimestamp = time.Unix(latest, 0).UTC()
		if c, ok := models.ParseClassification(classification); ok {
			s.Classification = c
		} else {
			s.Classification = models.ClassificationUnclassified
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// buildEventQuery appends filter predicates to a base query.
func buildEventQuery(base string, filter EventFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	var args []any

	if len(filter.Classifications) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Classifications))
		sb.WriteString(" AND classification IN (" + placeholders[:len(placeholders)-1] + ")")
		for _, c := range filter.Classifications {
			args = append(args, string(c))
		}
	}

	if len(filter.EventTypes) > 0 {
		placeholders := strings.Repeat("?,", len(filter.EventTypes))
		sb.WriteString(" AND event_type IN (" + placeholders[:len(placeholders)-1] + ")")
		for _, t := range filter.EventTypes {
			args = append(args, t)
		}
	}

	if filter.Search != "" {
		sb.WriteString(" AND (event_type ILIKE ? OR summary ILIKE ? OR source ILIKE ? OR payload_json ILIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}

	return sb.String(), args
}

// scanStoredEvents reads StoredEvent rows in the canonical column order.
func scanStoredEvents(rows *sql.Rows) ([]models.StoredEvent, error) {
	var events []models.StoredEvent
	for rows.Next() {
		var ev models.StoredEvent
		var source, classification, payload string
		var severity sql.NullString
		var timestamp, createdAt int64

		if err := rows.Scan(&ev.ID, &source, &ev.EventType, &severity, &payload,
			&ev.Summary, &timestamp, &classification, &ev.Notified,
			&ev.NotifyAttempts, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		ev.Source = models.ParseEventSource(source)
		if severity.Valid {
			ev.Severity = models.Severity(severity.String)
		}
		ev.Raw = []byte(payload)
		ev.Timestamp = time.Unix(timestamp, 0).UTC()
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		if c, ok := models.ParseClassification(classification); ok {
			ev.Classification = c
		} else {
			ev.Classification = models.ClassificationUnclassified
		}

		events = append(events, ev)
	}
	return events, rows.Err()
}
