// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/gatewatch/internal/models"
)

// LogNotification appends a terminal notification outcome (sent or
// failed, after the retry budget) to the notification log.
func (db *DB) LogNotification(ctx context.Context, entry *models.NotificationLogEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO notification_log (id, event_id, event_type, summary, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(),
		nullable(entry.EventID),
		nullable(entry.EventType),
		nullable(entry.Summary),
		entry.Status,
		nullable(entry.Error),
		entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to log notification: %w", err)
	}
	return nil
}

// ListNotificationLog returns the most recent notification outcomes.
func (db *DB) ListNotificationLog(ctx context.Context, limit int) ([]models.NotificationLogEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, event_id, event_type, summary, status, error, created_at
		FROM notification_log
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification log: %w", err)
	}
	defer closeQuietly(rows)

	var entries []models.NotificationLogEntry
	for rows.Next() {
		var e models.NotificationLogEntry
		var id string
		var eventID, eventType, summary, errMsg sql.NullString
		var createdAt int64
		if err := rows.Scan(&id, &eventID, &eventType, &summary, &e.Status, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log row: %w", err)
		}
		e.ID, _ = uuid.Parse(id)
		e.EventID = eventID.String
		e.EventType = eventType.String
		e.Summary = summary.String
		e.Error = errMsg.String
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
