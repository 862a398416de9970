// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package database

import (
	"context"
	"fmt"
	"os"

	"github.com/tomtom215/gatewatch/internal/logging"
)

// FileSize returns the on-disk size of the store in bytes.
// In-memory stores report 0.
func (db *DB) FileSize() (int64, error) {
	if db.path == "" {
		return 0, nil
	}
	info, err := os.Stat(db.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat database file: %w", err)
	}
	return info.Size(), nil
}

// EventCount returns the total number of stored events.
func (db *DB) EventCount(ctx context.Context) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var count int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// DeleteOldestEvents removes the n oldest events (by timestamp, id as
// tiebreaker). Rules, sync state, and the notification log are never
// touched by retention.
func (db *DB) DeleteOldestEvents(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM events WHERE id IN (
			SELECT id FROM events ORDER BY timestamp ASC, id ASC LIMIT ?
		)`, n)
	if err != nil {
		return 0, fmt.Errorf("failed to delete oldest events: %w", err)
	}

	deleted, _ := res.RowsAffected()
	logging.Info().Int64("deleted", deleted).Msg("Retention removed oldest events")
	return deleted, nil
}
