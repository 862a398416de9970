// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/gatewatch/internal/logging"
)

// LastUpdateID returns the saved resume cursor for a source, or ""
// when none has been recorded.
func (db *DB) LastUpdateID(ctx context.Context, source string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var id sql.NullString
	err := db.conn.QueryRowContext(ctx,
		"SELECT last_update_id FROM sync_state WHERE source = ?", source).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync state for %s: %w", source, err)
	}
	return id.String, nil
}

// SetLastUpdateID advances the resume cursor for a source. The cursor
// token is opaque; this is the only path that writes it, and it runs
// once per emitted frame carrying a new token, so the stored value is
// always the latest processed position.
func (db *DB) SetLastUpdateID(ctx context.Context, source, updateID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_state (source, last_update_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET
			last_update_id = excluded.last_update_id,
			updated_at = excluded.updated_at`,
		source, updateID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set sync state for %s: %w", source, err)
	}

	logging.Trace().Str("source", source).Str("update_id", updateID).Msg("Sync state updated")
	return nil
}

// ClearSyncState removes the resume cursor for a source.
func (db *DB) ClearSyncState(ctx context.Context, source string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx,
		"DELETE FROM sync_state WHERE source = ?", source); err != nil {
		return fmt.Errorf("failed to clear sync state for %s: %w", source, err)
	}
	return nil
}
