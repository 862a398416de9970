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
	"github.com/tomtom215/gatewatch/internal/models"
)

// Rule returns the classification rule for an event type, or
// ClassificationUnclassified when no rule exists.
func (db *DB) Rule(ctx context.Context, eventType string) (models.Classification, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, err := db.ruleLocked(ctx, eventType)
	if err != nil {
		return "", fmt.Errorf("rule lookup for %s failed: %w", eventType, err)
	}
	return c, nil
}

// ruleLocked resolves the effective classification for an event type.
// Returns ClassificationUnclassified when no rule exists.
// Caller must hold db.mu.
func (db *DB) ruleLocked(ctx context.Context, eventType string) (models.Classification, error) {
	var s string
	err := db.conn.QueryRowContext(ctx,
		"SELECT classification FROM event_type_rules WHERE event_type = ?", eventType).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ClassificationUnclassified, nil
	}
	if err != nil {
		return "", err
	}

	if c, ok := models.ParseClassification(s); ok {
		return c, nil
	}
	return models.ClassificationUnclassified, nil
}

// SetRule upserts a classification rule and cascades the new
// classification onto all existing events of that type. The cascade
// runs under the same mutex hold as the rule write, so events stored
// concurrently converge to the new classification either via the rule
// lookup or via the cascade.
func (db *DB) SetRule(ctx context.Context, eventType string, classification models.Classification) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := time.Now().Unix()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO event_type_rules (event_type, classification, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_type) DO UPDATE SET
			classification = excluded.classification,
			updated_at = excluded.updated_at`,
		eventType, string(classification), now, now)
	if err != nil {
		return fmt.Errorf("failed to set rule for %s: %w", eventType, err)
	}

	res, err := db.conn.ExecContext(ctx,
		"UPDATE events SET classification = ? WHERE event_type = ?",
		string(classification), eventType)
	if err != nil {
		return fmt.Errorf("failed to cascade rule for %s: %w", eventType, err)
	}

	updated, _ := res.RowsAffected()
	logging.Debug().
		Str("event_type", eventType).
		Str("classification", string(classification)).
		Int64("updated", updated).
		Msg("Rule set and events updated")
	return nil
}

// DeleteRule removes a classification rule and reverts all existing
// events of that type to unclassified. Returns false when no rule
// existed.
func (db *DB) DeleteRule(ctx context.Context, eventType string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM event_type_rules WHERE event_type = ?", eventType)
	if err != nil {
		return false, fmt.Errorf("failed to delete rule for %s: %w", eventType, err)
	}

	deleted, _ := res.RowsAffected()
	if deleted == 0 {
		return false, nil
	}

	if _, err := db.conn.ExecContext(ctx,
		"UPDATE events SET classification = 'unclassified' WHERE event_type = ?",
		eventType); err != nil {
		return false, fmt.Errorf("failed to revert events for %s: %w", eventType, err)
	}

	logging.Debug().Str("event_type", eventType).Msg("Rule deleted, events reverted to unclassified")
	return true, nil
}

// ListRules returns all classification rules ordered by event type.
func (db *DB) ListRules(ctx context.Context) ([]models.Rule, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT event_type, classification, created_at, updated_at
		FROM event_type_rules ORDER BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer closeQuietly(rows)

	var rules []models.Rule
	for rows.Next() {
		var r models.Rule
		var classification string
		var createdAt, updatedAt int64
		if err := rows.Scan(&r.EventType, &classification, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		if c, ok := models.ParseClassification(classification); ok {
			r.Classification = c
		} else {
			r.Classification = models.ClassificationUnclassified
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
