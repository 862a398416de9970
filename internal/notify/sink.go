// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package notify

import (
	"context"

	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/models"
)

// SinkSender drains the notify queue when no chat channel is
// configured. Every send succeeds, so events are marked notified and
// never pile up as pending work.
type SinkSender struct{}

// Send discards the notification.
func (SinkSender) Send(_ context.Context, ev *models.StoredEvent) error {
	logging.Debug().
		Str("id", ev.ID).
		Str("event_type", ev.EventType).
		Msg("Telegram not configured, draining notification")
	return nil
}
