// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package unifi

import (
	"strings"
)

// RefreshFilter identifies refresh-grade (heartbeat) messages and
// derives the entity whose state they refresh. Adapters pair it with a
// shared StateTracker: a refresh whose state hash is unchanged is
// dropped before dedup and emission.
type RefreshFilter interface {
	// EntityID returns the state-tracking key for eventType, or
	// ok=false when the event type is not refresh-grade. payload is
	// the decoded message; fallbackID seeds the key when the payload
	// carries no usable identifier.
	EntityID(eventType string, payload map[string]any, fallbackID string) (entityID string, ok bool)
}

// networkRefresh treats sta:sync and device:sync as refreshes, keyed
// by data[0]._id, then data[0].mac, then "{type}:{fallback}".
type networkRefresh struct{}

func (networkRefresh) EntityID(eventType string, payload map[string]any, fallbackID string) (string, bool) {
	if eventType != "sta:sync" && eventType != "device:sync" {
		return "", false
	}

	if data, ok := payload["data"].([]any); ok && len(data) > 0 {
		if first, ok := data[0].(map[string]any); ok {
			if id, ok := first["_id"].(string); ok {
				return eventType + ":" + id, true
			}
			if mac, ok := first["mac"].(string); ok {
				return eventType + ":" + mac, true
			}
		}
	}

	return eventType + ":" + fallbackID, true
}

// systemRefresh treats DEVICE_STATE_CHANGED and any type containing
// "state" as state updates, keyed by data.deviceId, then data.id.
type systemRefresh struct{}

func (systemRefresh) EntityID(eventType string, payload map[string]any, fallbackID string) (string, bool) {
	if eventType != "DEVICE_STATE_CHANGED" && !strings.Contains(eventType, "state") {
		return "", false
	}

	if data, ok := payload["data"].(map[string]any); ok {
		if id, ok := data["deviceId"].(string); ok {
			return "system:" + id, true
		}
		if id, ok := data["id"].(string); ok {
			return "system:" + id, true
		}
	}

	return "system:" + fallbackID, true
}
