// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package models

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// keyFieldNames are the identifier fields probed from payloads, in
// order of preference. Only the first hit is used.
var keyFieldNames = [...]string{"_id", "id", "mac", "deviceId", "camera", "sensor"}

// GenerateEventID computes a deterministic content-addressed event ID.
//
// The ID is derived from the source tag, the event type, the timestamp
// truncated to whole seconds, and the key fields. Second-level
// truncation gives a deliberate ±1s tolerance so the same underlying
// event reported over the websocket and the REST backfill hashes to
// the same ID. Fields are separated by NUL bytes so adjacent fields
// cannot alias.
//
// Format: "{source}-{16 hex digits}".
func GenerateEventID(source EventSource, eventType string, ts time.Time, keyFields []string) string {
	h := xxhash.New()

	_, _ = h.WriteString(string(source))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(eventType)
	_, _ = h.Write([]byte{0})

	var sec [8]byte
	binary.BigEndian.PutUint64(sec[:], uint64(ts.Unix()))
	_, _ = h.Write(sec[:])

	for _, f := range keyFields {
		_, _ = h.WriteString(f)
		_, _ = h.Write([]byte{0})
	}

	return fmt.Sprintf("%s-%016x", source, h.Sum64())
}

// ExtractKeyFields probes a decoded JSON payload for an identifier
// suitable for ID generation. It checks the top level first; when
// nothing matches and the payload carries a "data" array, the first
// element of that array is probed with the same preference list.
func ExtractKeyFields(payload map[string]any) []string {
	if f, ok := probeKeyField(payload); ok {
		return []string{f}
	}

	if data, ok := payload["data"].([]any); ok && len(data) > 0 {
		if first, ok := data[0].(map[string]any); ok {
			if f, ok := probeKeyField(first); ok {
				return []string{f}
			}
		}
	}

	return nil
}

func probeKeyField(obj map[string]any) (string, bool) {
	for _, k := range keyFieldNames {
		if s, ok := obj[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

// HashStateBytes computes the 64-bit state hash over a raw JSON
// fragment. Adapters hash the wire bytes of the state body, so two
// byte-for-byte equal refreshes always collide and a single-byte
// change never does.
func HashStateBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// HashState computes the 64-bit state hash of an arbitrary value via
// its JSON serialization. Used where no raw fragment is available.
func HashState(v any) uint64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}
