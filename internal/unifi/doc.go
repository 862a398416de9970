// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Package unifi implements the ingestion engine: the authenticated
// console session, the three concurrent source adapters (Network and
// System JSON websockets, Protect binary websocket), the Protect
// frame codec, the shared dedup and state-hash maps, and the one-shot
// REST backfill.
//
// All adapters feed one bounded channel of canonical models.Event
// values. Upstream payloads are treated as opaque JSON with
// best-effort field probing; there is no schema validation.
//
// Error taxonomy (mirrored from the error types in errors.go):
//
//   - auth failures are fatal to the run
//   - transport failures end one adapter run; the supervisor
//     reconnects after a delay
//   - protocol errors drop a single message and keep the connection
package unifi
