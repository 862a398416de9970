// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Package models defines the canonical event model shared across the
// ingestion, classification, and notification subsystems, plus the
// content-addressed event identity and state hashing primitives.
package models
