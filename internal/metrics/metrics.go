// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Package metrics provides Prometheus instrumentation for ingestion,
// classification, and notification delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_events_ingested_total",
			Help: "Total events emitted by source adapters after filtering",
		},
		[]string{"source"},
	)

	EventsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_events_deduplicated_total",
			Help: "Total events dropped by the in-memory dedup set",
		},
		[]string{"source"},
	)

	RefreshesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_refreshes_suppressed_total",
			Help: "Total refresh-grade messages dropped by the state-hash filter",
		},
		[]string{"source"},
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_protocol_errors_total",
			Help: "Total malformed messages dropped without tearing down the connection",
		},
		[]string{"source"},
	)

	AdapterRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_adapter_restarts_total",
			Help: "Total websocket adapter restarts",
		},
		[]string{"source"},
	)

	BackfillEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_backfill_events_total",
			Help: "Total historical events loaded by the REST backfill",
		},
		[]string{"source"},
	)

	// Classification metrics

	EventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_events_classified_total",
			Help: "Total events processed by the classifier, by resolved classification",
		},
		[]string{"classification"},
	)

	StoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewatch_store_errors_total",
			Help: "Total durable write failures in the classifier path",
		},
	)

	// Notification metrics

	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewatch_notifications_sent_total",
			Help: "Total notifications acknowledged by the chat channel",
		},
	)

	NotificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewatch_notifications_failed_total",
			Help: "Total notifications abandoned after the retry budget",
		},
	)

	NotificationAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewatch_notification_attempts_total",
			Help: "Total notification delivery attempts",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gatewatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Retention metrics

	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewatch_retention_deleted_events_total",
			Help: "Total events removed by size-budget retention",
		},
	)

	DatabaseSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatewatch_database_size_bytes",
			Help: "On-disk size of the event store",
		},
	)

	// SSE metrics

	SSESubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatewatch_sse_subscribers",
			Help: "Currently connected SSE subscribers",
		},
	)

	SSEDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewatch_sse_dropped_total",
			Help: "Events dropped for slow SSE subscribers",
		},
	)
)
