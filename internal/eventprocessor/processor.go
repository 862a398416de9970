// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Package eventprocessor classifies ingested events, persists them,
// and queues notifications.
//
// For each event delivered on the channel: look up the rule for its
// type (default unclassified), persist with the resolved
// classification, and publish notify-classified events onto the notify
// queue. Suppressed events are dropped without persisting, without
// emitting downstream, and without logging.
package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/gatewatch/internal/database"
	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/metrics"
	"github.com/tomtom215/gatewatch/internal/models"
)

// Broadcaster receives every processed (non-suppressed) event,
// best-effort. Satisfied by the API's SSE hub.
type Broadcaster interface {
	Broadcast(ev models.StoredEvent)
}

// Processor consumes the shared event channel.
type Processor struct {
	db          *database.DB
	events      <-chan models.Event
	publisher   message.Publisher
	broadcaster Broadcaster
}

// New creates a Processor reading from events and publishing notify
// snapshots to publisher.
func New(db *database.DB, events <-chan models.Event, publisher message.Publisher) *Processor {
	return &Processor{
		db:        db,
		events:    events,
		publisher: publisher,
	}
}

// SetBroadcaster attaches an optional best-effort broadcast sink.
func (p *Processor) SetBroadcaster(b Broadcaster) {
	p.broadcaster = b
}

// Run consumes events until the context is canceled or the channel is
// closed. Channel close is a graceful shutdown signal. Store failures
// lose the event from the current run's notify path but keep the
// channel draining.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.events:
			if !ok {
				logging.Info().Msg("Event channel closed, processor stopping")
				return nil
			}
			if _, err := p.Process(ctx, ev); err != nil {
				metrics.StoreErrors.Inc()
				logging.Error().Err(err).Str("id", ev.ID).Msg("Failed to process event")
			}
		}
	}
}

// Process classifies and persists one event, returning the applied
// classification.
func (p *Processor) Process(ctx context.Context, ev models.Event) (models.Classification, error) {
	classification, err := p.db.StoreEvent(ctx, &ev)
	if err != nil {
		return "", err
	}

	// Suppressed means drop entirely: no store (handled above), no
	// downstream emit, no log line.
	if classification == models.ClassificationSuppressed {
		metrics.EventsClassified.WithLabelValues(string(classification)).Inc()
		return classification, nil
	}

	metrics.EventsClassified.WithLabelValues(string(classification)).Inc()
	logging.Debug().
		Str("id", ev.ID).
		Str("event_type", ev.EventType).
		Str("classification", string(classification)).
		Msg("Processed event")

	stored := models.StoredEvent{
		Event:          ev,
		Classification: classification,
		CreatedAt:      time.Now().UTC(),
	}

	if p.broadcaster != nil {
		p.broadcaster.Broadcast(stored)
	}

	if classification == models.ClassificationNotify {
		if err := p.publish(&stored); err != nil {
			return classification, fmt.Errorf("failed to queue notification for %s: %w", ev.ID, err)
		}
	}

	return classification, nil
}

// publish snapshots a stored event onto the notify queue.
func (p *Processor) publish(ev *models.StoredEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal stored event: %w", err)
	}
	return p.publisher.Publish(TopicNotifications, message.NewMessage(watermill.NewUUID(), payload))
}
