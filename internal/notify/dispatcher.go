// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package notify

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/gatewatch/internal/database"
	"github.com/tomtom215/gatewatch/internal/eventprocessor"
	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/metrics"
	"github.com/tomtom215/gatewatch/internal/models"
)

// maxBackoff caps the per-attempt retry delay.
const maxBackoff = 60 * time.Second

// Dispatcher consumes the notify queue and delivers each event with
// at-least-once semantics: notified is only written after a successful
// send, so a crash between send and mark re-queues the event on the
// next startup and it is sent again.
type Dispatcher struct {
	db          *database.DB
	subscriber  message.Subscriber
	sender      Sender
	maxAttempts int

	// sleep is swapped out in tests to observe backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher reading from subscriber and
// delivering via sender.
func NewDispatcher(db *database.DB, subscriber message.Subscriber, sender Sender, maxAttempts int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Dispatcher{
		db:          db,
		subscriber:  subscriber,
		sender:      sender,
		maxAttempts: maxAttempts,
		sleep:       sleepCtx,
	}
}

// Run loads pending work from the store, then consumes the notify
// queue until the context is canceled or the queue is closed.
//
// The subscription is opened before the reload so events classified
// during the reload buffer in the queue instead of being lost.
func (d *Dispatcher) Run(ctx context.Context) error {
	msgs, err := d.subscriber.Subscribe(ctx, eventprocessor.TopicNotifications)
	if err != nil {
		return err
	}

	if err := d.reloadPending(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to reload pending notifications")
	}

	logging.Info().Msg("Notification dispatcher started")

	for msg := range msgs {
		var ev models.StoredEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logging.Error().Err(err).Str("msg_uuid", msg.UUID).Msg("Dropping undecodable notify message")
			msg.Ack()
			continue
		}

		d.deliver(ctx, &ev)
		msg.Ack()
	}

	logging.Info().Msg("Notification dispatcher stopped")
	return ctx.Err()
}

// reloadPending delivers stored notify events that were never marked
// notified. This is the at-least-once recovery path: a crash between
// "send succeeded" and "mark notified" re-delivers the event here.
// Rows at or over the attempt budget are skipped.
func (d *Dispatcher) reloadPending(ctx context.Context) error {
	pending, err := d.db.PendingNotifications(ctx)
	if err != nil {
		return err
	}

	logging.Info().Int("count", len(pending)).Msg("Loading pending notifications from store")

	for i := range pending {
		ev := &pending[i]
		if ev.NotifyAttempts >= d.maxAttempts {
			logging.Warn().
				Str("id", ev.ID).
				Int("attempts", ev.NotifyAttempts).
				Msg("Skipping event that exceeded max notify attempts")
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.deliver(ctx, ev)
	}
	return nil
}

// deliver attempts one event's notification with exponential backoff
// inside the same queue-item handler: delays 1, 2, 4, … seconds capped
// at 60, until the attempt budget is spent.
func (d *Dispatcher) deliver(ctx context.Context, ev *models.StoredEvent) {
	attempts := ev.NotifyAttempts
	backoff := time.Second

	for {
		attempts++
		metrics.NotificationAttempts.Inc()

		// The stored counter tracks attempts, not failures, so crash
		// recovery sees how much of the budget an event has consumed.
		if dbAttempts, dbErr := d.db.IncrementNotifyAttempts(ctx, ev.ID); dbErr != nil {
			logging.Error().Err(dbErr).Str("id", ev.ID).Msg("Failed to increment notify attempts")
		} else {
			attempts = dbAttempts
		}

		err := d.sender.Send(ctx, ev)
		if err == nil {
			if err := d.db.MarkNotified(ctx, ev.ID); err != nil {
				logging.Error().Err(err).Str("id", ev.ID).Msg("Failed to mark event as notified")
			}
			d.logOutcome(ctx, ev, models.NotificationSent, "")
			metrics.NotificationsSent.Inc()
			logging.Info().
				Str("id", ev.ID).
				Str("event_type", ev.EventType).
				Int("attempts", attempts).
				Msg("Notification sent")
			return
		}

		logging.Warn().
			Str("id", ev.ID).
			Int("attempt", attempts).
			Err(err).
			Msg("Failed to send notification")

		if attempts >= d.maxAttempts {
			d.logOutcome(ctx, ev, models.NotificationFailed, err.Error())
			metrics.NotificationsFailed.Inc()
			logging.Error().
				Str("id", ev.ID).
				Int("attempts", attempts).
				Msg("Giving up on notification after max attempts")
			return
		}

		if err := d.sleep(ctx, backoff); err != nil {
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (d *Dispatcher) logOutcome(ctx context.Context, ev *models.StoredEvent, status, errMsg string) {
	entry := &models.NotificationLogEntry{
		EventID:   ev.ID,
		EventType: ev.EventType,
		Summary:   ev.Summary,
		Status:    status,
		Error:     errMsg,
	}
	if err := d.db.LogNotification(ctx, entry); err != nil {
		logging.Error().Err(err).Str("id", ev.ID).Msg("Failed to log notification outcome")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
