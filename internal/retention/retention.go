// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Package retention keeps the event store inside its size budget.
//
// At startup and then on every interval tick, when the store's
// physical size exceeds the budget, the oldest events are deleted
// until the projected size is at the target ratio of the budget, then
// a space-reclaiming checkpoint runs. Rules, sync state, and the
// notification log are never touched.
package retention

import (
	"context"
	"math"
	"time"

	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/metrics"
)

// Store is the slice of the event store retention needs.
// Satisfied by *database.DB.
type Store interface {
	FileSize() (int64, error)
	EventCount(ctx context.Context) (int64, error)
	DeleteOldestEvents(ctx context.Context, n int64) (int64, error)
	Checkpoint(ctx context.Context) error
}

// Service is the periodic retention job, run as a supervised service.
type Service struct {
	store       Store
	budgetBytes int64
	targetRatio float64
	interval    time.Duration
}

// New creates the retention service. budgetMB is the size budget for
// the store file; targetRatio is the fraction of the budget the store
// is shrunk to when the budget is exceeded.
func New(store Store, budgetMB int64, targetRatio float64, interval time.Duration) *Service {
	if targetRatio <= 0 || targetRatio > 1 {
		targetRatio = 0.8
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		store:       store,
		budgetBytes: budgetMB * 1024 * 1024,
		targetRatio: targetRatio,
		interval:    interval,
	}
}

// Serve implements suture.Service: one pass at startup, then one per
// interval tick.
func (s *Service) Serve(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Service) String() string {
	return "retention"
}

func (s *Service) runOnce(ctx context.Context) {
	size, err := s.store.FileSize()
	if err != nil {
		logging.Warn().Err(err).Msg("Retention could not stat store")
		return
	}
	metrics.DatabaseSizeBytes.Set(float64(size))

	if size <= s.budgetBytes {
		return
	}

	count, err := s.store.EventCount(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Retention could not count events")
		return
	}

	n := EvictionCount(size, count, s.budgetBytes, s.targetRatio)
	if n <= 0 {
		return
	}

	logging.Info().
		Int64("size_bytes", size).
		Int64("budget_bytes", s.budgetBytes).
		Int64("evicting", n).
		Msg("Store over size budget, evicting oldest events")

	deleted, err := s.store.DeleteOldestEvents(ctx, n)
	if err != nil {
		logging.Error().Err(err).Msg("Retention delete failed")
		return
	}
	metrics.RetentionDeleted.Add(float64(deleted))

	if err := s.store.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Retention checkpoint failed")
	}
}

// EvictionCount projects how many oldest events must be removed so the
// store lands at targetRatio of the budget, using the current average
// bytes-per-event ratio.
func EvictionCount(sizeBytes, eventCount, budgetBytes int64, targetRatio float64) int64 {
	if eventCount <= 0 || sizeBytes <= budgetBytes {
		return 0
	}

	avg := float64(sizeBytes) / float64(eventCount)
	target := float64(budgetBytes) * targetRatio
	excess := float64(sizeBytes) - target
	if excess <= 0 {
		return 0
	}

	n := int64(math.Ceil(excess / avg))
	if n > eventCount {
		n = eventCount
	}
	return n
}
