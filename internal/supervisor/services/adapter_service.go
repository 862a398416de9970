// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Package services wraps Gatewatch components as suture services.
package services

import (
	"context"
	"time"

	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/metrics"
)

// Adapter is one source adapter run: a single websocket connection
// lifetime. Satisfied by the unifi adapters.
type Adapter interface {
	Name() string
	Run(ctx context.Context) error
}

// DefaultReconnectDelay is slept between websocket connection attempts.
const DefaultReconnectDelay = 5 * time.Second

// AdapterService supervises one source adapter as an endless
// connect-run-reconnect loop. suture owns the loop; the reconnect
// delay is slept here before returning, because suture restarts a
// returned service immediately when below its failure threshold.
type AdapterService struct {
	adapter Adapter
	delay   time.Duration
}

// NewAdapterService wraps an adapter with the default reconnect delay.
func NewAdapterService(adapter Adapter) *AdapterService {
	return &AdapterService{adapter: adapter, delay: DefaultReconnectDelay}
}

// Serve implements suture.Service.
func (s *AdapterService) Serve(ctx context.Context) error {
	name := s.adapter.Name()

	logging.Info().Str("source", name).Msg("Starting websocket connection")
	err := s.adapter.Run(ctx)

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		logging.Error().Err(err).Str("source", name).Msg("Websocket error")
	} else {
		logging.Info().Str("source", name).Msg("Websocket disconnected normally")
	}

	metrics.AdapterRestarts.WithLabelValues(name).Inc()
	logging.Warn().Str("source", name).Dur("delay", s.delay).Msg("Websocket disconnected, reconnecting")

	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Returning (nil or not) hands control back to suture, which
	// restarts the service: the next Serve call is the reconnect.
	return err
}

// String implements fmt.Stringer for supervisor logging.
func (s *AdapterService) String() string {
	return s.adapter.Name() + "-adapter"
}
