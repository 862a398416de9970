// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package services

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// RunnerService adapts a Run(ctx)-style component (classifier,
// dispatcher) to suture.Service.
type RunnerService struct {
	name string
	run  func(ctx context.Context) error
}

// NewRunnerService wraps run as a named supervised service.
func NewRunnerService(name string, run func(ctx context.Context) error) *RunnerService {
	return &RunnerService{name: name, run: run}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.run(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (s *RunnerService) String() string {
	return s.name
}

// OneShotService runs a job once and removes itself from the tree.
// Used for the historical backfill.
type OneShotService struct {
	name string
	run  func(ctx context.Context)
}

// NewOneShotService wraps run as a run-once supervised service.
func NewOneShotService(name string, run func(ctx context.Context)) *OneShotService {
	return &OneShotService{name: name, run: run}
}

// Serve implements suture.Service. After the job completes the service
// asks suture not to restart it.
func (s *OneShotService) Serve(ctx context.Context) error {
	s.run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return suture.ErrDoNotRestart
}

// String implements fmt.Stringer for supervisor logging.
func (s *OneShotService) String() string {
	return s.name
}
