// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Command server runs the Gatewatch daemon: it authenticates with the
// UniFi console, ingests the Network, System, and Protect event feeds,
// classifies and stores events, dispatches Telegram notifications, and
// serves the operations API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/gatewatch/internal/api"
	"github.com/tomtom215/gatewatch/internal/config"
	"github.com/tomtom215/gatewatch/internal/database"
	"github.com/tomtom215/gatewatch/internal/eventprocessor"
	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/models"
	"github.com/tomtom215/gatewatch/internal/notify"
	"github.com/tomtom215/gatewatch/internal/retention"
	"github.com/tomtom215/gatewatch/internal/supervisor"
	"github.com/tomtom215/gatewatch/internal/supervisor/services"
	"github.com/tomtom215/gatewatch/internal/unifi"
)

// eventChannelSize bounds the adapter-to-classifier channel. Adapters
// block on send, so a slow classifier slows ingestion rather than
// losing events.
const eventChannelSize = 1000

// notifyQueueSize bounds the classifier-to-dispatcher queue. Events
// are persisted before enqueue, so a full queue delays notifications
// without losing them.
const notifyQueueSize = 100

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Gatewatch failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logging.Info().Msg("Gatewatch starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	// Authenticate and fetch the Protect bootstrap cursor. Both are
	// fatal: nothing can run without a session.
	session, err := unifi.Login(ctx, cfg.UniFi)
	if err != nil {
		return err
	}
	bootstrapID, err := session.ProtectBootstrap(ctx)
	if err != nil {
		return err
	}

	// Shared ingestion state for this run: the bounded event channel
	// and the dedup/state maps every adapter and the backfill share.
	events := make(chan models.Event, eventChannelSize)
	dedup := unifi.NewDedupSet()
	states := unifi.NewStateTracker()

	queue := eventprocessor.NewNotifyQueue(notifyQueueSize)
	processor := eventprocessor.New(db, events, queue)

	hub := api.NewSSEHub()
	processor.SetBroadcaster(hub)

	var sender notify.Sender
	var tester api.NotificationTester
	if cfg.Telegram.Enabled() {
		telegram := notify.NewTelegramSender(&cfg.Telegram)
		sender = telegram
		tester = telegram
		logging.Info().Msg("Telegram notifications enabled")
	} else {
		sender = notify.SinkSender{}
		logging.Warn().Msg("Telegram not configured, notifications will be drained")
	}
	dispatcher := notify.NewDispatcher(db, queue, sender, cfg.Telegram.MaxAttempts)

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Processing layer: classifier, dispatcher, retention.
	tree.AddProcessingService(services.NewRunnerService("event-processor", processor.Run))
	tree.AddProcessingService(services.NewRunnerService("notification-dispatcher", dispatcher.Run))
	tree.AddProcessingService(retention.New(db, cfg.Database.MaxSizeMB, cfg.Retention.TargetRatio, cfg.Retention.Interval))

	// Ingest layer. Adapters are added before the backfill: suture
	// starts children in add order, so the live feeds are connected
	// before the historical pull begins and any overlapping event is
	// already in the dedup set.
	tree.AddIngestService(services.NewAdapterService(unifi.NewNetworkAdapter(session, events, dedup, states)))
	tree.AddIngestService(services.NewAdapterService(unifi.NewSystemAdapter(session, events, dedup, states)))
	tree.AddIngestService(services.NewAdapterService(unifi.NewProtectAdapter(session, events, dedup, states, db, bootstrapID)))

	backfill := unifi.NewBackfill(session, events, dedup, cfg.Backfill)
	tree.AddIngestService(services.NewOneShotService("backfill", func(ctx context.Context) {
		backfill.Run(ctx)
	}))

	// API layer.
	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.NewServer(db, hub, tester).Router(&cfg.Server),
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("listen_addr", cfg.Server.ListenAddr).Msg("Supervision tree starting")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Info().Msg("Gatewatch stopped")
	return nil
}
