// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Package api exposes the operations surface: event queries, rule
// management, the live SSE stream, the notification log, health, and
// metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/gatewatch/internal/config"
	"github.com/tomtom215/gatewatch/internal/database"
)

// NotificationTester sends a test message to the chat channel.
// Satisfied by *notify.TelegramSender; nil when Telegram is not
// configured.
type NotificationTester interface {
	SendText(ctx context.Context, text string) error
}

// Server holds the handler dependencies.
type Server struct {
	db     *database.DB
	hub    *SSEHub
	tester NotificationTester
}

// NewServer creates the API server. tester may be nil.
func NewServer(db *database.DB, hub *SSEHub, tester NotificationTester) *Server {
	return &Server{db: db, hub: hub, tester: tester}
}

// Router builds the chi handler with the production middleware stack.
func (s *Server) Router(cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))

		r.Get("/events", s.handleListEvents)
		r.Get("/events/types", s.handleEventTypes)
		r.Get("/events/stream", s.hub.ServeHTTP)
		r.Get("/events/{id}", s.handleGetEvent)

		r.Get("/rules", s.handleListRules)
		r.Put("/rules", s.handleSetRule)
		r.Delete("/rules", s.handleDeleteRule)

		r.Get("/notifications/log", s.handleNotificationLog)
		r.Post("/notifications/test", s.handleTestNotification)
	})

	return r
}
