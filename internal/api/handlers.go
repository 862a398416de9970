// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/gatewatch/internal/database"
	"github.com/tomtom215/gatewatch/internal/logging"
	"github.com/tomtom215/gatewatch/internal/models"
	"github.com/tomtom215/gatewatch/internal/notify"
)

// writeJSON renders v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListEvents serves GET /api/events with classification,
// event_type, q, limit, and offset query parameters.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.EventFilter{
		Search: q.Get("q"),
		Limit:  intParam(q.Get("limit"), 100),
		Offset: intParam(q.Get("offset"), 0),
	}

	for _, c := range splitParam(q.Get("classification")) {
		classification, ok := models.ParseClassification(c)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown classification: "+c)
			return
		}
		filter.Classifications = append(filter.Classifications, classification)
	}
	filter.EventTypes = splitParam(q.Get("event_type"))

	events, err := s.db.QueryEvents(r.Context(), filter)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to query events")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	total, err := s.db.CountEvents(r.Context(), filter)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to count events")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	if events == nil {
		events = []models.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.db.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load event")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.db.EventTypeSummaries(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to summarize event types")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if summaries == nil {
		summaries = []models.EventTypeSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.db.ListRules(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list rules")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rules == nil {
		rules = []models.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleSetRule upserts a rule and cascades it onto stored events.
func (s *Server) handleSetRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventType      string `json:"event_type"`
		Classification string `json:"classification"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	classification, ok := models.ParseClassification(body.Classification)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown classification: "+body.Classification)
		return
	}

	if err := s.db.SetRule(r.Context(), body.EventType, classification); err != nil {
		logging.Error().Err(err).Str("event_type", body.EventType).Msg("Failed to set rule")
		writeError(w, http.StatusInternalServerError, "rule write failed")
		return
	}

	writeJSON(w, http.StatusOK, models.Rule{
		EventType:      body.EventType,
		Classification: classification,
		UpdatedAt:      time.Now().UTC(),
	})
}

// handleDeleteRule deletes a rule, reverting its events to
// unclassified.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("event_type")
	if eventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	existed, err := s.db.DeleteRule(r.Context(), eventType)
	if err != nil {
		logging.Error().Err(err).Str("event_type", eventType).Msg("Failed to delete rule")
		writeError(w, http.StatusInternalServerError, "rule delete failed")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotificationLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.ListNotificationLog(r.Context(), intParam(r.URL.Query().Get("limit"), 100))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list notification log")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if entries == nil {
		entries = []models.NotificationLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleTestNotification sends a canned message to the chat channel
// and records the outcome in the notification log.
func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if s.tester == nil {
		writeError(w, http.StatusServiceUnavailable, "telegram not configured")
		return
	}

	entry := &models.NotificationLogEntry{Summary: "Test notification"}
	if err := s.tester.SendText(r.Context(), notify.TestMessage); err != nil {
		entry.Status = models.NotificationFailed
		entry.Error = err.Error()
		if logErr := s.db.LogNotification(r.Context(), entry); logErr != nil {
			logging.Error().Err(logErr).Msg("Failed to log test notification")
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	entry.Status = models.NotificationSent
	if err := s.db.LogNotification(r.Context(), entry); err != nil {
		logging.Error().Err(err).Msg("Failed to log test notification")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func intParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
