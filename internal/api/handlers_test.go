// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gatewatch/internal/config"
	"github.com/tomtom215/gatewatch/internal/database"
	"github.com/tomtom215/gatewatch/internal/models"
)

func newTestAPI(t *testing.T, tester NotificationTester) (http.Handler, *database.DB) {
	t.Helper()

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.ServerConfig{
		ListenAddr:  ":0",
		CORSOrigins: []string{"*"},
		RateLimit:   1000,
	}
	return NewServer(db, NewSSEHub(), tester).Router(cfg), db
}

func seedEvent(t *testing.T, db *database.DB, id, eventType string) {
	t.Helper()
	ev := &models.Event{
		ID:        id,
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		Source:    models.SourceProtect,
		EventType: eventType,
		Summary:   "seeded",
		Raw:       []byte(`{}`),
	}
	if _, err := db.StoreEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestAPI(t, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestListEvents(t *testing.T) {
	handler, db := newTestAPI(t, nil)
	seedEvent(t, db, "e-1", "motion")
	seedEvent(t, db, "e-2", "camera.update")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?event_type=motion", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Events []models.StoredEvent `json:"events"`
		Total  int64                `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Events) != 1 || resp.Events[0].ID != "e-1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListEventsRejectsBadClassification(t *testing.T) {
	handler, _ := newTestAPI(t, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?classification=bogus", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetEvent(t *testing.T) {
	handler, db := newTestAPI(t, nil)
	seedEvent(t, db, "e-3", "motion")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/e-3", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing event status = %d, want 404", rec.Code)
	}
}

func TestRulesCRUD(t *testing.T) {
	handler, db := newTestAPI(t, nil)
	seedEvent(t, db, "e-4", "camera.update")

	// Create.
	body := strings.NewReader(`{"event_type":"camera.update","classification":"notify"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/rules", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body)
	}

	// The cascade reclassified the stored event.
	ev, err := db.GetEvent(context.Background(), "e-4")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Classification != models.ClassificationNotify {
		t.Errorf("classification = %q after rule write", ev.Classification)
	}

	// List.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules", nil))
	var rules []models.Rule
	if err := json.Unmarshal(rec.Body.Bytes(), &rules); err != nil {
		t.Fatalf("decode rules: %v", err)
	}
	if len(rules) != 1 || rules[0].EventType != "camera.update" {
		t.Errorf("rules = %+v", rules)
	}

	// Invalid classification rejected.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/rules",
		strings.NewReader(`{"event_type":"x","classification":"spam"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad classification status = %d", rec.Code)
	}

	// Delete reverts events.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/rules?event_type=camera.update", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	ev, err = db.GetEvent(context.Background(), "e-4")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Classification != models.ClassificationUnclassified {
		t.Errorf("classification = %q after rule delete", ev.Classification)
	}

	// Deleting a missing rule is a 404.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/rules?event_type=camera.update", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d", rec.Code)
	}
}

func TestEventTypeSummaries(t *testing.T) {
	handler, db := newTestAPI(t, nil)
	seedEvent(t, db, "e-5", "motion")
	seedEvent(t, db, "e-6", "motion")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/types", nil))

	var summaries []models.EventTypeSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Count != 2 {
		t.Errorf("summaries = %+v", summaries)
	}
}

type fakeTester struct {
	err   error
	calls int
}

func (f *fakeTester) SendText(context.Context, string) error {
	f.calls++
	return f.err
}

func TestTestNotification(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		handler, _ := newTestAPI(t, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/notifications/test", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("success is logged", func(t *testing.T) {
		tester := &fakeTester{}
		handler, db := newTestAPI(t, tester)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/notifications/test", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if tester.calls != 1 {
			t.Errorf("tester calls = %d", tester.calls)
		}

		entries, err := db.ListNotificationLog(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Status != models.NotificationSent {
			t.Errorf("log = %+v", entries)
		}
	})

	t.Run("failure is logged", func(t *testing.T) {
		tester := &fakeTester{err: errors.New("api down")}
		handler, db := newTestAPI(t, tester)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/notifications/test", nil))
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d", rec.Code)
		}

		entries, err := db.ListNotificationLog(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Status != models.NotificationFailed {
			t.Errorf("log = %+v", entries)
		}
	})
}

func TestSSEHubDropsSlowSubscribers(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	// Overfill the subscriber buffer; extra events are dropped, not
	// blocked on.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sseBuffer*2; i++ {
			hub.Broadcast(models.StoredEvent{Event: models.Event{ID: "x"}})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}

	if got := len(ch); got != sseBuffer {
		t.Errorf("buffered = %d, want %d", got, sseBuffer)
	}
}
