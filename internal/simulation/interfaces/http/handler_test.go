package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	simapp "solarflow-cloud/internal/simulation/application"
	simmemory "solarflow-cloud/internal/simulation/infrastructure/memory"
	subscription "solarflow-cloud/internal/subscription/domain"
	submemory "solarflow-cloud/internal/subscription/infrastructure/memory"
)

func newTestRouter(t *testing.T) (*mux.Router, *simapp.Scheduler) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	readings := simmemory.NewReadingStore()
	subs := submemory.NewSubscriptionStore()
	if err := subs.Save(context.Background(), subscription.Subscription{
		SubscriberID:       "sub-1",
		SolarCapacityKW:    3,
		BatteryCapacityKWh: 5,
		Status:             subscription.StatusActive,
	}); err != nil {
		t.Fatalf("save subscription: %v", err)
	}

	tracker, err := simapp.NewBatteryStateTracker(readings)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	runner, err := simapp.NewTickRunner(tracker, simapp.NewReadingGenerator(), readings, nil, nil, logger)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	scheduler, err := simapp.NewScheduler(runner, simapp.WithInterval(time.Hour), simapp.WithSchedulerLogger(logger))
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	service, err := simapp.NewSimulationService(subs, scheduler, tracker)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	handler, err := NewHandler(service)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	router := mux.NewRouter()
	handler.Register(router)
	return router, scheduler
}

func TestStartStopRoutes(t *testing.T) {
	router, scheduler := newTestRouter(t)
	defer scheduler.StopAll()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/simulations/sub-1/start", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var status simapp.LoopStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Running || status.SubscriberID != "sub-1" {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/simulations/sub-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/simulations/sub-1/stop", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if scheduler.Running("sub-1") {
		t.Fatalf("expected loop stopped")
	}
}

func TestStartUnknownSubscriberIs404(t *testing.T) {
	router, scheduler := newTestRouter(t)
	defer scheduler.StopAll()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/simulations/ghost/start", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
