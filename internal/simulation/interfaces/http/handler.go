package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	simapp "solarflow-cloud/internal/simulation/application"
	simulation "solarflow-cloud/internal/simulation/domain"
	subscription "solarflow-cloud/internal/subscription/domain"
)

// Handler exposes simulation start/stop/status.
type Handler struct {
	service *simapp.SimulationService
}

// NewHandler constructs a handler.
func NewHandler(service *simapp.SimulationService) (*Handler, error) {
	if service == nil {
		return nil, errors.New("simulation handler: nil service")
	}
	return &Handler{service: service}, nil
}

// Register mounts the simulation routes.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/simulations/{id}/start", h.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/simulations/{id}/stop", h.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/simulations/{id}", h.handleStatus).Methods(http.MethodGet)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.StartForSubscriber(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	stopped := h.service.StopForSubscriber(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriber_id": id,
		"stopped":       stopped,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		http.Error(w, "subscription not found", http.StatusNotFound)
	case errors.Is(err, simulation.ErrSubscriptionInactive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, simulation.ErrEmptySubscriberID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, simulation.ErrSchedulerClosed):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
