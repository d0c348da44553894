package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	analyticsapp "solarflow-cloud/internal/analytics/application"
	analytics "solarflow-cloud/internal/analytics/domain"
)

const timeLayout = time.RFC3339

// EnergyHandler serves the energy summary of a subscriber.
type EnergyHandler struct {
	engine *analyticsapp.AggregationEngine
	now    func() time.Time
}

// NewEnergyHandler constructs a handler.
func NewEnergyHandler(engine *analyticsapp.AggregationEngine) (*EnergyHandler, error) {
	if engine == nil {
		return nil, errors.New("energy handler: nil engine")
	}
	return &EnergyHandler{engine: engine, now: time.Now}, nil
}

// Register mounts the energy route.
func (h *EnergyHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/subscribers/{id}/energy", h.ServeHTTP).Methods(http.MethodGet)
}

type energyResponse struct {
	SubscriberID string                    `json:"subscriber_id"`
	Start        string                    `json:"start"`
	End          string                    `json:"end"`
	Total        analytics.PeriodAggregate `json:"total"`
	Buckets      []analytics.Bucket        `json:"buckets"`
}

// ServeHTTP returns the aggregate and buckets of [start, end).
// Without parameters it covers the current day in the engine location.
func (h *EnergyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subscriberID := mux.Vars(r)["id"]
	start, end, err := h.parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	buckets, err := h.engine.Buckets(r.Context(), subscriberID, start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	total, err := h.engine.PeriodAggregate(r.Context(), subscriberID, start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	if buckets == nil {
		buckets = []analytics.Bucket{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(energyResponse{
		SubscriberID: subscriberID,
		Start:        start.Format(timeLayout),
		End:          end.Format(timeLayout),
		Total:        total,
		Buckets:      buckets,
	})
}

func (h *EnergyHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start"), q.Get("end")
	if rawStart == "" && rawEnd == "" {
		start := analytics.GranularityDay.Truncate(h.now().In(h.engine.Location()))
		return start, start.AddDate(0, 0, 1), nil
	}
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, errors.New("start and end are required together")
	}
	start, err := time.Parse(timeLayout, rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("start must be RFC3339")
	}
	end, err := time.Parse(timeLayout, rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("end must be RFC3339")
	}
	return start.UTC(), end.UTC(), nil
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analytics.ErrEmptySubscriberID),
		errors.Is(err, analytics.ErrInvalidPeriodStart),
		errors.Is(err, analytics.ErrInvalidRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "aggregation error", http.StatusInternalServerError)
	}
}
