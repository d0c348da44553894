package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"solarflow-cloud/internal/auth"
	billapp "solarflow-cloud/internal/billing/application"
	billing "solarflow-cloud/internal/billing/domain"
	"solarflow-cloud/internal/billing/interfaces"
	"solarflow-cloud/internal/observability/metrics"
	subscription "solarflow-cloud/internal/subscription/domain"
)

const timeLayout = time.RFC3339

// Handler exposes bill generation, lookup, status and export.
type Handler struct {
	service *billapp.BillService
}

// NewHandler constructs a handler.
func NewHandler(service *billapp.BillService) (*Handler, error) {
	if service == nil {
		return nil, errors.New("billing handler: nil service")
	}
	return &Handler{service: service}, nil
}

// Register mounts the billing routes.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/bills/generate", h.handleGenerate).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bills/{bill_id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/bills/{bill_id}/status", h.handleStatus).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bills/{bill_id}/export.pdf", h.handleExportPDF).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/bills/{bill_id}/export.xlsx", h.handleExportXLSX).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/subscribers/{id}/bills", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/subscribers/{id}/bills/provisional", h.handleProvisional).Methods(http.MethodGet)
}

type generateRequest struct {
	SubscriberID string `json:"subscriber_id"`
	Month        string `json:"month"`
	Start        string `json:"start"`
	End          string `json:"end"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// BillResponse renders money with two decimals.
type BillResponse struct {
	ID                   string     `json:"id"`
	SubscriberID         string     `json:"subscriber_id"`
	PeriodStart          string     `json:"period_start"`
	PeriodEnd            string     `json:"period_end"`
	Status               string     `json:"status"`
	Currency             string     `json:"currency"`
	TotalConsumption     float64    `json:"total_consumption"`
	SolarUnits           float64    `json:"solar_units"`
	GridUnits            float64    `json:"grid_units"`
	ExportUnits          float64    `json:"export_units"`
	SubscriptionCharge   string     `json:"subscription_charge"`
	EnergyCharge         string     `json:"energy_charge"`
	NetMeteringCredit    string     `json:"net_metering_credit"`
	TaxAmount            string     `json:"tax_amount"`
	TotalAmount          string     `json:"total_amount"`
	TraditionalBill      string     `json:"traditional_bill"`
	SavingsVsTraditional string     `json:"savings_vs_traditional"`
	CarbonOffsetKg       string     `json:"carbon_offset_kg"`
	CreatedAt            string     `json:"created_at"`
	UpdatedAt            string     `json:"updated_at"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
}

// NewBillResponse maps a bill into its wire form.
func NewBillResponse(bill *billing.Bill) BillResponse {
	return BillResponse{
		ID:                   bill.ID,
		SubscriberID:         bill.SubscriberID(),
		PeriodStart:          bill.Period.Start.Format(timeLayout),
		PeriodEnd:            bill.Period.End.Format(timeLayout),
		Status:               string(bill.Status),
		Currency:             bill.Currency,
		TotalConsumption:     bill.Units.TotalConsumption,
		SolarUnits:           bill.Units.SolarUnits,
		GridUnits:            bill.Units.GridUnits,
		ExportUnits:          bill.Units.ExportUnits,
		SubscriptionCharge:   bill.Charges.SubscriptionCharge.StringFixed(2),
		EnergyCharge:         bill.Charges.EnergyCharge.StringFixed(2),
		NetMeteringCredit:    bill.Charges.NetMeteringCredit.StringFixed(2),
		TaxAmount:            bill.Charges.TaxAmount.StringFixed(2),
		TotalAmount:          bill.Charges.TotalAmount.StringFixed(2),
		TraditionalBill:      bill.Charges.TraditionalBill.StringFixed(2),
		SavingsVsTraditional: bill.Charges.SavingsVsTraditional.StringFixed(2),
		CarbonOffsetKg:       bill.Charges.CarbonOffsetKg.StringFixed(2),
		CreatedAt:            bill.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:            bill.UpdatedAt.UTC().Format(timeLayout),
		PaidAt:               bill.PaidAt,
	}
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.SubscriberID == "" {
		http.Error(w, "subscriber_id is required", http.StatusBadRequest)
		return
	}

	var (
		bill    *billing.Bill
		created bool
		err     error
	)
	switch {
	case req.Month != "":
		bill, created, err = h.service.GenerateMonthlyBill(r.Context(), req.SubscriberID, req.Month)
	case req.Start != "" && req.End != "":
		period, perr := parsePeriod(req)
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		bill, created, err = h.service.GenerateBill(r.Context(), period)
	default:
		http.Error(w, "month or start and end are required", http.StatusBadRequest)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, NewBillResponse(bill))
}

func parsePeriod(req generateRequest) (billing.BillingPeriod, error) {
	start, err := time.Parse(timeLayout, req.Start)
	if err != nil {
		return billing.BillingPeriod{}, errors.New("start must be RFC3339")
	}
	end, err := time.Parse(timeLayout, req.End)
	if err != nil {
		return billing.BillingPeriod{}, errors.New("end must be RFC3339")
	}
	return billing.BillingPeriod{SubscriberID: req.SubscriberID, Start: start.UTC(), End: end.UTC()}, nil
}

// ownedBill loads a bill and hides bills of other subscribers from viewers.
func (h *Handler) ownedBill(r *http.Request) (*billing.Bill, error) {
	bill, err := h.service.GetBill(r.Context(), mux.Vars(r)["bill_id"])
	if err != nil {
		return nil, err
	}
	if err := auth.EnsureScope(auth.RoleFromContext(r.Context()), auth.SubscriberIDFromContext(r.Context()), bill.SubscriberID()); err != nil {
		return nil, billing.ErrBillNotFound
	}
	return bill, nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	bill, err := h.ownedBill(r)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewBillResponse(bill))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	bills, err := h.service.ListBills(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]BillResponse, 0, len(bills))
	for i := range bills {
		out = append(out, NewBillResponse(&bills[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleProvisional(w http.ResponseWriter, r *http.Request) {
	bill, err := h.service.ProvisionalBill(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewBillResponse(bill))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	bill, err := h.service.UpdateStatus(r.Context(), mux.Vars(r)["bill_id"], billing.BillStatus(req.Status))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewBillResponse(bill))
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "pdf", "application/pdf", interfaces.BuildBillPDF)
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", interfaces.BuildBillXLSX)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, format, contentType string, build func(*billing.Bill) ([]byte, error)) {
	bill, err := h.ownedBill(r)
	if err != nil {
		metrics.IncBillExport(format, metrics.ResultError)
		respondError(w, err)
		return
	}
	data, err := build(bill)
	if err != nil {
		metrics.IncBillExport(format, metrics.ResultError)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.IncBillExport(format, metrics.ResultSuccess)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\"bill-"+bill.ID+"."+format+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrBillNotFound):
		http.Error(w, "bill not found", http.StatusNotFound)
	case errors.Is(err, subscription.ErrNotFound):
		http.Error(w, "subscription not found", http.StatusNotFound)
	case errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrStatusConflict),
		errors.Is(err, billing.ErrPeriodOpen):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, billing.ErrInvalidStatus),
		errors.Is(err, billing.ErrInvalidMonth),
		errors.Is(err, billing.ErrInvalidPeriod),
		errors.Is(err, billing.ErrEmptySubscriberID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
