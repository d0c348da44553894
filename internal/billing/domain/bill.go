package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillStatus is the payment status of a bill.
type BillStatus string

const (
	BillStatusPending     BillStatus = "pending"
	BillStatusPaid        BillStatus = "paid"
	BillStatusOverdue     BillStatus = "overdue"
	BillStatusVoid        BillStatus = "void"
	BillStatusProvisional BillStatus = "provisional"
)

var transitions = map[BillStatus][]BillStatus{
	BillStatusPending: {BillStatusPaid, BillStatusOverdue, BillStatusVoid},
	BillStatusOverdue: {BillStatusPaid, BillStatusVoid},
}

// ParseBillStatus validates a persisted status value.
func ParseBillStatus(value string) (BillStatus, error) {
	switch status := BillStatus(value); status {
	case BillStatusPending, BillStatusPaid, BillStatusOverdue, BillStatusVoid, BillStatusProvisional:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to BillStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Units is the itemized energy breakdown of a bill, in kWh.
type Units struct {
	TotalConsumption float64 `json:"total_consumption"`
	SolarUnits       float64 `json:"solar_units"`
	GridUnits        float64 `json:"grid_units"`
	ExportUnits      float64 `json:"export_units"`
}

// Charges are the monetary results of a bill calculation, rounded to cents.
type Charges struct {
	SubscriptionCharge   decimal.Decimal `json:"subscription_charge"`
	EnergyCharge         decimal.Decimal `json:"energy_charge"`
	NetMeteringCredit    decimal.Decimal `json:"net_metering_credit"`
	TaxAmount            decimal.Decimal `json:"tax_amount"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	TraditionalBill      decimal.Decimal `json:"traditional_bill"`
	SavingsVsTraditional decimal.Decimal `json:"savings_vs_traditional"`
	CarbonOffsetKg       decimal.Decimal `json:"carbon_offset_kg"`
}

// Bill is the itemized bill of one subscriber for one period.
// Only the payment status changes after creation.
type Bill struct {
	ID       string        `json:"id"`
	Period   BillingPeriod `json:"period"`
	Units    Units         `json:"units"`
	Charges  Charges       `json:"charges"`
	Currency string        `json:"currency"`
	Status   BillStatus    `json:"status"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// SubscriberID returns the billed subscriber.
func (b *Bill) SubscriberID() string { return b.Period.SubscriberID }

// Clone returns a deep copy.
func (b *Bill) Clone() *Bill {
	if b == nil {
		return nil
	}
	copy := *b
	if b.PaidAt != nil {
		paid := *b.PaidAt
		copy.PaidAt = &paid
	}
	return &copy
}

// Transition moves the bill to status. Re-applying the current status reports
// false without error.
func (b *Bill) Transition(status BillStatus, at time.Time) (bool, error) {
	if _, err := ParseBillStatus(string(status)); err != nil {
		return false, err
	}
	if b.Status == status {
		return false, nil
	}
	if !CanTransition(b.Status, status) {
		return false, ErrInvalidTransition
	}
	b.Status = status
	b.UpdatedAt = at
	if status == BillStatusPaid {
		paid := at
		b.PaidAt = &paid
	}
	return true, nil
}
