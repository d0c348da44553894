package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	billing "solarflow-cloud/internal/billing/domain"
)

const defaultBillsTable = "bills"

// BillStore persists bills in Postgres.
// The table carries UNIQUE (subscriber_id, period_start, period_end).
type BillStore struct {
	db    *sql.DB
	table string
}

// StoreOption configures the store.
type StoreOption func(*BillStore)

// WithTable overrides the table name.
func WithTable(table string) StoreOption {
	return func(s *BillStore) {
		if table != "" {
			s.table = table
		}
	}
}

// NewBillStore constructs a store.
func NewBillStore(db *sql.DB, opts ...StoreOption) *BillStore {
	s := &BillStore{db: db, table: defaultBillsTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const billColumns = `id, subscriber_id, period_start, period_end,
	total_consumption_kwh, solar_units_kwh, grid_units_kwh, export_units_kwh,
	subscription_charge, energy_charge, net_metering_credit, tax_amount, total_amount,
	traditional_bill, savings_vs_traditional, carbon_offset_kg,
	currency, status, created_at, updated_at, paid_at`

// Find returns the bill of a period.
func (s *BillStore) Find(ctx context.Context, period billing.BillingPeriod) (*billing.Bill, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("bill store: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE subscriber_id = $1 AND period_start = $2 AND period_end = $3
LIMIT 1`, billColumns, s.table)
	return scanBill(s.db.QueryRowContext(ctx, query, period.SubscriberID, period.Start.UTC(), period.End.UTC()))
}

// Insert stores a new bill. A billed period yields ErrDuplicateBillPeriod.
func (s *BillStore) Insert(ctx context.Context, bill *billing.Bill) error {
	if s == nil || s.db == nil {
		return errors.New("bill store: nil db")
	}
	if bill == nil {
		return billing.ErrNilBill
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
ON CONFLICT (subscriber_id, period_start, period_end) DO NOTHING`, s.table, billColumns)
	var paidAt any
	if bill.PaidAt != nil {
		paidAt = bill.PaidAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, query,
		bill.ID,
		bill.Period.SubscriberID,
		bill.Period.Start.UTC(),
		bill.Period.End.UTC(),
		bill.Units.TotalConsumption,
		bill.Units.SolarUnits,
		bill.Units.GridUnits,
		bill.Units.ExportUnits,
		bill.Charges.SubscriptionCharge,
		bill.Charges.EnergyCharge,
		bill.Charges.NetMeteringCredit,
		bill.Charges.TaxAmount,
		bill.Charges.TotalAmount,
		bill.Charges.TraditionalBill,
		bill.Charges.SavingsVsTraditional,
		bill.Charges.CarbonOffsetKg,
		bill.Currency,
		string(bill.Status),
		bill.CreatedAt.UTC(),
		bill.UpdatedAt.UTC(),
		paidAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return billing.ErrDuplicateBillPeriod
	}
	return nil
}

// GetByID returns a bill by id.
func (s *BillStore) GetByID(ctx context.Context, id string) (*billing.Bill, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("bill store: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, billColumns, s.table)
	return scanBill(s.db.QueryRowContext(ctx, query, id))
}

// ListBySubscriber returns bills newest period first.
func (s *BillStore) ListBySubscriber(ctx context.Context, subscriberID string) ([]billing.Bill, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("bill store: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE subscriber_id = $1
ORDER BY period_start DESC, period_end DESC`, billColumns, s.table)
	rows, err := s.db.QueryContext(ctx, query, subscriberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]billing.Bill, 0)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		if bill != nil {
			result = append(result, *bill)
		}
	}
	return result, rows.Err()
}

// UpdateStatus sets the status when the stored status equals from.
func (s *BillStore) UpdateStatus(ctx context.Context, id string, from, to billing.BillStatus, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("bill store: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $3,
	updated_at = $4,
	paid_at = CASE WHEN $3 = 'paid' THEN $4 ELSE paid_at END
WHERE id = $1 AND status = $2`, s.table)
	res, err := s.db.ExecContext(ctx, query, id, string(from), string(to), at.UTC())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*billing.Bill, error) {
	var bill billing.Bill
	var status string
	var paidAt sql.NullTime
	err := row.Scan(
		&bill.ID,
		&bill.Period.SubscriberID,
		&bill.Period.Start,
		&bill.Period.End,
		&bill.Units.TotalConsumption,
		&bill.Units.SolarUnits,
		&bill.Units.GridUnits,
		&bill.Units.ExportUnits,
		&bill.Charges.SubscriptionCharge,
		&bill.Charges.EnergyCharge,
		&bill.Charges.NetMeteringCredit,
		&bill.Charges.TaxAmount,
		&bill.Charges.TotalAmount,
		&bill.Charges.TraditionalBill,
		&bill.Charges.SavingsVsTraditional,
		&bill.Charges.CarbonOffsetKg,
		&bill.Currency,
		&status,
		&bill.CreatedAt,
		&bill.UpdatedAt,
		&paidAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := billing.ParseBillStatus(status)
	if err != nil {
		return nil, err
	}
	bill.Status = parsed
	bill.Period.Start = bill.Period.Start.UTC()
	bill.Period.End = bill.Period.End.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		bill.PaidAt = &t
	}
	return &bill, nil
}
