package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	subscription "solarflow-cloud/internal/subscription/domain"
)

const defaultSubscriptionsTable = "subscriptions"

// SubscriptionStore reads subscriptions from Postgres.
type SubscriptionStore struct {
	db    *sql.DB
	table string
}

// StoreOption configures the store.
type StoreOption func(*SubscriptionStore)

// WithTable overrides the table name.
func WithTable(table string) StoreOption {
	return func(s *SubscriptionStore) {
		if table != "" {
			s.table = table
		}
	}
}

// NewSubscriptionStore constructs a store.
func NewSubscriptionStore(db *sql.DB, opts ...StoreOption) *SubscriptionStore {
	s := &SubscriptionStore{db: db, table: defaultSubscriptionsTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns subscription.ErrNotFound when no row exists.
func (s *SubscriptionStore) Get(ctx context.Context, subscriberID string) (*subscription.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("subscription store: nil db")
	}
	if subscriberID == "" {
		return nil, subscription.ErrEmptySubscriberID
	}
	query := fmt.Sprintf(`
SELECT subscriber_id, plan_name, monthly_fee, solar_capacity_kw, battery_capacity_kwh,
	status, created_at, updated_at
FROM %s
WHERE subscriber_id = $1`, s.table)

	var sub subscription.Subscription
	var plan sql.NullString
	var status string
	err := s.db.QueryRowContext(ctx, query, subscriberID).Scan(
		&sub.SubscriberID,
		&plan,
		&sub.MonthlyFee,
		&sub.SolarCapacityKW,
		&sub.BatteryCapacityKWh,
		&status,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, subscription.ErrNotFound
		}
		return nil, err
	}
	if plan.Valid {
		sub.PlanName = plan.String
	}
	sub.Status = subscription.Status(status)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

// Save upserts a subscription.
func (s *SubscriptionStore) Save(ctx context.Context, sub subscription.Subscription) error {
	if s == nil || s.db == nil {
		return errors.New("subscription store: nil db")
	}
	if err := sub.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	subscriber_id, plan_name, monthly_fee, solar_capacity_kw, battery_capacity_kwh,
	status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (subscriber_id) DO UPDATE SET
	plan_name = EXCLUDED.plan_name,
	monthly_fee = EXCLUDED.monthly_fee,
	solar_capacity_kw = EXCLUDED.solar_capacity_kw,
	battery_capacity_kwh = EXCLUDED.battery_capacity_kwh,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at`, s.table)
	_, err := s.db.ExecContext(ctx, query,
		sub.SubscriberID, sub.PlanName, sub.MonthlyFee, sub.SolarCapacityKW, sub.BatteryCapacityKWh,
		string(sub.Status), sub.CreatedAt, now,
	)
	return err
}
