package subscription

import (
	"context"
	"errors"
	"math"
	"time"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrNotFound is returned when a subscriber has no subscription.
	ErrNotFound = errors.New("subscription: not found")
	// ErrEmptySubscriberID is returned when subscriber id is empty.
	ErrEmptySubscriberID = errors.New("subscription: empty subscriber id")
	// ErrInvalidStatus is returned for an unknown status value.
	ErrInvalidStatus = errors.New("subscription: invalid status")
	// ErrNegativeValue is returned when a fee or capacity is negative.
	ErrNegativeValue = errors.New("subscription: negative value")
)

// Subscription is the plan a subscriber pays for and the equipment it covers.
type Subscription struct {
	SubscriberID       string    `json:"subscriber_id"`
	PlanName           string    `json:"plan_name"`
	MonthlyFee         float64   `json:"monthly_fee"`
	SolarCapacityKW    float64   `json:"solar_capacity_kw"`
	BatteryCapacityKWh float64   `json:"battery_capacity_kwh"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Validate checks required fields.
func (s Subscription) Validate() error {
	if s.SubscriberID == "" {
		return ErrEmptySubscriberID
	}
	switch s.Status {
	case StatusActive, StatusSuspended, StatusCancelled:
	default:
		return ErrInvalidStatus
	}
	for _, v := range []float64{s.MonthlyFee, s.SolarCapacityKW, s.BatteryCapacityKWh} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNegativeValue
		}
	}
	return nil
}

// Active reports whether the subscription may be simulated.
func (s Subscription) Active() bool {
	return s.Status == StatusActive
}

// Store reads subscriptions.
type Store interface {
	// Get returns ErrNotFound when the subscriber has no subscription.
	Get(ctx context.Context, subscriberID string) (*Subscription, error)
}
