package billing

import (
	"context"
	"time"
)

// BillStore persists bills. At most one bill exists per (subscriber, start, end).
type BillStore interface {
	// Find returns nil, nil when no bill exists for the period.
	Find(ctx context.Context, period BillingPeriod) (*Bill, error)
	// Insert returns ErrDuplicateBillPeriod when the period is already billed.
	Insert(ctx context.Context, bill *Bill) error
	// GetByID returns nil, nil when the bill does not exist.
	GetByID(ctx context.Context, id string) (*Bill, error)
	// ListBySubscriber returns bills newest period first.
	ListBySubscriber(ctx context.Context, subscriberID string) ([]Bill, error)
	// UpdateStatus sets status only if the stored status still equals from.
	// It reports whether a row changed.
	UpdateStatus(ctx context.Context, id string, from, to BillStatus, at time.Time) (bool, error)
}
