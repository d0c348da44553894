package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	billing "solarflow-cloud/internal/billing/domain"
)

type periodKey struct {
	subscriberID string
	start        int64
	end          int64
}

func keyOf(period billing.BillingPeriod) periodKey {
	return periodKey{
		subscriberID: period.SubscriberID,
		start:        period.Start.UnixNano(),
		end:          period.End.UnixNano(),
	}
}

// BillStore is an in-memory bill store.
type BillStore struct {
	mu       sync.RWMutex
	byID     map[string]*billing.Bill
	byPeriod map[periodKey]string
}

// NewBillStore creates an in-memory bill store.
func NewBillStore() *BillStore {
	return &BillStore{
		byID:     make(map[string]*billing.Bill),
		byPeriod: make(map[periodKey]string),
	}
}

// Find returns the bill of a period.
func (s *BillStore) Find(ctx context.Context, period billing.BillingPeriod) (*billing.Bill, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPeriod[keyOf(period)]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

// Insert stores a new bill unless its period is already billed.
func (s *BillStore) Insert(ctx context.Context, bill *billing.Bill) error {
	_ = ctx
	if bill == nil {
		return billing.ErrNilBill
	}
	key := keyOf(bill.Period)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPeriod[key]; ok {
		return billing.ErrDuplicateBillPeriod
	}
	s.byID[bill.ID] = bill.Clone()
	s.byPeriod[key] = bill.ID
	return nil
}

// GetByID returns a bill by id.
func (s *BillStore) GetByID(ctx context.Context, id string) (*billing.Bill, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	bill, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return bill.Clone(), nil
}

// ListBySubscriber returns bills newest period first.
func (s *BillStore) ListBySubscriber(ctx context.Context, subscriberID string) ([]billing.Bill, error) {
	_ = ctx
	s.mu.RLock()
	out := make([]billing.Bill, 0)
	for _, bill := range s.byID {
		if bill.Period.SubscriberID == subscriberID {
			out = append(out, *bill.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.Start.Equal(out[j].Period.Start) {
			return out[i].Period.End.After(out[j].Period.End)
		}
		return out[i].Period.Start.After(out[j].Period.Start)
	})
	return out, nil
}

// UpdateStatus sets the status when the stored status equals from.
func (s *BillStore) UpdateStatus(ctx context.Context, id string, from, to billing.BillStatus, at time.Time) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	bill, ok := s.byID[id]
	if !ok || bill.Status != from {
		return false, nil
	}
	bill.Status = to
	bill.UpdatedAt = at
	if to == billing.BillStatusPaid {
		paid := at
		bill.PaidAt = &paid
	}
	return true, nil
}
