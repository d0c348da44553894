package memory

import (
	"context"
	"sync"

	subscription "solarflow-cloud/internal/subscription/domain"
)

// SubscriptionStore is an in-memory subscription store.
type SubscriptionStore struct {
	mu   sync.RWMutex
	data map[string]subscription.Subscription
}

// NewSubscriptionStore constructs a store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{data: make(map[string]subscription.Subscription)}
}

// Get returns a copy of the subscription.
func (s *SubscriptionStore) Get(ctx context.Context, subscriberID string) (*subscription.Subscription, error) {
	_ = ctx
	if subscriberID == "" {
		return nil, subscription.ErrEmptySubscriberID
	}
	s.mu.RLock()
	sub, ok := s.data[subscriberID]
	s.mu.RUnlock()
	if !ok {
		return nil, subscription.ErrNotFound
	}
	return &sub, nil
}

// Save inserts or replaces a subscription.
func (s *SubscriptionStore) Save(ctx context.Context, sub subscription.Subscription) error {
	_ = ctx
	if err := sub.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data[sub.SubscriberID] = sub
	s.mu.Unlock()
	return nil
}
