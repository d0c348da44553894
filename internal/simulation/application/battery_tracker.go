package application

import (
	"context"
	"errors"
	"sync"

	simulation "solarflow-cloud/internal/simulation/domain"
)

// BatteryStateTracker resolves the last known charge level for a subscriber.
type BatteryStateTracker struct {
	store simulation.ReadingStore

	mu    sync.RWMutex
	cache map[string]float64
}

// NewBatteryStateTracker constructs a tracker over the reading store.
func NewBatteryStateTracker(store simulation.ReadingStore) (*BatteryStateTracker, error) {
	if store == nil {
		return nil, errors.New("battery tracker: nil store")
	}
	return &BatteryStateTracker{
		store: store,
		cache: make(map[string]float64),
	}, nil
}

// ChargeLevel returns the cached level or reads the latest persisted reading.
// No history yields 0; the generator clamps it up to the reserve floor.
func (t *BatteryStateTracker) ChargeLevel(ctx context.Context, subscriberID string) (float64, error) {
	if subscriberID == "" {
		return 0, simulation.ErrEmptySubscriberID
	}
	t.mu.RLock()
	level, ok := t.cache[subscriberID]
	t.mu.RUnlock()
	if ok {
		return level, nil
	}

	latest, err := t.store.Latest(ctx, subscriberID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	t.mu.Lock()
	t.cache[subscriberID] = latest.BatteryLevelKWh
	t.mu.Unlock()
	return latest.BatteryLevelKWh, nil
}

// State returns the derived battery state.
func (t *BatteryStateTracker) State(ctx context.Context, subscriberID string) (simulation.BatteryState, error) {
	level, err := t.ChargeLevel(ctx, subscriberID)
	if err != nil {
		return simulation.BatteryState{}, err
	}
	return simulation.BatteryState{SubscriberID: subscriberID, ChargeLevelKWh: level}, nil
}

// Remember caches the level of a successfully persisted reading.
func (t *BatteryStateTracker) Remember(reading simulation.EnergyReading) {
	if reading.SubscriberID == "" {
		return
	}
	t.mu.Lock()
	t.cache[reading.SubscriberID] = reading.BatteryLevelKWh
	t.mu.Unlock()
}

// Forget drops the cached level so the next read goes to the store.
func (t *BatteryStateTracker) Forget(subscriberID string) {
	t.mu.Lock()
	delete(t.cache, subscriberID)
	t.mu.Unlock()
}
