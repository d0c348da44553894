package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	simulation "solarflow-cloud/internal/simulation/domain"
)

// ReadingStore is an in-memory append-only reading store.
type ReadingStore struct {
	mu   sync.RWMutex
	data map[string][]simulation.EnergyReading
}

// NewReadingStore constructs a store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{data: make(map[string][]simulation.EnergyReading)}
}

// Append stores a reading keeping per-subscriber timestamp order.
func (s *ReadingStore) Append(ctx context.Context, reading simulation.EnergyReading) error {
	_ = ctx
	if err := reading.Validate(); err != nil {
		return err
	}
	reading.Timestamp = reading.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	readings := s.data[reading.SubscriberID]
	idx := sort.Search(len(readings), func(i int) bool {
		return readings[i].Timestamp.After(reading.Timestamp)
	})
	readings = append(readings, simulation.EnergyReading{})
	copy(readings[idx+1:], readings[idx:])
	readings[idx] = reading
	s.data[reading.SubscriberID] = readings
	return nil
}

// Latest returns the reading with the greatest timestamp.
func (s *ReadingStore) Latest(ctx context.Context, subscriberID string) (*simulation.EnergyReading, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	readings := s.data[subscriberID]
	if len(readings) == 0 {
		return nil, nil
	}
	latest := readings[len(readings)-1]
	return &latest, nil
}

// Range returns readings within [start, end).
func (s *ReadingStore) Range(ctx context.Context, subscriberID string, start, end time.Time) ([]simulation.EnergyReading, error) {
	_ = ctx
	if !end.After(start) {
		return nil, simulation.ErrInvalidRange
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	readings := s.data[subscriberID]
	lo := sort.Search(len(readings), func(i int) bool {
		return !readings[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(readings), func(i int) bool {
		return !readings[i].Timestamp.Before(end)
	})
	if lo >= hi {
		return nil, nil
	}
	out := make([]simulation.EnergyReading, hi-lo)
	copy(out, readings[lo:hi])
	return out, nil
}

// Count returns the number of stored readings for a subscriber.
func (s *ReadingStore) Count(subscriberID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[subscriberID])
}
