package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"solarflow-cloud/internal/observability/metrics"
	simulation "solarflow-cloud/internal/simulation/domain"
)

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// TickRunner executes one simulation step: read charge, generate, persist, broadcast.
type TickRunner struct {
	tracker     *BatteryStateTracker
	generator   *ReadingGenerator
	store       simulation.ReadingStore
	broadcaster simulation.Broadcaster
	clock       Clock
	logger      *log.Logger
}

// NewTickRunner constructs a tick runner. A nil broadcaster disables delivery.
func NewTickRunner(
	tracker *BatteryStateTracker,
	generator *ReadingGenerator,
	store simulation.ReadingStore,
	broadcaster simulation.Broadcaster,
	clock Clock,
	logger *log.Logger,
) (*TickRunner, error) {
	if tracker == nil {
		return nil, errors.New("tick runner: nil tracker")
	}
	if generator == nil {
		return nil, errors.New("tick runner: nil generator")
	}
	if store == nil {
		return nil, errors.New("tick runner: nil store")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	return &TickRunner{
		tracker:     tracker,
		generator:   generator,
		store:       store,
		broadcaster: broadcaster,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Tick produces and persists one reading. Broadcast failures are logged only;
// a reading that was stored is still returned.
func (r *TickRunner) Tick(ctx context.Context, profile simulation.SubscriberEnergyProfile) (simulation.EnergyReading, error) {
	start := time.Now()
	reading, err := r.tick(ctx, profile)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveSimulationTick(result, time.Since(start))
	return reading, err
}

func (r *TickRunner) tick(ctx context.Context, profile simulation.SubscriberEnergyProfile) (simulation.EnergyReading, error) {
	prior, err := r.tracker.ChargeLevel(ctx, profile.SubscriberID)
	if err != nil {
		return simulation.EnergyReading{}, fmt.Errorf("charge level: %w", err)
	}
	reading := r.generator.Generate(profile, r.clock.Now().UTC(), prior)
	if err := reading.Validate(); err != nil {
		return simulation.EnergyReading{}, fmt.Errorf("generate: %w", err)
	}
	if err := r.store.Append(ctx, reading); err != nil {
		r.tracker.Forget(profile.SubscriberID)
		return simulation.EnergyReading{}, fmt.Errorf("append: %w", err)
	}
	r.tracker.Remember(reading)

	if r.broadcaster != nil {
		if err := r.broadcaster.Publish(ctx, reading); err != nil {
			r.logger.Printf("simulation broadcast error: subscriber=%s err=%v", profile.SubscriberID, err)
		}
	}
	return reading, nil
}
