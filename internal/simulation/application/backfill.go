package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solarflow-cloud/internal/observability/metrics"
	simulation "solarflow-cloud/internal/simulation/domain"
)

// BackfillRequest describes a historical seeding run for one subscriber.
type BackfillRequest struct {
	Profile simulation.SubscriberEnergyProfile
	Start   time.Time
	End     time.Time
	Step    time.Duration
}

// BackfillResult summarizes a run.
type BackfillResult struct {
	SubscriberID   string
	Written        int
	FinalChargeKWh float64
}

// Backfiller seeds history with the same model as live ticks.
type Backfiller struct {
	store    simulation.ReadingStore
	tracker  *BatteryStateTracker
	params   GeneratorParams
	band     VariationBand
	random   RandomSource
	location *time.Location
}

// NewBackfiller constructs a backfiller. The generator supplies params,
// random source and location; the band is replaced by the backfill band
// unless overridden.
func NewBackfiller(store simulation.ReadingStore, tracker *BatteryStateTracker, generator *ReadingGenerator, band *VariationBand) (*Backfiller, error) {
	if store == nil {
		return nil, errors.New("backfiller: nil store")
	}
	if tracker == nil {
		return nil, errors.New("backfiller: nil tracker")
	}
	if generator == nil {
		generator = NewReadingGenerator()
	}
	b := &Backfiller{
		store:    store,
		tracker:  tracker,
		params:   generator.params,
		band:     BackfillVariationBand,
		random:   generator.random,
		location: generator.location,
	}
	if band != nil {
		b.band = *band
	}
	return b, nil
}

// Run writes one reading per step in [Start, End). Each step chains the
// battery level from the previous one so the history is consistent.
func (b *Backfiller) Run(ctx context.Context, req BackfillRequest) (BackfillResult, error) {
	result, err := b.run(ctx, req)
	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = metrics.ResultError
	}
	metrics.AddBackfillReadings(outcome, result.Written)
	return result, err
}

func (b *Backfiller) run(ctx context.Context, req BackfillRequest) (BackfillResult, error) {
	result := BackfillResult{SubscriberID: req.Profile.SubscriberID}
	if req.Profile.SubscriberID == "" {
		return result, simulation.ErrEmptySubscriberID
	}
	if !req.End.After(req.Start) || req.Step <= 0 {
		return result, simulation.ErrInvalidRange
	}

	level, err := b.tracker.ChargeLevel(ctx, req.Profile.SubscriberID)
	if err != nil {
		return result, fmt.Errorf("charge level: %w", err)
	}
	for at := req.Start.UTC(); at.Before(req.End); at = at.Add(req.Step) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		reading := Simulate(req.Profile, at.In(b.location), level, b.band, b.params, b.random)
		reading.Timestamp = at
		if err := b.store.Append(ctx, reading); err != nil {
			b.tracker.Forget(req.Profile.SubscriberID)
			return result, fmt.Errorf("append %s: %w", at.Format(time.RFC3339), err)
		}
		level = reading.BatteryLevelKWh
		result.Written++
	}
	result.FinalChargeKWh = level
	b.tracker.Forget(req.Profile.SubscriberID)
	return result, nil
}
