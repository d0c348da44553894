package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	analytics "solarflow-cloud/internal/analytics/domain"
	"solarflow-cloud/internal/observability/metrics"
	simulation "solarflow-cloud/internal/simulation/domain"
)

// ReadingSource supplies readings within [start, end).
type ReadingSource interface {
	Range(ctx context.Context, subscriberID string, start, end time.Time) ([]simulation.EnergyReading, error)
}

// PeriodSummer sums a period in the store, avoiding a row transfer.
type PeriodSummer interface {
	SumPeriod(ctx context.Context, subscriberID string, start, end time.Time) (analytics.PeriodAggregate, error)
}

// AggregationEngine sums readings into periods and buckets.
type AggregationEngine struct {
	source   ReadingSource
	summer   PeriodSummer
	location *time.Location
}

// EngineOption configures the engine.
type EngineOption func(*AggregationEngine)

// WithPeriodSummer pushes PeriodAggregate down to the store.
func WithPeriodSummer(summer PeriodSummer) EngineOption {
	return func(e *AggregationEngine) {
		e.summer = summer
	}
}

// WithLocation sets the location used for day and hour boundaries.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *AggregationEngine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// NewAggregationEngine constructs an engine.
func NewAggregationEngine(source ReadingSource, opts ...EngineOption) (*AggregationEngine, error) {
	if source == nil {
		return nil, errors.New("aggregation engine: nil source")
	}
	e := &AggregationEngine{source: source, location: time.UTC}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SampleOf maps a reading to its aggregate contribution.
func SampleOf(reading simulation.EnergyReading) analytics.Sample {
	return analytics.Sample{
		TotalConsumption: reading.TotalConsumptionKW,
		SolarUnits:       reading.SolarGenerationKW,
		GridUnits:        reading.GridImportKW,
		ExportUnits:      reading.GridExportKW,
	}
}

// PeriodAggregate sums the subscriber readings over [start, end).
// An empty period yields an all-zero aggregate. Store errors propagate.
func (e *AggregationEngine) PeriodAggregate(ctx context.Context, subscriberID string, start, end time.Time) (analytics.PeriodAggregate, error) {
	began := time.Now()
	agg, err := e.periodAggregate(ctx, subscriberID, start, end)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveAggregation(result, time.Since(began))
	return agg, err
}

func (e *AggregationEngine) periodAggregate(ctx context.Context, subscriberID string, start, end time.Time) (analytics.PeriodAggregate, error) {
	if err := validateRange(subscriberID, start, end); err != nil {
		return analytics.PeriodAggregate{}, err
	}
	if e.summer != nil {
		agg, err := e.summer.SumPeriod(ctx, subscriberID, start, end)
		if err != nil {
			return analytics.PeriodAggregate{}, fmt.Errorf("sum period: %w", err)
		}
		return agg, nil
	}
	readings, err := e.source.Range(ctx, subscriberID, start, end)
	if err != nil {
		return analytics.PeriodAggregate{}, fmt.Errorf("load readings: %w", err)
	}
	var agg analytics.PeriodAggregate
	for _, reading := range readings {
		agg.Add(SampleOf(reading))
	}
	return agg, nil
}

// Location returns the location of bucket boundaries.
func (e *AggregationEngine) Location() *time.Location {
	return e.location
}

// HourlyBuckets returns 24 hour buckets for the day containing day.
func (e *AggregationEngine) HourlyBuckets(ctx context.Context, subscriberID string, day time.Time) ([]analytics.Bucket, error) {
	start := analytics.GranularityDay.Truncate(day.In(e.location))
	return e.bucketize(ctx, subscriberID, analytics.GranularityHour, start, start.AddDate(0, 0, 1))
}

// DailyBuckets returns one bucket per day covering [start, end).
func (e *AggregationEngine) DailyBuckets(ctx context.Context, subscriberID string, start, end time.Time) ([]analytics.Bucket, error) {
	return e.bucketize(ctx, subscriberID, analytics.GranularityDay, start.In(e.location), end.In(e.location))
}

// MonthlyBuckets returns one bucket per calendar month covering [start, end).
func (e *AggregationEngine) MonthlyBuckets(ctx context.Context, subscriberID string, start, end time.Time) ([]analytics.Bucket, error) {
	return e.bucketize(ctx, subscriberID, analytics.GranularityMonth, start.In(e.location), end.In(e.location))
}

// Buckets picks hourly buckets for ranges up to one day and daily otherwise.
func (e *AggregationEngine) Buckets(ctx context.Context, subscriberID string, start, end time.Time) ([]analytics.Bucket, error) {
	if err := validateRange(subscriberID, start, end); err != nil {
		return nil, err
	}
	if end.Sub(start) <= 24*time.Hour {
		return e.bucketize(ctx, subscriberID, analytics.GranularityHour, start.In(e.location), end.In(e.location))
	}
	return e.DailyBuckets(ctx, subscriberID, start, end)
}

// bucketize loads readings once and distributes them into zero-filled buckets.
// Buckets are keyed by their calendar boundary but clipped to [start, end),
// so the buckets always sum to the aggregate of the same range.
func (e *AggregationEngine) bucketize(ctx context.Context, subscriberID string, granularity analytics.Granularity, start, end time.Time) ([]analytics.Bucket, error) {
	if err := validateRange(subscriberID, start, end); err != nil {
		return nil, err
	}
	var buckets []analytics.Bucket
	for cursor := granularity.Truncate(start); cursor.Before(end); cursor = granularity.Step(cursor) {
		key, err := analytics.NewTimeKey(granularity, cursor)
		if err != nil {
			return nil, err
		}
		bucket := analytics.Bucket{
			Start:       cursor,
			End:         granularity.Step(cursor),
			Granularity: granularity,
			Key:         key,
		}
		if bucket.Start.Before(start) {
			bucket.Start = start
		}
		if bucket.End.After(end) {
			bucket.End = end
		}
		buckets = append(buckets, bucket)
	}
	if len(buckets) == 0 {
		return nil, nil
	}

	readings, err := e.source.Range(ctx, subscriberID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}
	idx := 0
	for _, reading := range readings {
		ts := reading.Timestamp.In(e.location)
		for idx < len(buckets) && !ts.Before(buckets[idx].End) {
			idx++
		}
		if idx >= len(buckets) {
			break
		}
		if ts.Before(buckets[idx].Start) {
			continue
		}
		buckets[idx].Aggregate.Add(SampleOf(reading))
	}
	return buckets, nil
}

func validateRange(subscriberID string, start, end time.Time) error {
	if subscriberID == "" {
		return analytics.ErrEmptySubscriberID
	}
	if start.IsZero() {
		return analytics.ErrInvalidPeriodStart
	}
	if !end.After(start) {
		return analytics.ErrInvalidRange
	}
	return nil
}
