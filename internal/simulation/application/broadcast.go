package application

import (
	"context"
	"errors"
	"fmt"

	"solarflow-cloud/internal/observability/metrics"
	simulation "solarflow-cloud/internal/simulation/domain"
)

// Sink is a named broadcaster.
type Sink struct {
	Name        string
	Broadcaster simulation.Broadcaster
}

// MultiBroadcaster delivers readings to every configured sink.
type MultiBroadcaster struct {
	sinks []Sink
}

// NewMultiBroadcaster constructs a MultiBroadcaster. Nil sinks are skipped.
func NewMultiBroadcaster(sinks ...Sink) *MultiBroadcaster {
	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink.Broadcaster != nil {
			filtered = append(filtered, sink)
		}
	}
	return &MultiBroadcaster{sinks: filtered}
}

// Publish forwards the reading to all sinks. One failing sink does not
// prevent delivery to the others; failures are joined.
func (m *MultiBroadcaster) Publish(ctx context.Context, reading simulation.EnergyReading) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Broadcaster.Publish(ctx, reading); err != nil {
			metrics.IncBroadcastFailure(sink.Name)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *MultiBroadcaster) Len() int {
	if m == nil {
		return 0
	}
	return len(m.sinks)
}
