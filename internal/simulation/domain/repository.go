package simulation

import (
	"context"
	"time"
)

// ReadingStore persists readings. Writes are append-only.
type ReadingStore interface {
	Append(ctx context.Context, reading EnergyReading) error
	// Latest returns nil, nil when the subscriber has no history.
	Latest(ctx context.Context, subscriberID string) (*EnergyReading, error)
	// Range returns readings within [start, end) ordered by timestamp.
	Range(ctx context.Context, subscriberID string, start, end time.Time) ([]EnergyReading, error)
}

// Broadcaster delivers live readings to listeners. Delivery is best effort.
type Broadcaster interface {
	Publish(ctx context.Context, reading EnergyReading) error
}
