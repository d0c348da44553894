package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	simulation "solarflow-cloud/internal/simulation/domain"
)

const defaultReadingsTable = "energy_readings"

// ReadingStore persists readings in Postgres.
type ReadingStore struct {
	db    *sql.DB
	table string
}

// StoreOption configures the store.
type StoreOption func(*ReadingStore)

// WithTable overrides the table name.
func WithTable(table string) StoreOption {
	return func(s *ReadingStore) {
		if table != "" {
			s.table = table
		}
	}
}

// NewReadingStore constructs a store.
func NewReadingStore(db *sql.DB, opts ...StoreOption) *ReadingStore {
	s := &ReadingStore{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const readingColumns = `subscriber_id, ts, solar_generation_kw, grid_import_kw, grid_export_kw,
	battery_charge_kwh, battery_discharge_kwh, battery_level_kwh, total_consumption_kw,
	voltage, frequency, power_factor`

// Append inserts a reading.
func (s *ReadingStore) Append(ctx context.Context, reading simulation.EnergyReading) error {
	if s == nil || s.db == nil {
		return errors.New("reading store: nil db")
	}
	if err := reading.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, s.table, readingColumns)
	_, err := s.db.ExecContext(ctx, query,
		reading.SubscriberID,
		reading.Timestamp.UTC(),
		reading.SolarGenerationKW,
		reading.GridImportKW,
		reading.GridExportKW,
		reading.BatteryChargeKWh,
		reading.BatteryDischargeKWh,
		reading.BatteryLevelKWh,
		reading.TotalConsumptionKW,
		reading.Voltage,
		reading.Frequency,
		reading.PowerFactor,
	)
	return err
}

// Latest returns nil, nil when the subscriber has no readings.
func (s *ReadingStore) Latest(ctx context.Context, subscriberID string) (*simulation.EnergyReading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE subscriber_id = $1
ORDER BY ts DESC
LIMIT 1`, readingColumns, s.table)
	reading, err := scanReading(s.db.QueryRowContext(ctx, query, subscriberID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return reading, nil
}

// Range returns readings within [start, end) ordered by timestamp.
func (s *ReadingStore) Range(ctx context.Context, subscriberID string, start, end time.Time) ([]simulation.EnergyReading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	if !end.After(start) {
		return nil, simulation.ErrInvalidRange
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE subscriber_id = $1 AND ts >= $2 AND ts < $3
ORDER BY ts ASC`, readingColumns, s.table)
	rows, err := s.db.QueryContext(ctx, query, subscriberID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []simulation.EnergyReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanReading maps NULL numeric columns to zero.
func scanReading(row rowScanner) (*simulation.EnergyReading, error) {
	var reading simulation.EnergyReading
	var solar, gridImport, gridExport sql.NullFloat64
	var charge, discharge, level, consumption sql.NullFloat64
	var voltage, frequency, powerFactor sql.NullFloat64
	if err := row.Scan(
		&reading.SubscriberID,
		&reading.Timestamp,
		&solar,
		&gridImport,
		&gridExport,
		&charge,
		&discharge,
		&level,
		&consumption,
		&voltage,
		&frequency,
		&powerFactor,
	); err != nil {
		return nil, err
	}
	reading.Timestamp = reading.Timestamp.UTC()
	reading.SolarGenerationKW = solar.Float64
	reading.GridImportKW = gridImport.Float64
	reading.GridExportKW = gridExport.Float64
	reading.BatteryChargeKWh = charge.Float64
	reading.BatteryDischargeKWh = discharge.Float64
	reading.BatteryLevelKWh = level.Float64
	reading.TotalConsumptionKW = consumption.Float64
	reading.Voltage = voltage.Float64
	reading.Frequency = frequency.Float64
	reading.PowerFactor = powerFactor.Float64
	return &reading, nil
}
