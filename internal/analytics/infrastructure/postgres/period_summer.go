package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	analytics "solarflow-cloud/internal/analytics/domain"
)

const defaultReadingsTable = "energy_readings"

// PeriodSummer aggregates readings with SQL.
type PeriodSummer struct {
	db    *sql.DB
	table string
}

// SummerOption configures the summer.
type SummerOption func(*PeriodSummer)

// WithTable overrides the readings table.
func WithTable(table string) SummerOption {
	return func(s *PeriodSummer) {
		if table != "" {
			s.table = table
		}
	}
}

// NewPeriodSummer constructs a summer.
func NewPeriodSummer(db *sql.DB, opts ...SummerOption) *PeriodSummer {
	s := &PeriodSummer{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sanitized maps NULL, NaN, infinities and negatives to zero.
func sanitized(column string) string {
	return fmt.Sprintf(
		"CASE WHEN %[1]s IS NULL OR %[1]s = 'NaN'::float8 OR %[1]s IN ('Infinity'::float8, '-Infinity'::float8) OR %[1]s < 0 THEN 0 ELSE %[1]s END",
		column,
	)
}

// SumPeriod sums readings within [start, end).
func (s *PeriodSummer) SumPeriod(ctx context.Context, subscriberID string, start, end time.Time) (analytics.PeriodAggregate, error) {
	if s == nil || s.db == nil {
		return analytics.PeriodAggregate{}, errors.New("period summer: nil db")
	}
	query := fmt.Sprintf(`
SELECT
	COALESCE(SUM(%s), 0),
	COALESCE(SUM(%s), 0),
	COALESCE(SUM(%s), 0),
	COALESCE(SUM(%s), 0),
	COUNT(*)
FROM %s
WHERE subscriber_id = $1 AND ts >= $2 AND ts < $3`,
		sanitized("total_consumption_kw"),
		sanitized("solar_generation_kw"),
		sanitized("grid_import_kw"),
		sanitized("grid_export_kw"),
		s.table,
	)
	var agg analytics.PeriodAggregate
	err := s.db.QueryRowContext(ctx, query, subscriberID, start.UTC(), end.UTC()).Scan(
		&agg.TotalConsumption,
		&agg.SolarUnits,
		&agg.GridUnits,
		&agg.ExportUnits,
		&agg.ReadingCount,
	)
	if err != nil {
		return analytics.PeriodAggregate{}, err
	}
	return agg, nil
}
