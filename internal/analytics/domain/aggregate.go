package analytics

import (
	"math"
	"time"
)

// PeriodAggregate sums energy units over a period, in kWh.
type PeriodAggregate struct {
	TotalConsumption float64 `json:"total_consumption"`
	SolarUnits       float64 `json:"solar_units"`
	GridUnits        float64 `json:"grid_units"`
	ExportUnits      float64 `json:"export_units"`
	ReadingCount     int     `json:"reading_count"`
}

// Sample is one interval's contribution to an aggregate.
type Sample struct {
	TotalConsumption float64
	SolarUnits       float64
	GridUnits        float64
	ExportUnits      float64
}

// Add folds a sample in. NaN, infinite and negative values count as zero.
func (a *PeriodAggregate) Add(s Sample) {
	a.TotalConsumption += Sanitize(s.TotalConsumption)
	a.SolarUnits += Sanitize(s.SolarUnits)
	a.GridUnits += Sanitize(s.GridUnits)
	a.ExportUnits += Sanitize(s.ExportUnits)
	a.ReadingCount++
}

// Merge adds another aggregate.
func (a *PeriodAggregate) Merge(other PeriodAggregate) {
	a.TotalConsumption += other.TotalConsumption
	a.SolarUnits += other.SolarUnits
	a.GridUnits += other.GridUnits
	a.ExportUnits += other.ExportUnits
	a.ReadingCount += other.ReadingCount
}

// IsZero reports whether no energy was recorded.
func (a PeriodAggregate) IsZero() bool {
	return a.TotalConsumption == 0 && a.SolarUnits == 0 && a.GridUnits == 0 && a.ExportUnits == 0
}

// Sanitize maps non-finite and negative values to zero.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Bucket is an aggregate over [Start, End).
type Bucket struct {
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	Granularity Granularity     `json:"granularity"`
	Key         TimeKey         `json:"key"`
	Aggregate   PeriodAggregate `json:"aggregate"`
}
