package simulation

import (
	"math"
	"time"
)

// Battery reserve margins as a fraction of capacity.
const (
	BatteryFloorRatio   = 0.10
	BatteryCeilingRatio = 0.90
)

// EnergyReading is one metering interval for a subscriber.
// Invariants: every numeric field is >= 0 and
// solar + grid import + battery discharge ~= consumption + grid export + battery charge.
// A persisted reading is never modified.
type EnergyReading struct {
	SubscriberID        string    `json:"subscriber_id"`
	Timestamp           time.Time `json:"timestamp"`
	SolarGenerationKW   float64   `json:"solar_generation_kw"`
	GridImportKW        float64   `json:"grid_import_kw"`
	GridExportKW        float64   `json:"grid_export_kw"`
	BatteryChargeKWh    float64   `json:"battery_charge_kwh"`
	BatteryDischargeKWh float64   `json:"battery_discharge_kwh"`
	BatteryLevelKWh     float64   `json:"battery_level_kwh"`
	TotalConsumptionKW  float64   `json:"total_consumption_kw"`
	Voltage             float64   `json:"voltage"`
	Frequency           float64   `json:"frequency"`
	PowerFactor         float64   `json:"power_factor"`
}

// Validate checks the non-negativity invariant.
func (r EnergyReading) Validate() error {
	if r.SubscriberID == "" {
		return ErrEmptySubscriberID
	}
	if r.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	for _, v := range []float64{
		r.SolarGenerationKW, r.GridImportKW, r.GridExportKW,
		r.BatteryChargeKWh, r.BatteryDischargeKWh, r.BatteryLevelKWh,
		r.TotalConsumptionKW, r.Voltage, r.Frequency, r.PowerFactor,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNegativeValue
		}
	}
	return nil
}

// Imbalance returns sources minus sinks for the interval.
func (r EnergyReading) Imbalance() float64 {
	sources := r.SolarGenerationKW + r.GridImportKW + r.BatteryDischargeKWh
	sinks := r.TotalConsumptionKW + r.GridExportKW + r.BatteryChargeKWh
	return sources - sinks
}

// SubscriberEnergyProfile describes the installed equipment of a subscriber.
type SubscriberEnergyProfile struct {
	SubscriberID       string  `json:"subscriber_id"`
	SolarCapacityKW    float64 `json:"solar_capacity_kw"`
	BatteryCapacityKWh float64 `json:"battery_capacity_kwh"`
}

// HasBattery reports whether the profile carries a usable battery.
func (p SubscriberEnergyProfile) HasBattery() bool {
	return p.BatteryCapacityKWh > 0
}

// BatteryFloorKWh returns the discharge reserve.
func (p SubscriberEnergyProfile) BatteryFloorKWh() float64 {
	if !p.HasBattery() {
		return 0
	}
	return p.BatteryCapacityKWh * BatteryFloorRatio
}

// BatteryCeilingKWh returns the charge limit.
func (p SubscriberEnergyProfile) BatteryCeilingKWh() float64 {
	if !p.HasBattery() {
		return 0
	}
	return p.BatteryCapacityKWh * BatteryCeilingRatio
}

// BatteryState is the last known state of charge, derived from the latest reading.
type BatteryState struct {
	SubscriberID   string  `json:"subscriber_id"`
	ChargeLevelKWh float64 `json:"charge_level_kwh"`
}
