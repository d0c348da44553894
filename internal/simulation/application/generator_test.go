package application

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	simulation "solarflow-cloud/internal/simulation/domain"
)

type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }

func at(hour, minute int) time.Time {
	return time.Date(2026, 6, 15, hour, minute, 0, 0, time.UTC)
}

func TestSolarIntensityCurve(t *testing.T) {
	params := DefaultGeneratorParams()
	assert.Equal(t, 0.0, SolarIntensity(5.99, params))
	assert.Equal(t, 0.0, SolarIntensity(18, params))
	assert.InDelta(t, 1.0, SolarIntensity(12, params), 1e-9)
	assert.InDelta(t, 5.0/6.0, SolarIntensity(13, params), 1e-9)
	assert.InDelta(t, 0.5, SolarIntensity(9, params), 1e-9)
}

func TestConsumptionPeaks(t *testing.T) {
	params := DefaultGeneratorParams()
	mid := fixedRandom(0.5)
	assert.InDelta(t, 0.8, ConsumptionKW(3, LiveVariationBand, params, mid), 1e-9)
	assert.InDelta(t, 2.0, ConsumptionKW(7.5, LiveVariationBand, params, mid), 1e-9)
	assert.InDelta(t, 2.5, ConsumptionKW(19, LiveVariationBand, params, mid), 1e-9)
	assert.InDelta(t, 0.8, ConsumptionKW(21, LiveVariationBand, params, mid), 1e-9)
}

func TestVariationBands(t *testing.T) {
	assert.InDelta(t, 0.9, LiveVariationBand.Factor(fixedRandom(0)), 1e-9)
	assert.InDelta(t, 1.1, LiveVariationBand.Factor(fixedRandom(0.999999999)), 1e-6)
	assert.InDelta(t, 0.7, BackfillVariationBand.Factor(fixedRandom(0)), 1e-9)
	assert.InDelta(t, 0.85, BackfillVariationBand.Factor(fixedRandom(0.5)), 1e-9)
}

// Mid-day with an empty battery: surplus charges before anything exports.
func TestSimulateMiddayEmptyBatteryChargesFirst(t *testing.T) {
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-a", SolarCapacityKW: 3, BatteryCapacityKWh: 5}
	reading := Simulate(profile, at(13, 0), 0, LiveVariationBand, DefaultGeneratorParams(), fixedRandom(0.5))

	// 3kW * 5/6 intensity * 1.0 factor.
	assert.InDelta(t, 2.5, reading.SolarGenerationKW, 1e-3)
	assert.InDelta(t, 0.8, reading.TotalConsumptionKW, 1e-3)
	// Effective start is the 0.5 kWh floor; surplus 1.7 is capped by the 1.0 kWh rate.
	assert.InDelta(t, 1.0, reading.BatteryChargeKWh, 1e-3)
	assert.InDelta(t, 0.7, reading.GridExportKW, 1e-3)
	assert.InDelta(t, 1.5, reading.BatteryLevelKWh, 1e-3)
	assert.Zero(t, reading.GridImportKW)
	assert.Zero(t, reading.BatteryDischargeKWh)
	assert.InDelta(t, 0, reading.Imbalance(), 2e-3)
}

func TestSimulateSurplusBelowRateDoesNotExport(t *testing.T) {
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-a", SolarCapacityKW: 1.5, BatteryCapacityKWh: 5}
	reading := Simulate(profile, at(12, 0), 2, LiveVariationBand, DefaultGeneratorParams(), fixedRandom(0.5))

	assert.InDelta(t, 0.7, reading.BatteryChargeKWh, 1e-3)
	assert.Zero(t, reading.GridExportKW)
	assert.InDelta(t, 2.7, reading.BatteryLevelKWh, 1e-3)
}

func TestSimulateNightDischargesThenImports(t *testing.T) {
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-a", SolarCapacityKW: 3, BatteryCapacityKWh: 5}
	reading := Simulate(profile, at(19, 0), 0.9, LiveVariationBand, DefaultGeneratorParams(), fixedRandom(0.5))

	assert.Zero(t, reading.SolarGenerationKW)
	assert.InDelta(t, 2.5, reading.TotalConsumptionKW, 1e-3)
	// Only 0.4 kWh above the 0.5 kWh floor.
	assert.InDelta(t, 0.4, reading.BatteryDischargeKWh, 1e-3)
	assert.InDelta(t, 2.1, reading.GridImportKW, 1e-3)
	assert.InDelta(t, 0.5, reading.BatteryLevelKWh, 1e-3)
}

func TestSimulateFullBatteryExportsEverything(t *testing.T) {
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-a", SolarCapacityKW: 3, BatteryCapacityKWh: 5}
	reading := Simulate(profile, at(12, 0), 10, LiveVariationBand, DefaultGeneratorParams(), fixedRandom(0.5))

	assert.Zero(t, reading.BatteryChargeKWh)
	assert.InDelta(t, 4.5, reading.BatteryLevelKWh, 1e-3)
	assert.InDelta(t, 2.2, reading.GridExportKW, 1e-3)
}

func TestSimulateWithoutEquipment(t *testing.T) {
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-z"}
	reading := Simulate(profile, at(12, 0), 3, LiveVariationBand, DefaultGeneratorParams(), fixedRandom(0.5))

	require.NoError(t, reading.Validate())
	assert.Zero(t, reading.SolarGenerationKW)
	assert.Zero(t, reading.BatteryChargeKWh)
	assert.Zero(t, reading.BatteryDischargeKWh)
	assert.Zero(t, reading.BatteryLevelKWh)
	assert.InDelta(t, reading.TotalConsumptionKW, reading.GridImportKW, 1e-3)
}

func TestSimulateNegativeCapacityIsTreatedAsNone(t *testing.T) {
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-n", SolarCapacityKW: -2, BatteryCapacityKWh: -1}
	reading := Simulate(profile, at(12, 0), 0, LiveVariationBand, DefaultGeneratorParams(), fixedRandom(0.3))

	require.NoError(t, reading.Validate())
	assert.Zero(t, reading.SolarGenerationKW)
	assert.Zero(t, reading.BatteryLevelKWh)
}

func TestSimulateElectricalRanges(t *testing.T) {
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-e", SolarCapacityKW: 4, BatteryCapacityKWh: 10}
	rnd := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		reading := Simulate(profile, at(i%24, 0), 5, LiveVariationBand, DefaultGeneratorParams(), rnd)
		assert.GreaterOrEqual(t, reading.Voltage, 225.4)
		assert.LessOrEqual(t, reading.Voltage, 234.6)
		assert.GreaterOrEqual(t, reading.Frequency, 49.9)
		assert.LessOrEqual(t, reading.Frequency, 50.1)
		assert.GreaterOrEqual(t, reading.PowerFactor, 0.95)
		assert.LessOrEqual(t, reading.PowerFactor, 0.99)
	}
}

// Chained ticks over several days keep every invariant.
func TestSimulateChainedInvariants(t *testing.T) {
	params := DefaultGeneratorParams()
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-p", SolarCapacityKW: 5, BatteryCapacityKWh: 8}
	floor, ceiling := profile.BatteryFloorKWh(), profile.BatteryCeilingKWh()
	rnd := rand.New(rand.NewPCG(42, 7))

	for _, band := range []VariationBand{LiveVariationBand, BackfillVariationBand} {
		level := 0.0
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for ts := start; ts.Before(start.Add(72 * time.Hour)); ts = ts.Add(15 * time.Minute) {
			reading := Simulate(profile, ts, level, band, params, rnd)
			require.NoError(t, reading.Validate())

			assert.GreaterOrEqual(t, reading.BatteryLevelKWh, floor)
			assert.LessOrEqual(t, reading.BatteryLevelKWh, ceiling)

			effective := clamp(level, floor, ceiling)
			delta := reading.BatteryLevelKWh - effective
			if delta < 0 {
				delta = -delta
			}
			assert.LessOrEqual(t, delta, params.MaxChargeKWhPerTick+1e-3)
			assert.InDelta(t, 0, reading.Imbalance(), 5e-3)
			assert.False(t, reading.BatteryChargeKWh > 0 && reading.BatteryDischargeKWh > 0)
			assert.False(t, reading.GridImportKW > 0 && reading.GridExportKW > 0)

			level = reading.BatteryLevelKWh
		}
	}
}

// Without history the battery is taken to sit at its floor, so the first
// reading starts from 10% of capacity rather than from zero.
func TestSimulateFirstTickStartsAtFloor(t *testing.T) {
	params := DefaultGeneratorParams()
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-f", SolarCapacityKW: 5, BatteryCapacityKWh: 10}
	mid := fixedRandom(0.5)

	night := Simulate(profile, at(3, 0), 0, LiveVariationBand, params, mid)
	assert.InDelta(t, 1.0, night.BatteryLevelKWh, 1e-9)
	assert.Equal(t, 0.0, night.BatteryDischargeKWh)
	assert.InDelta(t, 0.8, night.GridImportKW, 1e-9)

	noon := Simulate(profile, at(12, 0), 0, LiveVariationBand, params, mid)
	assert.InDelta(t, 1.0, noon.BatteryChargeKWh, 1e-9)
	assert.InDelta(t, 2.0, noon.BatteryLevelKWh, 1e-9)
	assert.InDelta(t, 3.2, noon.GridExportKW, 1e-9)
}

func TestReadingGeneratorUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*3600)
	gen := NewReadingGenerator(WithLocation(loc), WithRandomSource(fixedRandom(0.5)))
	profile := simulation.SubscriberEnergyProfile{SubscriberID: "sub-l", SolarCapacityKW: 3}

	// 06:00 UTC is local noon.
	reading := gen.Generate(profile, time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC), 0)
	assert.InDelta(t, 3.0, reading.SolarGenerationKW, 1e-3)
}
