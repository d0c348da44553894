package application

import (
	"math"
	"math/rand/v2"
	"time"

	simulation "solarflow-cloud/internal/simulation/domain"
)

// VariationBand bounds the multiplicative random factor applied to solar and load.
type VariationBand struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

var (
	// LiveVariationBand is used by the live tick loop (+/-10%).
	LiveVariationBand = VariationBand{Min: 0.9, Max: 1.1}
	// BackfillVariationBand is used by historical seeding.
	BackfillVariationBand = VariationBand{Min: 0.7, Max: 1.0}
)

// Factor draws a factor within the band.
func (b VariationBand) Factor(rnd RandomSource) float64 {
	lo, hi := b.Min, b.Max
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + rnd.Float64()*(hi-lo)
}

// RandomSource yields values in [0, 1).
type RandomSource interface {
	Float64() float64
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }

// GeneratorParams holds the load, solar and battery model constants.
type GeneratorParams struct {
	DaylightStartHour float64 `yaml:"daylight_start_hour"`
	DaylightEndHour   float64 `yaml:"daylight_end_hour"`
	PeakHour          float64 `yaml:"peak_hour"`
	HalfWindowHours   float64 `yaml:"half_window_hours"`

	BaseLoadKW       float64 `yaml:"base_load_kw"`
	MorningPeakKW    float64 `yaml:"morning_peak_kw"`
	MorningPeakStart float64 `yaml:"morning_peak_start"`
	MorningPeakEnd   float64 `yaml:"morning_peak_end"`
	EveningPeakKW    float64 `yaml:"evening_peak_kw"`
	EveningPeakStart float64 `yaml:"evening_peak_start"`
	EveningPeakEnd   float64 `yaml:"evening_peak_end"`

	MaxChargeKWhPerTick    float64 `yaml:"max_charge_kwh_per_tick"`
	MaxDischargeKWhPerTick float64 `yaml:"max_discharge_kwh_per_tick"`

	NominalVoltage     float64 `yaml:"nominal_voltage"`
	VoltageTolerance   float64 `yaml:"voltage_tolerance"`
	NominalFrequency   float64 `yaml:"nominal_frequency"`
	FrequencyTolerance float64 `yaml:"frequency_tolerance"`
	PowerFactorMin     float64 `yaml:"power_factor_min"`
	PowerFactorMax     float64 `yaml:"power_factor_max"`
}

// DefaultGeneratorParams returns the demo household model.
func DefaultGeneratorParams() GeneratorParams {
	return GeneratorParams{
		DaylightStartHour: 6,
		DaylightEndHour:   18,
		PeakHour:          12,
		HalfWindowHours:   6,

		BaseLoadKW:       0.8,
		MorningPeakKW:    2.0,
		MorningPeakStart: 7,
		MorningPeakEnd:   9,
		EveningPeakKW:    2.5,
		EveningPeakStart: 18,
		EveningPeakEnd:   21,

		MaxChargeKWhPerTick:    1.0,
		MaxDischargeKWhPerTick: 1.0,

		NominalVoltage:     230,
		VoltageTolerance:   0.02,
		NominalFrequency:   50,
		FrequencyTolerance: 0.1,
		PowerFactorMin:     0.95,
		PowerFactorMax:     0.99,
	}
}

// Simulate produces one reading for the profile at the given instant.
// It is the single model used by both live ticks and backfill.
// A profile without solar or battery capacity yields a valid reading with
// the corresponding fields at zero.
func Simulate(
	profile simulation.SubscriberEnergyProfile,
	at time.Time,
	priorChargeKWh float64,
	band VariationBand,
	params GeneratorParams,
	rnd RandomSource,
) simulation.EnergyReading {
	if rnd == nil {
		rnd = globalRandom{}
	}
	hour := fractionalHour(at)

	solar := SolarGenerationKW(profile.SolarCapacityKW, hour, band, params, rnd)
	consumption := ConsumptionKW(hour, band, params, rnd)
	flow := balance(profile, priorChargeKWh, solar, consumption, params)

	voltage := params.NominalVoltage * (1 + symmetric(rnd, params.VoltageTolerance))
	frequency := params.NominalFrequency + symmetric(rnd, params.FrequencyTolerance)
	powerFactor := VariationBand{Min: params.PowerFactorMin, Max: params.PowerFactorMax}.Factor(rnd)

	return simulation.EnergyReading{
		SubscriberID:        profile.SubscriberID,
		Timestamp:           at,
		SolarGenerationKW:   roundNonNegative(solar, 3),
		GridImportKW:        roundNonNegative(flow.gridImport, 3),
		GridExportKW:        roundNonNegative(flow.gridExport, 3),
		BatteryChargeKWh:    roundNonNegative(flow.charge, 3),
		BatteryDischargeKWh: roundNonNegative(flow.discharge, 3),
		BatteryLevelKWh:     boundedLevel(profile, flow.level),
		TotalConsumptionKW:  roundNonNegative(consumption, 3),
		Voltage:             roundNonNegative(voltage, 1),
		Frequency:           roundNonNegative(frequency, 2),
		PowerFactor:         roundNonNegative(powerFactor, 2),
	}
}

// SolarGenerationKW applies a triangular irradiance curve centred on PeakHour.
func SolarGenerationKW(capacityKW, hour float64, band VariationBand, params GeneratorParams, rnd RandomSource) float64 {
	factor := band.Factor(rnd)
	if capacityKW <= 0 {
		return 0
	}
	if hour < params.DaylightStartHour || hour >= params.DaylightEndHour {
		return 0
	}
	return capacityKW * SolarIntensity(hour, params) * factor
}

// SolarIntensity returns the irradiance fraction in [0, 1] for an hour of day.
func SolarIntensity(hour float64, params GeneratorParams) float64 {
	if hour < params.DaylightStartHour || hour >= params.DaylightEndHour {
		return 0
	}
	halfWindow := params.HalfWindowHours
	if halfWindow <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Abs(hour-params.PeakHour)/halfWindow)
}

// ConsumptionKW returns household load with morning and evening peaks.
func ConsumptionKW(hour float64, band VariationBand, params GeneratorParams, rnd RandomSource) float64 {
	load := params.BaseLoadKW
	switch {
	case hour >= params.MorningPeakStart && hour < params.MorningPeakEnd:
		load = params.MorningPeakKW
	case hour >= params.EveningPeakStart && hour < params.EveningPeakEnd:
		load = params.EveningPeakKW
	}
	return math.Max(0, load*band.Factor(rnd))
}

type energyFlow struct {
	charge     float64
	discharge  float64
	gridImport float64
	gridExport float64
	level      float64
}

// balance routes surplus into the battery before export and serves deficit
// from the battery before import.
func balance(profile simulation.SubscriberEnergyProfile, priorKWh, solar, consumption float64, params GeneratorParams) energyFlow {
	var level float64
	floor := profile.BatteryFloorKWh()
	ceiling := profile.BatteryCeilingKWh()
	if profile.HasBattery() {
		level = clamp(priorKWh, floor, ceiling)
	}

	net := solar - consumption
	if net > 0 {
		var charge float64
		if profile.HasBattery() {
			charge = math.Max(0, math.Min(net, math.Min(math.Max(0, params.MaxChargeKWhPerTick), ceiling-level)))
		}
		return energyFlow{
			charge:     charge,
			gridExport: net - charge,
			level:      level + charge,
		}
	}

	deficit := -net
	var discharge float64
	if profile.HasBattery() {
		discharge = math.Max(0, math.Min(deficit, math.Min(math.Max(0, params.MaxDischargeKWhPerTick), level-floor)))
	}
	return energyFlow{
		discharge:  discharge,
		gridImport: deficit - discharge,
		level:      level - discharge,
	}
}

func boundedLevel(profile simulation.SubscriberEnergyProfile, level float64) float64 {
	if !profile.HasBattery() {
		return 0
	}
	return clamp(roundNonNegative(level, 3), profile.BatteryFloorKWh(), profile.BatteryCeilingKWh())
}

func fractionalHour(at time.Time) float64 {
	return float64(at.Hour()) + float64(at.Minute())/60 + float64(at.Second())/3600
}

func symmetric(rnd RandomSource, tolerance float64) float64 {
	if tolerance <= 0 {
		return 0
	}
	return (rnd.Float64()*2 - 1) * tolerance
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundNonNegative(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// ReadingGenerator binds the model to a band, random source and clock location.
type ReadingGenerator struct {
	params   GeneratorParams
	band     VariationBand
	random   RandomSource
	location *time.Location
}

// GeneratorOption configures the generator.
type GeneratorOption func(*ReadingGenerator)

// WithParams overrides the model constants.
func WithParams(params GeneratorParams) GeneratorOption {
	return func(g *ReadingGenerator) {
		g.params = params
	}
}

// WithVariationBand overrides the random band.
func WithVariationBand(band VariationBand) GeneratorOption {
	return func(g *ReadingGenerator) {
		g.band = band
	}
}

// WithRandomSource injects the random source.
func WithRandomSource(rnd RandomSource) GeneratorOption {
	return func(g *ReadingGenerator) {
		if rnd != nil {
			g.random = rnd
		}
	}
}

// WithLocation sets the location used to derive the hour of day.
func WithLocation(loc *time.Location) GeneratorOption {
	return func(g *ReadingGenerator) {
		if loc != nil {
			g.location = loc
		}
	}
}

// NewReadingGenerator constructs a generator using the live band by default.
func NewReadingGenerator(opts ...GeneratorOption) *ReadingGenerator {
	g := &ReadingGenerator{
		params:   DefaultGeneratorParams(),
		band:     LiveVariationBand,
		random:   globalRandom{},
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces a reading at the given instant from the prior charge level.
func (g *ReadingGenerator) Generate(profile simulation.SubscriberEnergyProfile, at time.Time, priorChargeKWh float64) simulation.EnergyReading {
	return Simulate(profile, at.In(g.location), priorChargeKWh, g.band, g.params, g.random)
}

// Params returns the model constants in use.
func (g *ReadingGenerator) Params() GeneratorParams { return g.params }
