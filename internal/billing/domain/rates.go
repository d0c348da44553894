package billing

import "math"

// RateTable holds tariff constants. Rates are per kWh; TaxRate is a fraction.
type RateTable struct {
	GridImportRate  float64 `json:"grid_import_rate" yaml:"grid_import_rate"`
	GridExportRate  float64 `json:"grid_export_rate" yaml:"grid_export_rate"`
	TraditionalRate float64 `json:"traditional_rate" yaml:"traditional_rate"`
	TaxRate         float64 `json:"tax_rate" yaml:"tax_rate"`
	CarbonFactor    float64 `json:"carbon_factor" yaml:"carbon_factor"`
	Currency        string  `json:"currency" yaml:"currency"`
}

// DefaultRateTable returns the standard tariff.
func DefaultRateTable() RateTable {
	return RateTable{
		GridImportRate:  7.5,
		GridExportRate:  5.0,
		TraditionalRate: 8.5,
		TaxRate:         0.18,
		CarbonFactor:    0.8,
		Currency:        "INR",
	}
}

// Validate rejects negative and non-finite rates.
func (r RateTable) Validate() error {
	for _, v := range []float64{r.GridImportRate, r.GridExportRate, r.TraditionalRate, r.TaxRate, r.CarbonFactor} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidRate
		}
	}
	return nil
}
