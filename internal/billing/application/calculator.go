package application

import (
	"github.com/shopspring/decimal"

	analytics "solarflow-cloud/internal/analytics/domain"
	billing "solarflow-cloud/internal/billing/domain"
)

const moneyPlaces = 2

// Calculate prices an aggregate. Intermediate values keep full precision;
// every output is rounded half away from zero to cents.
// The tax base is reduced by the net-metering credit.
func Calculate(monthlyFee float64, agg analytics.PeriodAggregate, rates billing.RateTable) billing.Charges {
	subscription := nonNegative(monthlyFee)
	gridUnits := nonNegative(agg.GridUnits)
	exportUnits := nonNegative(agg.ExportUnits)
	consumption := nonNegative(agg.TotalConsumption)
	solarUnits := nonNegative(agg.SolarUnits)

	energy := gridUnits.Mul(decimal.NewFromFloat(rates.GridImportRate))
	credit := exportUnits.Mul(decimal.NewFromFloat(rates.GridExportRate))
	taxable := subscription.Add(energy).Sub(credit)
	tax := taxable.Mul(decimal.NewFromFloat(rates.TaxRate))
	total := taxable.Add(tax)
	traditional := consumption.Mul(decimal.NewFromFloat(rates.TraditionalRate))
	savings := decimal.Max(decimal.Zero, traditional.Sub(total))
	carbon := solarUnits.Mul(decimal.NewFromFloat(rates.CarbonFactor))

	return billing.Charges{
		SubscriptionCharge:   subscription.Round(moneyPlaces),
		EnergyCharge:         energy.Round(moneyPlaces),
		NetMeteringCredit:    credit.Round(moneyPlaces),
		TaxAmount:            tax.Round(moneyPlaces),
		TotalAmount:          total.Round(moneyPlaces),
		TraditionalBill:      traditional.Round(moneyPlaces),
		SavingsVsTraditional: savings.Round(moneyPlaces),
		CarbonOffsetKg:       carbon.Round(moneyPlaces),
	}
}

// UnitsOf rounds the aggregate into bill units.
func UnitsOf(agg analytics.PeriodAggregate) billing.Units {
	return billing.Units{
		TotalConsumption: roundUnits(agg.TotalConsumption),
		SolarUnits:       roundUnits(agg.SolarUnits),
		GridUnits:        roundUnits(agg.GridUnits),
		ExportUnits:      roundUnits(agg.ExportUnits),
	}
}

func nonNegative(v float64) decimal.Decimal {
	return decimal.NewFromFloat(analytics.Sanitize(v))
}

func roundUnits(v float64) float64 {
	f, _ := nonNegative(v).Round(3).Float64()
	return f
}
