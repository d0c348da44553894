package interfaces

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	billing "solarflow-cloud/internal/billing/domain"
)

// LineItem is one row of the itemized bill.
type LineItem struct {
	Label  string
	Units  string
	Amount decimal.Decimal
}

// LineItems itemizes a bill in document order. The credit is negative.
func LineItems(bill *billing.Bill) []LineItem {
	return []LineItem{
		{Label: "Subscription", Amount: bill.Charges.SubscriptionCharge},
		{Label: "Grid energy", Units: fmt.Sprintf("%.3f kWh", bill.Units.GridUnits), Amount: bill.Charges.EnergyCharge},
		{Label: "Net metering credit", Units: fmt.Sprintf("%.3f kWh", bill.Units.ExportUnits), Amount: bill.Charges.NetMeteringCredit.Neg()},
		{Label: "Tax", Amount: bill.Charges.TaxAmount},
	}
}

// BuildBillPDF renders a bill as a one-page PDF.
func BuildBillPDF(bill *billing.Bill) ([]byte, error) {
	if bill == nil {
		return nil, errors.New("bill export: nil bill")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Energy Bill")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Bill: %s", bill.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Subscriber: %s", bill.SubscriberID()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", bill.Period.Label()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", bill.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", bill.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if bill.PaidAt != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Paid: %s", bill.PaidAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Consumption (kWh): %.3f", bill.Units.TotalConsumption))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Solar (kWh): %.3f", bill.Units.SolarUnits))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 6, "Item", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 6, "Units", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, fmt.Sprintf("Amount (%s)", bill.Currency), "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range LineItems(bill) {
		pdf.CellFormat(70, 6, item.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, item.Units, "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, item.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(120, 6, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 6, bill.Charges.TotalAmount.StringFixed(2), "1", 0, "R", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Traditional bill: %s", bill.Charges.TraditionalBill.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Savings: %s", bill.Charges.SavingsVsTraditional.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Carbon offset (kg CO2): %s", bill.Charges.CarbonOffsetKg.StringFixed(2)))
	pdf.Ln(5)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBillXLSX renders a bill as a workbook with summary and items sheets.
func BuildBillXLSX(bill *billing.Bill) ([]byte, error) {
	if bill == nil {
		return nil, errors.New("bill export: nil bill")
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	itemsSheet := "items"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	money := func(d decimal.Decimal) float64 {
		v, _ := d.Float64()
		return v
	}
	summary := [][2]any{
		{"Energy Bill", ""},
		{"Bill", bill.ID},
		{"Subscriber", bill.SubscriberID()},
		{"Period", bill.Period.Label()},
		{"Status", string(bill.Status)},
		{"Currency", bill.Currency},
		{"Consumption (kWh)", bill.Units.TotalConsumption},
		{"Solar (kWh)", bill.Units.SolarUnits},
		{"Grid (kWh)", bill.Units.GridUnits},
		{"Export (kWh)", bill.Units.ExportUnits},
		{"Total Amount", money(bill.Charges.TotalAmount)},
		{"Traditional Bill", money(bill.Charges.TraditionalBill)},
		{"Savings", money(bill.Charges.SavingsVsTraditional)},
		{"Carbon Offset (kg)", money(bill.Charges.CarbonOffsetKg)},
	}
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}

	_ = f.SetCellValue(itemsSheet, "A1", "Item")
	_ = f.SetCellValue(itemsSheet, "B1", "Units")
	_ = f.SetCellValue(itemsSheet, "C1", "Amount")
	items := LineItems(bill)
	for i, item := range items {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), item.Label)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), item.Units)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), money(item.Amount))
	}
	totalRow := len(items) + 2
	_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", totalRow), "Total")
	_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", totalRow), money(bill.Charges.TotalAmount))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
