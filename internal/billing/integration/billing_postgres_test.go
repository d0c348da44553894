package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	analyticsapp "solarflow-cloud/internal/analytics/application"
	analyticspg "solarflow-cloud/internal/analytics/infrastructure/postgres"
	billapp "solarflow-cloud/internal/billing/application"
	billing "solarflow-cloud/internal/billing/domain"
	billpg "solarflow-cloud/internal/billing/infrastructure/postgres"
	simapp "solarflow-cloud/internal/simulation/application"
	simpg "solarflow-cloud/internal/simulation/infrastructure/postgres"
	subscription "solarflow-cloud/internal/subscription/domain"
	subpg "solarflow-cloud/internal/subscription/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestBilling_BackfillAggregateGenerateAndPay(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	subscriberID := "sub-integration-001"
	_, _ = db.ExecContext(ctx, "DELETE FROM bills WHERE subscriber_id = $1", subscriberID)
	_, _ = db.ExecContext(ctx, "DELETE FROM energy_readings WHERE subscriber_id = $1", subscriberID)

	subs := subpg.NewSubscriptionStore(db)
	if err := subs.Save(ctx, subscription.Subscription{
		SubscriberID:       subscriberID,
		PlanName:           "home-5kw",
		MonthlyFee:         1299,
		SolarCapacityKW:    5,
		BatteryCapacityKWh: 10,
		Status:             subscription.StatusActive,
	}); err != nil {
		t.Fatalf("save subscription: %v", err)
	}

	readings := simpg.NewReadingStore(db)
	tracker, err := simapp.NewBatteryStateTracker(readings)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	backfiller, err := simapp.NewBackfiller(readings, tracker, simapp.NewReadingGenerator(), nil)
	if err != nil {
		t.Fatalf("backfiller: %v", err)
	}
	monthStart := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	profile := simapp.ProfileFromSubscription(subscription.Subscription{
		SubscriberID:       subscriberID,
		SolarCapacityKW:    5,
		BatteryCapacityKWh: 10,
	})
	result, err := backfiller.Run(ctx, simapp.BackfillRequest{
		Profile: profile,
		Start:   monthStart,
		End:     monthStart.AddDate(0, 0, 3),
		Step:    time.Hour,
	})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if result.Written != 72 {
		t.Fatalf("expected 72 readings, got %d", result.Written)
	}

	scanEngine, err := analyticsapp.NewAggregationEngine(readings)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	sqlEngine, err := analyticsapp.NewAggregationEngine(readings, analyticsapp.WithPeriodSummer(analyticspg.NewPeriodSummer(db)))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	end := monthStart.AddDate(0, 1, 0)
	scanned, err := scanEngine.PeriodAggregate(ctx, subscriberID, monthStart, end)
	if err != nil {
		t.Fatalf("scan aggregate: %v", err)
	}
	summed, err := sqlEngine.PeriodAggregate(ctx, subscriberID, monthStart, end)
	if err != nil {
		t.Fatalf("sql aggregate: %v", err)
	}
	if math.Abs(scanned.GridUnits-summed.GridUnits) > 1e-6 || scanned.ReadingCount != summed.ReadingCount {
		t.Fatalf("aggregate mismatch: scan=%+v sql=%+v", scanned, summed)
	}

	service, err := billapp.NewBillService(sqlEngine, subs, billpg.NewBillStore(db),
		billapp.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("bill service: %v", err)
	}
	bill, created, err := service.GenerateMonthlyBill(ctx, subscriberID, "2026-01")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !created || bill.Status != billing.BillStatusPending {
		t.Fatalf("expected new pending bill, got %+v created=%v", bill, created)
	}
	if bill.Charges.SavingsVsTraditional.IsNegative() {
		t.Fatalf("negative savings %s", bill.Charges.SavingsVsTraditional)
	}

	again, created, err := service.GenerateMonthlyBill(ctx, subscriberID, "2026-01")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if created || again.ID != bill.ID || !again.Charges.TotalAmount.Equal(bill.Charges.TotalAmount) {
		t.Fatalf("expected idempotent bill, got %+v", again)
	}

	paid, err := service.UpdateStatus(ctx, bill.ID, billing.BillStatusPaid)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.PaidAt == nil {
		t.Fatalf("expected paid_at")
	}
	if _, err := service.UpdateStatus(ctx, bill.ID, billing.BillStatusOverdue); !errors.Is(err, billing.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	bills, err := service.ListBills(ctx, subscriberID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bills) != 1 || bills[0].Status != billing.BillStatusPaid {
		t.Fatalf("unexpected bills %+v", bills)
	}
}

func applyMigrations(db *sql.DB) error {
	content, err := os.ReadFile(filepath.Join(projectRoot(), "migrations", "001_init.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(content))
	return err
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}
