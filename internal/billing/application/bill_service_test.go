package application

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	analytics "solarflow-cloud/internal/analytics/domain"
	billing "solarflow-cloud/internal/billing/domain"
	billmemory "solarflow-cloud/internal/billing/infrastructure/memory"
	subscription "solarflow-cloud/internal/subscription/domain"
	submemory "solarflow-cloud/internal/subscription/infrastructure/memory"
)

type stubAggregator struct {
	agg   analytics.PeriodAggregate
	err   error
	calls atomic.Int32

	mu    sync.Mutex
	start time.Time
	end   time.Time
}

func (a *stubAggregator) PeriodAggregate(ctx context.Context, subscriberID string, start, end time.Time) (analytics.PeriodAggregate, error) {
	a.calls.Add(1)
	a.mu.Lock()
	a.start, a.end = start, end
	a.mu.Unlock()
	return a.agg, a.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// raceStore hides the first Find result so the service takes the insert path
// after another writer already inserted the period.
type raceStore struct {
	*billmemory.BillStore
	hidden atomic.Bool
}

func (s *raceStore) Find(ctx context.Context, period billing.BillingPeriod) (*billing.Bill, error) {
	if s.hidden.CompareAndSwap(true, false) {
		return nil, nil
	}
	return s.BillStore.Find(ctx, period)
}

// staleStore reports a lost compare-and-set after changing the status itself.
type staleStore struct {
	*billmemory.BillStore
	winner billing.BillStatus
}

func (s *staleStore) UpdateStatus(ctx context.Context, id string, from, to billing.BillStatus, at time.Time) (bool, error) {
	_, _ = s.BillStore.UpdateStatus(ctx, id, from, s.winner, at)
	return false, nil
}

var householdAggregate = analytics.PeriodAggregate{
	TotalConsumption: 500,
	SolarUnits:       350,
	GridUnits:        150,
	ExportUnits:      60,
	ReadingCount:     100,
}

// testNow lies after every month the tests bill.
var testNow = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestBillService(t *testing.T, agg Aggregator, bills billing.BillStore, opts ...Option) *BillService {
	t.Helper()
	subs := submemory.NewSubscriptionStore()
	if err := subs.Save(context.Background(), subscription.Subscription{
		SubscriberID: "sub-1",
		MonthlyFee:   1299,
		Status:       subscription.StatusActive,
	}); err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	opts = append([]Option{WithLogger(quietLogger()), WithClock(fixedClock{now: testNow})}, opts...)
	service, err := NewBillService(agg, subs, bills, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestGenerateMonthlyBillItemizes(t *testing.T) {
	agg := &stubAggregator{agg: householdAggregate}
	service := newTestBillService(t, agg, billmemory.NewBillStore())

	bill, created, err := service.GenerateMonthlyBill(context.Background(), "sub-1", "2026-03")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !created {
		t.Fatalf("expected bill to be created")
	}
	if bill.ID == "" || bill.Status != billing.BillStatusPending || bill.Currency != "INR" {
		t.Fatalf("unexpected bill header %+v", bill)
	}
	if got := bill.Charges.TotalAmount.StringFixed(2); got != "2506.32" {
		t.Fatalf("expected total 2506.32, got %s", got)
	}
	if got := bill.Charges.SavingsVsTraditional.StringFixed(2); got != "1743.68" {
		t.Fatalf("expected savings 1743.68, got %s", got)
	}
	if bill.Units.GridUnits != 150 || bill.Units.ExportUnits != 60 {
		t.Fatalf("unexpected units %+v", bill.Units)
	}
	wantStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !agg.start.Equal(wantStart) || !agg.end.Equal(wantStart.AddDate(0, 1, 0)) {
		t.Fatalf("unexpected aggregation window %s - %s", agg.start, agg.end)
	}
}

func TestGenerateBillIsIdempotent(t *testing.T) {
	agg := &stubAggregator{agg: householdAggregate}
	service := newTestBillService(t, agg, billmemory.NewBillStore())
	ctx := context.Background()

	first, _, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-03")
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, created, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-03")
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected existing bill %s, got %s created=%v", first.ID, second.ID, created)
	}
	if agg.calls.Load() != 1 {
		t.Fatalf("expected one aggregation, got %d", agg.calls.Load())
	}
}

func TestGenerateBillConcurrentCallsShareOneBill(t *testing.T) {
	agg := &stubAggregator{agg: householdAggregate}
	store := billmemory.NewBillStore()
	service := newTestBillService(t, agg, store)
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bill, _, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-03")
			if err != nil {
				t.Errorf("generate: %v", err)
				return
			}
			ids[i] = bill.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected one bill id, got %v", ids)
		}
	}
	bills, _ := store.ListBySubscriber(ctx, "sub-1")
	if len(bills) != 1 {
		t.Fatalf("expected one stored bill, got %d", len(bills))
	}
}

func TestGenerateBillConflictReturnsWinner(t *testing.T) {
	agg := &stubAggregator{agg: householdAggregate}
	store := &raceStore{BillStore: billmemory.NewBillStore()}
	service := newTestBillService(t, agg, store)
	ctx := context.Background()

	winner, _, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-03")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	store.hidden.Store(true)

	got, created, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-03")
	if err != nil {
		t.Fatalf("generate after conflict: %v", err)
	}
	if created || got.ID != winner.ID {
		t.Fatalf("expected winner %s, got %s created=%v", winner.ID, got.ID, created)
	}
}

func TestGenerateBillErrors(t *testing.T) {
	ctx := context.Background()

	failing := &stubAggregator{err: errors.New("db down")}
	service := newTestBillService(t, failing, billmemory.NewBillStore())
	if _, _, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-03"); err == nil || errors.Is(err, subscription.ErrNotFound) {
		t.Fatalf("expected aggregation error, got %v", err)
	}

	service = newTestBillService(t, &stubAggregator{}, billmemory.NewBillStore())
	if _, _, err := service.GenerateMonthlyBill(ctx, "ghost", "2026-03"); !errors.Is(err, subscription.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := service.GenerateMonthlyBill(ctx, "sub-1", "March"); !errors.Is(err, billing.ErrInvalidMonth) {
		t.Fatalf("expected invalid month, got %v", err)
	}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := service.GenerateBill(ctx, billing.BillingPeriod{SubscriberID: "sub-1", Start: start, End: start})
	if !errors.Is(err, billing.ErrInvalidPeriod) {
		t.Fatalf("expected invalid period, got %v", err)
	}
}

func TestGenerateBillEmptyPeriodChargesSubscriptionOnly(t *testing.T) {
	service := newTestBillService(t, &stubAggregator{}, billmemory.NewBillStore())
	bill, _, err := service.GenerateMonthlyBill(context.Background(), "sub-1", "2026-02")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := bill.Charges.TotalAmount.StringFixed(2); got != "1532.82" {
		t.Fatalf("expected total 1532.82, got %s", got)
	}
	if !bill.Charges.SavingsVsTraditional.IsZero() {
		t.Fatalf("expected zero savings, got %s", bill.Charges.SavingsVsTraditional)
	}
}

func TestProvisionalBillIsNotPersisted(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	agg := &stubAggregator{agg: householdAggregate}
	store := billmemory.NewBillStore()
	service := newTestBillService(t, agg, store, WithClock(fixedClock{now: now}))
	ctx := context.Background()

	bill, err := service.ProvisionalBill(ctx, "sub-1")
	if err != nil {
		t.Fatalf("provisional: %v", err)
	}
	if bill.Status != billing.BillStatusProvisional {
		t.Fatalf("expected provisional status, got %s", bill.Status)
	}
	if !agg.start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) || !agg.end.Equal(now) {
		t.Fatalf("unexpected window %s - %s", agg.start, agg.end)
	}
	bills, _ := store.ListBySubscriber(ctx, "sub-1")
	if len(bills) != 0 {
		t.Fatalf("provisional bill must not be stored")
	}
}

func TestProvisionalBillAtMonthStartIsEmpty(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	agg := &stubAggregator{agg: householdAggregate}
	service := newTestBillService(t, agg, billmemory.NewBillStore(), WithClock(fixedClock{now: now}))

	bill, err := service.ProvisionalBill(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("provisional: %v", err)
	}
	if agg.calls.Load() != 0 {
		t.Fatalf("expected no aggregation for an empty window")
	}
	if !bill.Charges.EnergyCharge.IsZero() {
		t.Fatalf("expected zero energy charge, got %s", bill.Charges.EnergyCharge)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	service := newTestBillService(t, &stubAggregator{agg: householdAggregate}, billmemory.NewBillStore(), WithClock(fixedClock{now: now}))
	ctx := context.Background()
	bill, _, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-03")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	overdue, err := service.UpdateStatus(ctx, bill.ID, billing.BillStatusOverdue)
	if err != nil || overdue.Status != billing.BillStatusOverdue {
		t.Fatalf("expected overdue, got %+v err=%v", overdue, err)
	}
	paid, err := service.UpdateStatus(ctx, bill.ID, billing.BillStatusPaid)
	if err != nil || paid.PaidAt == nil || !paid.PaidAt.Equal(now) {
		t.Fatalf("expected paid at %s, got %+v err=%v", now, paid, err)
	}
	again, err := service.UpdateStatus(ctx, bill.ID, billing.BillStatusPaid)
	if err != nil || again.Status != billing.BillStatusPaid {
		t.Fatalf("re-applying status should be a no-op, got %+v err=%v", again, err)
	}
	if _, err := service.UpdateStatus(ctx, bill.ID, billing.BillStatusVoid); !errors.Is(err, billing.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := service.UpdateStatus(ctx, bill.ID, billing.BillStatusProvisional); !errors.Is(err, billing.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition to provisional, got %v", err)
	}
	if _, err := service.UpdateStatus(ctx, bill.ID, "refunded"); !errors.Is(err, billing.ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := service.UpdateStatus(ctx, "missing", billing.BillStatusPaid); !errors.Is(err, billing.ErrBillNotFound) {
		t.Fatalf("expected bill not found, got %v", err)
	}

	stored, err := service.GetBill(ctx, bill.ID)
	if err != nil || stored.Status != billing.BillStatusPaid {
		t.Fatalf("expected stored paid bill, got %+v err=%v", stored, err)
	}
}

func TestUpdateStatusLostRace(t *testing.T) {
	ctx := context.Background()
	inner := billmemory.NewBillStore()

	store := &staleStore{BillStore: inner, winner: billing.BillStatusVoid}
	service := newTestBillService(t, &stubAggregator{}, store)
	bill, _, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-03")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := service.UpdateStatus(ctx, bill.ID, billing.BillStatusPaid); !errors.Is(err, billing.ErrStatusConflict) {
		t.Fatalf("expected status conflict, got %v", err)
	}

	store.winner = billing.BillStatusPaid
	bill, _, err = service.GenerateMonthlyBill(ctx, "sub-1", "2026-02")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	got, err := service.UpdateStatus(ctx, bill.ID, billing.BillStatusPaid)
	if err != nil || got.Status != billing.BillStatusPaid {
		t.Fatalf("expected concurrent identical update to succeed, got %+v err=%v", got, err)
	}
}

func TestListBillsNewestFirst(t *testing.T) {
	service := newTestBillService(t, &stubAggregator{}, billmemory.NewBillStore())
	ctx := context.Background()
	for _, month := range []string{"2026-01", "2026-03", "2026-02"} {
		if _, _, err := service.GenerateMonthlyBill(ctx, "sub-1", month); err != nil {
			t.Fatalf("generate %s: %v", month, err)
		}
	}
	bills, err := service.ListBills(ctx, "sub-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bills) != 3 || bills[0].Period.Label() != "2026-03" {
		t.Fatalf("unexpected bills %+v", bills)
	}
	if _, err := service.ListBills(ctx, ""); !errors.Is(err, billing.ErrEmptySubscriberID) {
		t.Fatalf("expected empty id error, got %v", err)
	}
}

func TestNewBillServiceRejectsInvalidRates(t *testing.T) {
	rates := billing.DefaultRateTable()
	rates.TaxRate = -1
	_, err := NewBillService(&stubAggregator{}, submemory.NewSubscriptionStore(), billmemory.NewBillStore(), WithRates(rates))
	if !errors.Is(err, billing.ErrInvalidRate) {
		t.Fatalf("expected invalid rate, got %v", err)
	}
}

func TestGenerateBillRejectsOpenPeriod(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	agg := &stubAggregator{agg: householdAggregate}
	store := billmemory.NewBillStore()
	service := newTestBillService(t, agg, store, WithClock(fixedClock{now: now}))
	ctx := context.Background()

	if _, _, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-10"); !errors.Is(err, billing.ErrPeriodOpen) {
		t.Fatalf("expected open period error, got %v", err)
	}
	_, _, err := service.GenerateBill(ctx, billing.BillingPeriod{
		SubscriberID: "sub-1",
		Start:        time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		End:          now.Add(time.Minute),
	})
	if !errors.Is(err, billing.ErrPeriodOpen) {
		t.Fatalf("expected open period error for range, got %v", err)
	}
	if agg.calls.Load() != 0 {
		t.Fatalf("open periods must not be aggregated")
	}
	bills, _ := store.ListBySubscriber(ctx, "sub-1")
	if len(bills) != 0 {
		t.Fatalf("open period must not be stored, got %d bills", len(bills))
	}

	closed := billing.BillingPeriod{
		SubscriberID: "sub-1",
		Start:        time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		End:          now,
	}
	if _, created, err := service.GenerateBill(ctx, closed); err != nil || !created {
		t.Fatalf("period ending now is closed, created=%v err=%v", created, err)
	}
	if _, created, err := service.GenerateMonthlyBill(ctx, "sub-1", "2026-09"); err != nil || !created {
		t.Fatalf("previous month should bill, created=%v err=%v", created, err)
	}
}
