package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	analytics "solarflow-cloud/internal/analytics/domain"
	billing "solarflow-cloud/internal/billing/domain"
	"solarflow-cloud/internal/observability/metrics"
	subscription "solarflow-cloud/internal/subscription/domain"
)

// Aggregator sums readings over a period.
type Aggregator interface {
	PeriodAggregate(ctx context.Context, subscriberID string, start, end time.Time) (analytics.PeriodAggregate, error)
}

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// BillService generates bills and manages their payment status.
type BillService struct {
	aggregator    Aggregator
	subscriptions subscription.Store
	bills         billing.BillStore
	rates         billing.RateTable
	clock         Clock
	location      *time.Location
	logger        *log.Logger
	newID         func() string
}

// Option configures the bill service.
type Option func(*BillService)

// WithRates overrides the default rate table.
func WithRates(rates billing.RateTable) Option {
	return func(s *BillService) {
		s.rates = rates
	}
}

// WithClock overrides the clock used for provisional bills and timestamps.
func WithClock(clock Clock) Option {
	return func(s *BillService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocation sets the location of calendar months.
func WithLocation(loc *time.Location) Option {
	return func(s *BillService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *BillService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator overrides bill id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *BillService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewBillService constructs a bill service.
func NewBillService(aggregator Aggregator, subscriptions subscription.Store, bills billing.BillStore, opts ...Option) (*BillService, error) {
	if aggregator == nil {
		return nil, errors.New("bill service: nil aggregator")
	}
	if subscriptions == nil {
		return nil, errors.New("bill service: nil subscription store")
	}
	if bills == nil {
		return nil, errors.New("bill service: nil bill store")
	}
	s := &BillService{
		aggregator:    aggregator,
		subscriptions: subscriptions,
		bills:         bills,
		rates:         billing.DefaultRateTable(),
		clock:         systemClock{},
		location:      time.UTC,
		logger:        log.New(os.Stdout, "", log.LstdFlags),
		newID:         func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.rates.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Location returns the location of calendar months.
func (s *BillService) Location() *time.Location {
	return s.location
}

// GenerateBill returns the bill for the period, creating it on first call.
// The second result reports whether this call created the bill. A period
// ending after now returns ErrPeriodOpen.
func (s *BillService) GenerateBill(ctx context.Context, period billing.BillingPeriod) (*billing.Bill, bool, error) {
	start := time.Now()
	bill, created, err := s.generate(ctx, period)
	result := metrics.ResultSuccess
	outcome := metrics.BillOutcomeExisting
	if err != nil {
		result = metrics.ResultError
		outcome = ""
	} else if created {
		outcome = metrics.BillOutcomeCreated
	}
	metrics.ObserveBillGenerate(result, outcome, time.Since(start))
	return bill, created, err
}

// GenerateMonthlyBill bills the calendar month given as YYYY-MM.
func (s *BillService) GenerateMonthlyBill(ctx context.Context, subscriberID, month string) (*billing.Bill, bool, error) {
	period, err := billing.MonthPeriod(subscriberID, month, s.location)
	if err != nil {
		return nil, false, err
	}
	return s.GenerateBill(ctx, period)
}

func (s *BillService) generate(ctx context.Context, period billing.BillingPeriod) (*billing.Bill, bool, error) {
	if err := period.Validate(); err != nil {
		return nil, false, err
	}
	// A stored bill is final, so only closed periods are billed.
	if period.End.After(s.clock.Now()) {
		return nil, false, billing.ErrPeriodOpen
	}
	existing, err := s.bills.Find(ctx, period)
	if err != nil {
		return nil, false, fmt.Errorf("find bill: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	bill, err := s.compute(ctx, period, billing.BillStatusPending)
	if err != nil {
		return nil, false, err
	}
	if err := s.bills.Insert(ctx, bill); err != nil {
		if !errors.Is(err, billing.ErrDuplicateBillPeriod) {
			return nil, false, fmt.Errorf("insert bill: %w", err)
		}
		winner, findErr := s.bills.Find(ctx, period)
		if findErr != nil {
			return nil, false, fmt.Errorf("find bill after conflict: %w", findErr)
		}
		if winner == nil {
			return nil, false, err
		}
		return winner, false, nil
	}
	s.logger.Printf("bill generated: subscriber=%s period=%s bill=%s total=%s",
		period.SubscriberID, period.Label(), bill.ID, bill.Charges.TotalAmount.StringFixed(2))
	return bill, true, nil
}

// ProvisionalBill computes the month-to-date bill. It is never persisted.
func (s *BillService) ProvisionalBill(ctx context.Context, subscriberID string) (*billing.Bill, error) {
	if subscriberID == "" {
		return nil, billing.ErrEmptySubscriberID
	}
	now := s.clock.Now().In(s.location)
	period := billing.BillingPeriod{
		SubscriberID: subscriberID,
		Start:        billing.MonthStart(now),
		End:          now,
	}
	return s.compute(ctx, period, billing.BillStatusProvisional)
}

func (s *BillService) compute(ctx context.Context, period billing.BillingPeriod, status billing.BillStatus) (*billing.Bill, error) {
	sub, err := s.subscriptions.Get(ctx, period.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	var agg analytics.PeriodAggregate
	if period.End.After(period.Start) {
		agg, err = s.aggregator.PeriodAggregate(ctx, period.SubscriberID, period.Start, period.End)
		if err != nil {
			return nil, fmt.Errorf("aggregate period: %w", err)
		}
	}

	now := s.clock.Now().UTC()
	return &billing.Bill{
		ID:        s.newID(),
		Period:    period,
		Units:     UnitsOf(agg),
		Charges:   Calculate(sub.MonthlyFee, agg, s.rates),
		Currency:  s.rates.Currency,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetBill returns a bill by id.
func (s *BillService) GetBill(ctx context.Context, billID string) (*billing.Bill, error) {
	if billID == "" {
		return nil, billing.ErrBillNotFound
	}
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("get bill: %w", err)
	}
	if bill == nil {
		return nil, billing.ErrBillNotFound
	}
	return bill, nil
}

// ListBills returns the subscriber bills, newest period first.
func (s *BillService) ListBills(ctx context.Context, subscriberID string) ([]billing.Bill, error) {
	if subscriberID == "" {
		return nil, billing.ErrEmptySubscriberID
	}
	bills, err := s.bills.ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return bills, nil
}

// UpdateStatus applies a payment status transition.
func (s *BillService) UpdateStatus(ctx context.Context, billID string, status billing.BillStatus) (*billing.Bill, error) {
	if _, err := billing.ParseBillStatus(string(status)); err != nil {
		return nil, err
	}
	bill, err := s.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	from := bill.Status
	changed, err := bill.Transition(status, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		return bill, nil
	}

	ok, err := s.bills.UpdateStatus(ctx, bill.ID, from, status, bill.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update bill status: %w", err)
	}
	if !ok {
		current, err := s.GetBill(ctx, billID)
		if err != nil {
			return nil, err
		}
		if current.Status == status {
			return current, nil
		}
		return nil, billing.ErrStatusConflict
	}
	metrics.IncBillStatus(string(status))
	s.logger.Printf("bill status changed: bill=%s from=%s to=%s", bill.ID, from, status)
	return bill, nil
}
