package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	analyticsapp "solarflow-cloud/internal/analytics/application"
	analyticspg "solarflow-cloud/internal/analytics/infrastructure/postgres"
	billapp "solarflow-cloud/internal/billing/application"
	billing "solarflow-cloud/internal/billing/domain"
	billpg "solarflow-cloud/internal/billing/infrastructure/postgres"
	"solarflow-cloud/internal/config"
	simapp "solarflow-cloud/internal/simulation/application"
	simpg "solarflow-cloud/internal/simulation/infrastructure/postgres"
	subscription "solarflow-cloud/internal/subscription/domain"
	subpg "solarflow-cloud/internal/subscription/infrastructure/postgres"
)

type options struct {
	subscribers []string
	start       time.Time
	days        int
	step        time.Duration
	bill        bool
}

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Read()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	opts, err := parseOptions(cfg)
	if err != nil {
		logger.Fatalf("flags: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if err := cfg.Rates.Validate(); err != nil {
		logger.Fatalf("rates: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subs := subpg.NewSubscriptionStore(db)
	readings := simpg.NewReadingStore(db)
	tracker, err := simapp.NewBatteryStateTracker(readings)
	if err != nil {
		logger.Fatalf("tracker: %v", err)
	}
	generator := simapp.NewReadingGenerator(
		simapp.WithParams(cfg.Generator),
		simapp.WithLocation(cfg.Location()),
	)
	band := cfg.BackfillBand
	backfiller, err := simapp.NewBackfiller(readings, tracker, generator, &band)
	if err != nil {
		logger.Fatalf("backfiller: %v", err)
	}

	end := opts.start.AddDate(0, 0, opts.days)
	logger.Printf("backfill start: subscribers=%d start=%s end=%s step=%s",
		len(opts.subscribers), opts.start.Format(time.RFC3339), end.Format(time.RFC3339), opts.step)

	// One goroutine per subscriber; each run chains its own battery state.
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, subscriberID := range opts.subscribers {
		wg.Add(1)
		go func(subscriberID string) {
			defer wg.Done()
			if err := backfillOne(ctx, subs, backfiller, subscriberID, opts.start, end, opts.step, logger); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(subscriberID)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		logger.Fatalf("backfill failed: %v", err)
	}

	if opts.bill {
		engine, err := analyticsapp.NewAggregationEngine(readings,
			analyticsapp.WithPeriodSummer(analyticspg.NewPeriodSummer(db)),
			analyticsapp.WithLocation(cfg.Location()),
		)
		if err != nil {
			logger.Fatalf("engine: %v", err)
		}
		bills, err := billapp.NewBillService(engine, subs, billpg.NewBillStore(db),
			billapp.WithRates(cfg.Rates),
			billapp.WithLocation(cfg.Location()),
			billapp.WithLogger(logger),
		)
		if err != nil {
			logger.Fatalf("bill service: %v", err)
		}
		if err := billCompletedMonths(ctx, bills, opts.subscribers, opts.start.In(cfg.Location()), end.In(cfg.Location())); err != nil {
			logger.Fatalf("billing failed: %v", err)
		}
	}
	logger.Printf("backfill done")
}

func backfillOne(
	ctx context.Context,
	subs subscription.Store,
	backfiller *simapp.Backfiller,
	subscriberID string,
	start, end time.Time,
	step time.Duration,
	logger *log.Logger,
) error {
	sub, err := subs.Get(ctx, subscriberID)
	if err != nil {
		return err
	}
	result, err := backfiller.Run(ctx, simapp.BackfillRequest{
		Profile: simapp.ProfileFromSubscription(*sub),
		Start:   start,
		End:     end,
		Step:    step,
	})
	if err != nil {
		logger.Printf("backfill error: subscriber=%s written=%d err=%v", subscriberID, result.Written, err)
		return err
	}
	logger.Printf("backfill subscriber done: subscriber=%s written=%d final_charge_kwh=%.3f",
		subscriberID, result.Written, result.FinalChargeKWh)
	return nil
}

// billCompletedMonths generates bills for every calendar month fully inside [start, end).
func billCompletedMonths(ctx context.Context, bills *billapp.BillService, subscribers []string, start, end time.Time) error {
	first := billing.MonthStart(start)
	if first.Before(start) {
		first = first.AddDate(0, 1, 0)
	}
	var errs []error
	for month := first; !month.AddDate(0, 1, 0).After(end); month = month.AddDate(0, 1, 0) {
		for _, subscriberID := range subscribers {
			if _, _, err := bills.GenerateMonthlyBill(ctx, subscriberID, month.Format(billing.MonthLayout)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func parseOptions(cfg config.Config) (options, error) {
	var (
		subscribers string
		start       string
		opts        options
	)
	flag.StringVar(&subscribers, "subscribers", os.Getenv("BACKFILL_SUBSCRIBERS"), "comma separated subscriber ids")
	flag.StringVar(&start, "start", os.Getenv("BACKFILL_START"), "start date (YYYY-MM-DD or RFC3339), default days ago")
	flag.IntVar(&opts.days, "days", cfg.BackfillDays, "number of days to seed")
	flag.DurationVar(&opts.step, "step", time.Hour, "interval between readings")
	flag.BoolVar(&opts.bill, "bill", false, "generate bills for completed months")
	flag.Parse()

	for _, id := range strings.Split(subscribers, ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.subscribers = append(opts.subscribers, id)
		}
	}
	if len(opts.subscribers) == 0 {
		return opts, errors.New("at least one subscriber is required")
	}
	if opts.days <= 0 {
		return opts, errors.New("days must be > 0")
	}
	if opts.step <= 0 {
		return opts, errors.New("step must be > 0")
	}
	parsed, err := parseStart(start, opts.days, cfg.Location())
	if err != nil {
		return opts, err
	}
	opts.start = parsed
	return opts, nil
}

func parseStart(value string, days int, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		now := time.Now().In(loc)
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		return midnight.AddDate(0, 0, -days).UTC(), nil
	}
	if strings.Contains(value, "T") {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
