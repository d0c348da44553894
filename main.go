package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	analyticsapp "solarflow-cloud/internal/analytics/application"
	analyticspg "solarflow-cloud/internal/analytics/infrastructure/postgres"
	analyticshttp "solarflow-cloud/internal/analytics/interfaces/http"
	"solarflow-cloud/internal/auth"
	billapp "solarflow-cloud/internal/billing/application"
	billing "solarflow-cloud/internal/billing/domain"
	billmemory "solarflow-cloud/internal/billing/infrastructure/memory"
	billpg "solarflow-cloud/internal/billing/infrastructure/postgres"
	billhttp "solarflow-cloud/internal/billing/interfaces/http"
	"solarflow-cloud/internal/config"
	"solarflow-cloud/internal/observability/metrics"
	simapp "solarflow-cloud/internal/simulation/application"
	simulation "solarflow-cloud/internal/simulation/domain"
	simmemory "solarflow-cloud/internal/simulation/infrastructure/memory"
	simpg "solarflow-cloud/internal/simulation/infrastructure/postgres"
	simhttp "solarflow-cloud/internal/simulation/interfaces/http"
	"solarflow-cloud/internal/simulation/interfaces/influx"
	"solarflow-cloud/internal/simulation/interfaces/kafka"
	"solarflow-cloud/internal/simulation/interfaces/mqtt"
	"solarflow-cloud/internal/simulation/interfaces/ws"
	subscription "solarflow-cloud/internal/subscription/domain"
	submemory "solarflow-cloud/internal/subscription/infrastructure/memory"
	subpg "solarflow-cloud/internal/subscription/infrastructure/postgres"
)

const demoSubscriberID = "demo-subscriber"

type stores struct {
	db            *sql.DB
	subscriptions subscription.Store
	readings      simulation.ReadingStore
	bills         billing.BillStore
	summer        analyticsapp.PeriodSummer
}

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	loc := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store error: %v", err)
	}
	if st.db != nil {
		defer st.db.Close()
	}

	metrics.Init(st.db, logger)

	sse := simhttp.NewSSEBroker()
	hub := ws.NewHub(logger)
	sinks := []simapp.Sink{
		{Name: "sse", Broadcaster: sse},
		{Name: "ws", Broadcaster: hub},
	}
	var closers []func()
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatalf("kafka publisher error: %v", err)
		}
		sinks = append(sinks, simapp.Sink{Name: "kafka", Broadcaster: publisher})
		closers = append(closers, func() { _ = publisher.Close() })
		logger.Printf("kafka sink enabled: topic=%s", cfg.Kafka.Topic)
	}
	if cfg.MQTT.BrokerURL != "" {
		publisher, disconnect, err := mqtt.Connect(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
		if err != nil {
			logger.Printf("mqtt sink disabled: %v", err)
		} else {
			sinks = append(sinks, simapp.Sink{Name: "mqtt", Broadcaster: publisher})
			closers = append(closers, disconnect)
			logger.Printf("mqtt sink enabled: broker=%s", cfg.MQTT.BrokerURL)
		}
	}
	if cfg.Influx.URL != "" {
		mirror, err := influx.NewMirror(ctx, influx.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			logger.Printf("influx sink disabled: %v", err)
		} else {
			sinks = append(sinks, simapp.Sink{Name: "influx", Broadcaster: mirror})
			closers = append(closers, mirror.Close)
			logger.Printf("influx sink enabled: bucket=%s", cfg.Influx.Bucket)
		}
	}
	broadcaster := simapp.NewMultiBroadcaster(sinks...)

	tracker, err := simapp.NewBatteryStateTracker(st.readings)
	if err != nil {
		logger.Fatalf("battery tracker error: %v", err)
	}
	generator := simapp.NewReadingGenerator(
		simapp.WithParams(cfg.Generator),
		simapp.WithVariationBand(cfg.LiveBand),
		simapp.WithLocation(loc),
	)
	runner, err := simapp.NewTickRunner(tracker, generator, st.readings, broadcaster, simapp.SystemClock{}, logger)
	if err != nil {
		logger.Fatalf("tick runner error: %v", err)
	}
	scheduler, err := simapp.NewScheduler(runner,
		simapp.WithInterval(cfg.TickInterval),
		simapp.WithSchedulerLogger(logger),
	)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}
	simService, err := simapp.NewSimulationService(st.subscriptions, scheduler, tracker)
	if err != nil {
		logger.Fatalf("simulation service error: %v", err)
	}

	engineOpts := []analyticsapp.EngineOption{analyticsapp.WithLocation(loc)}
	if st.summer != nil {
		engineOpts = append(engineOpts, analyticsapp.WithPeriodSummer(st.summer))
	}
	engine, err := analyticsapp.NewAggregationEngine(st.readings, engineOpts...)
	if err != nil {
		logger.Fatalf("aggregation engine error: %v", err)
	}
	billService, err := billapp.NewBillService(engine, st.subscriptions, st.bills,
		billapp.WithRates(cfg.Rates),
		billapp.WithLocation(loc),
		billapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("bill service error: %v", err)
	}

	simHandler, err := simhttp.NewHandler(simService)
	if err != nil {
		logger.Fatalf("simulation handler error: %v", err)
	}
	billHandler, err := billhttp.NewHandler(billService)
	if err != nil {
		logger.Fatalf("bill handler error: %v", err)
	}
	energyHandler, err := analyticshttp.NewEnergyHandler(engine)
	if err != nil {
		logger.Fatalf("energy handler error: %v", err)
	}

	router := mux.NewRouter()
	simHandler.Register(router)
	billHandler.Register(router)
	energyHandler.Register(router)
	router.Handle("/api/v1/subscribers/{id}/stream", simhttp.NewStreamHandler(sse)).Methods(http.MethodGet)
	router.Handle("/ws", ws.NewHandler(hub))
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var authMiddleware *auth.Middleware
	if cfg.AuthDisabled {
		logger.Printf("auth disabled")
	} else {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		authMiddleware = auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	}

	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(logger), handlers.PrintRecoveryStack(true))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recovery(loggingMiddleware(authMiddleware.Wrap(router), logger)),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	for _, id := range cfg.AutoStart {
		if _, err := simService.StartForSubscriber(ctx, id); err != nil {
			logger.Printf("auto start failed: subscriber=%s err=%v", id, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("http server error: %v", err)
		}
	}

	scheduler.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
	for _, closeFn := range closers {
		closeFn()
	}
	logger.Printf("shutdown complete")
}

func openStores(ctx context.Context, cfg config.Config, logger *log.Logger) (stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not set, using in-memory stores")
		subs := submemory.NewSubscriptionStore()
		if err := seedDemoSubscriptions(ctx, subs, cfg.AutoStart); err != nil {
			return stores{}, err
		}
		return stores{
			subscriptions: subs,
			readings:      simmemory.NewReadingStore(),
			bills:         billmemory.NewBillStore(),
		}, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return stores{}, err
	}
	return stores{
		db:            db,
		subscriptions: subpg.NewSubscriptionStore(db),
		readings:      simpg.NewReadingStore(db),
		bills:         billpg.NewBillStore(db),
		summer:        analyticspg.NewPeriodSummer(db),
	}, nil
}

// seedDemoSubscriptions gives every auto-started subscriber a plan so the
// in-memory mode runs without provisioning.
func seedDemoSubscriptions(ctx context.Context, store *submemory.SubscriptionStore, ids []string) error {
	if len(ids) == 0 {
		ids = []string{demoSubscriberID}
	}
	now := time.Now().UTC()
	for _, id := range ids {
		err := store.Save(ctx, subscription.Subscription{
			SubscriberID:       id,
			PlanName:           "solar-standard",
			MonthlyFee:         1299,
			SolarCapacityKW:    5,
			BatteryCapacityKWh: 10,
			Status:             subscription.StatusActive,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Printf("http request: method=%s path=%s status=%d duration=%s", r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps server-sent events working behind the logger.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http: response does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
