package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "platform_"

	resultSuccess = "success"
	resultError   = "error"

	billOutcomeCreated  = "created"
	billOutcomeExisting = "existing"
)

var (
	registerOnce sync.Once

	simulationTicks       *prometheus.CounterVec
	simulationTickLatency *prometheus.HistogramVec
	simulationActiveLoops prometheus.Gauge

	broadcastFailures *prometheus.CounterVec

	aggregationTotal   *prometheus.CounterVec
	aggregationLatency *prometheus.HistogramVec

	billGenerateTotal   *prometheus.CounterVec
	billGenerateLatency *prometheus.HistogramVec
	billExportTotal     *prometheus.CounterVec
	billStatusTotal     *prometheus.CounterVec

	backfillReadings *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		simulationTicks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "simulation_ticks_total",
				Help: "Total simulation ticks by result",
			},
			[]string{"result"},
		)
		simulationTickLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "simulation_tick_latency_seconds",
				Help:    "Simulation tick latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		simulationActiveLoops = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "simulation_active_loops",
				Help: "Running per-subscriber simulation loops",
			},
		)

		broadcastFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "broadcast_failures_total",
				Help: "Failed reading deliveries by sink",
			},
			[]string{"sink"},
		)

		aggregationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_total",
				Help: "Total period aggregations by result",
			},
			[]string{"result"},
		)
		aggregationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_latency_seconds",
				Help:    "Period aggregation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		billGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_generate_total",
				Help: "Total bill generate operations by result and outcome",
			},
			[]string{"result", "outcome"},
		)
		billGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_generate_latency_seconds",
				Help:    "Bill generate latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		billExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_export_total",
				Help: "Total bill export operations by format and result",
			},
			[]string{"format", "result"},
		)
		billStatusTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_status_transitions_total",
				Help: "Total bill status transitions by target status",
			},
			[]string{"status"},
		)

		backfillReadings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "backfill_readings_total",
				Help: "Historical readings written by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			simulationTicks,
			simulationTickLatency,
			simulationActiveLoops,
			broadcastFailures,
			aggregationTotal,
			aggregationLatency,
			billGenerateTotal,
			billGenerateLatency,
			billExportTotal,
			billStatusTotal,
			backfillReadings,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSimulationTick records tick duration and result.
func ObserveSimulationTick(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if simulationTicks != nil {
		simulationTicks.WithLabelValues(result).Inc()
	}
	if simulationTickLatency != nil {
		simulationTickLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// SetActiveLoops sets the running loop gauge.
func SetActiveLoops(count int) {
	if count < 0 {
		count = 0
	}
	if simulationActiveLoops != nil {
		simulationActiveLoops.Set(float64(count))
	}
}

// IncBroadcastFailure increments the failure counter for a sink.
func IncBroadcastFailure(sink string) {
	if sink == "" {
		sink = "unknown"
	}
	if broadcastFailures != nil {
		broadcastFailures.WithLabelValues(sink).Inc()
	}
}

// ObserveAggregation records aggregation latency and result.
func ObserveAggregation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if aggregationTotal != nil {
		aggregationTotal.WithLabelValues(result).Inc()
	}
	if aggregationLatency != nil {
		aggregationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveBillGenerate records generate latency, result and outcome.
func ObserveBillGenerate(result, outcome string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outcome == "" {
		outcome = "none"
	}
	if billGenerateTotal != nil {
		billGenerateTotal.WithLabelValues(result, outcome).Inc()
	}
	if billGenerateLatency != nil {
		billGenerateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncBillExport increments the export counter.
func IncBillExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if billExportTotal != nil {
		billExportTotal.WithLabelValues(format, result).Inc()
	}
}

// IncBillStatus increments the transition counter.
func IncBillStatus(status string) {
	if status == "" {
		status = "unknown"
	}
	if billStatusTotal != nil {
		billStatusTotal.WithLabelValues(status).Inc()
	}
}

// AddBackfillReadings adds historical readings written.
func AddBackfillReadings(result string, count int) {
	if count <= 0 {
		return
	}
	if result == "" {
		result = resultSuccess
	}
	if backfillReadings != nil {
		backfillReadings.WithLabelValues(result).Add(float64(count))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	BillOutcomeCreated  = billOutcomeCreated
	BillOutcomeExisting = billOutcomeExisting
)
