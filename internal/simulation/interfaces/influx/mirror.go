package influx

import (
	"context"
	"errors"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	simulation "solarflow-cloud/internal/simulation/domain"
)

// Measurement is the InfluxDB measurement name for readings.
const Measurement = "energy_reading"

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Config addresses the InfluxDB bucket.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Mirror copies readings into InfluxDB for dashboards.
type Mirror struct {
	client influxdb2.Client
	writer pointWriter
}

// NewMirror connects and verifies the server health.
func NewMirror(ctx context.Context, cfg Config) (*Mirror, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx mirror: url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("influx mirror: health: %w", err)
	}
	return &Mirror{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// Point maps a reading to an InfluxDB point.
func Point(reading simulation.EnergyReading) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{
			"subscriber_id": reading.SubscriberID,
		},
		map[string]interface{}{
			"solar_generation_kw":   reading.SolarGenerationKW,
			"grid_import_kw":        reading.GridImportKW,
			"grid_export_kw":        reading.GridExportKW,
			"battery_charge_kwh":    reading.BatteryChargeKWh,
			"battery_discharge_kwh": reading.BatteryDischargeKWh,
			"battery_level_kwh":     reading.BatteryLevelKWh,
			"total_consumption_kw":  reading.TotalConsumptionKW,
			"voltage":               reading.Voltage,
			"frequency":             reading.Frequency,
			"power_factor":          reading.PowerFactor,
		},
		reading.Timestamp,
	)
}

// Publish implements simulation.Broadcaster.
func (m *Mirror) Publish(ctx context.Context, reading simulation.EnergyReading) error {
	return m.writer.WritePoint(ctx, Point(reading))
}

// Close closes the InfluxDB client.
func (m *Mirror) Close() {
	if m.client != nil {
		m.client.Close()
	}
}
