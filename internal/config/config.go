package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	billing "solarflow-cloud/internal/billing/domain"
	simapp "solarflow-cloud/internal/simulation/application"
)

// KafkaConfig enables the Kafka reading sink when Brokers is set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MQTTConfig enables the MQTT reading sink when BrokerURL is set.
type MQTTConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// InfluxConfig enables the InfluxDB mirror when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Config is the service configuration.
type Config struct {
	HTTPAddr     string `yaml:"http_addr"`
	DatabaseURL  string `yaml:"database_url"`
	Timezone     string `yaml:"timezone"`
	JWTSecret    string `yaml:"-"`
	AuthDisabled bool   `yaml:"auth_disabled"`

	TickInterval time.Duration `yaml:"tick_interval"`
	AutoStart    []string      `yaml:"auto_start"`

	Generator    simapp.GeneratorParams `yaml:"generator"`
	LiveBand     simapp.VariationBand   `yaml:"live_band"`
	BackfillBand simapp.VariationBand   `yaml:"backfill_band"`
	BackfillDays int                    `yaml:"backfill_days"`

	Rates billing.RateTable `yaml:"rates"`

	Kafka  KafkaConfig  `yaml:"kafka"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Influx InfluxConfig `yaml:"influx"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:     ":8080",
		Timezone:     "UTC",
		TickInterval: simapp.DefaultTickInterval,
		Generator:    simapp.DefaultGeneratorParams(),
		LiveBand:     simapp.LiveVariationBand,
		BackfillBand: simapp.BackfillVariationBand,
		BackfillDays: 30,
		Rates:        billing.DefaultRateTable(),
		Kafka:        KafkaConfig{Topic: "solarflow.readings"},
		MQTT:         MQTTConfig{ClientID: "solarflow-cloud", TopicPrefix: "solarflow/readings"},
	}
}

// Load reads the configuration and validates it for the service.
func Load() (Config, error) {
	cfg, err := Read()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Read applies defaults, then the YAML file named by SOLARFLOW_CONFIG, then
// environment overrides. It does not validate.
func Read() (Config, error) {
	cfg := Default()
	if path := os.Getenv("SOLARFLOW_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.Timezone = getenvDefault("SOLARFLOW_TIMEZONE", cfg.Timezone)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.AuthDisabled = getenvBool("AUTH_DISABLED", cfg.AuthDisabled)

	cfg.TickInterval = getenvDuration("SIMULATION_TICK_INTERVAL", cfg.TickInterval)
	if ids := splitCSV(os.Getenv("SIMULATION_AUTO_START")); len(ids) > 0 {
		cfg.AutoStart = ids
	}
	cfg.BackfillDays = getenvIntDefault("BACKFILL_DAYS", cfg.BackfillDays)
	cfg.Generator.MaxChargeKWhPerTick = getenvFloatDefault("BATTERY_MAX_CHARGE_KWH", cfg.Generator.MaxChargeKWhPerTick)
	cfg.Generator.MaxDischargeKWhPerTick = getenvFloatDefault("BATTERY_MAX_DISCHARGE_KWH", cfg.Generator.MaxDischargeKWhPerTick)

	cfg.Rates.GridImportRate = getenvFloatDefault("GRID_IMPORT_RATE", cfg.Rates.GridImportRate)
	cfg.Rates.GridExportRate = getenvFloatDefault("GRID_EXPORT_RATE", cfg.Rates.GridExportRate)
	cfg.Rates.TraditionalRate = getenvFloatDefault("TRADITIONAL_RATE", cfg.Rates.TraditionalRate)
	cfg.Rates.TaxRate = getenvFloatDefault("TAX_RATE", cfg.Rates.TaxRate)
	cfg.Rates.CarbonFactor = getenvFloatDefault("CARBON_FACTOR", cfg.Rates.CarbonFactor)
	cfg.Rates.Currency = getenvDefault("CURRENCY", cfg.Rates.Currency)

	if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getenvDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.MQTT.BrokerURL = getenvDefault("MQTT_BROKER_URL", cfg.MQTT.BrokerURL)
	cfg.MQTT.ClientID = getenvDefault("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.TopicPrefix = getenvDefault("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
	cfg.Influx.URL = getenvDefault("INFLUX_URL", cfg.Influx.URL)
	cfg.Influx.Token = getenvDefault("INFLUX_TOKEN", cfg.Influx.Token)
	cfg.Influx.Org = getenvDefault("INFLUX_ORG", cfg.Influx.Org)
	cfg.Influx.Bucket = getenvDefault("INFLUX_BUCKET", cfg.Influx.Bucket)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http addr required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone: %w", err)
	}
	if c.TickInterval <= 0 {
		return errors.New("config: tick interval must be positive")
	}
	for name, band := range map[string]simapp.VariationBand{"live": c.LiveBand, "backfill": c.BackfillBand} {
		if band.Min < 0 || band.Max < band.Min {
			return fmt.Errorf("config: invalid %s variation band", name)
		}
	}
	if c.BackfillDays < 0 {
		return errors.New("config: backfill days must be non-negative")
	}
	if c.Generator.MaxChargeKWhPerTick < 0 || c.Generator.MaxDischargeKWhPerTick < 0 {
		return errors.New("config: battery rates must be non-negative")
	}
	if err := c.Rates.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !c.AuthDisabled && c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	if c.Influx.URL != "" && c.Influx.Bucket == "" {
		return errors.New("config: influx bucket required")
	}
	return nil
}

// Location returns the billing and aggregation location.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
