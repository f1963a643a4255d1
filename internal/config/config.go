package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/infrastructure/carriers"
	"github.com/wms-platform/shipment-pipeline/pkg/kafka"
	"github.com/wms-platform/shipment-pipeline/pkg/mongodb"
	"github.com/wms-platform/shipment-pipeline/pkg/temporal"
	"github.com/wms-platform/shipment-pipeline/pkg/tracing"
)

// FileEnv names the environment variable pointing at an optional YAML file
const FileEnv = "PIPELINE_CONFIG"

// Config holds application configuration
type Config struct {
	ServiceName string `yaml:"-"`
	Environment string `yaml:"environment"`

	Server      ServerConfig              `yaml:"server"`
	MongoDB     *mongodb.Config           `yaml:"mongodb" validate:"required"`
	Kafka       *kafka.Config             `yaml:"kafka" validate:"required"`
	Temporal    *temporal.Config          `yaml:"temporal" validate:"required"`
	Tracing     *tracing.Config           `yaml:"tracing" validate:"required"`
	Carrier     *carriers.UPSConfig       `yaml:"carrier" validate:"required"`
	Batch       BatchConfig               `yaml:"batch"`
	Lanes       LaneConfig                `yaml:"lanes"`
	AutoConfirm domain.AutoConfirmRuleSet `yaml:"autoConfirm"`
	Shipper     domain.Shipper            `yaml:"shipper"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// BatchConfig tunes the batch engine
type BatchConfig struct {
	Concurrency    int           `yaml:"concurrency" validate:"gte=1,lte=50"`
	MaxPreviewRows int           `yaml:"maxPreviewRows" validate:"gte=1"`
	ConfirmTimeout time.Duration `yaml:"confirmTimeout"`
}

// LaneConfig holds the international lane kill switch. Every international
// lane is disabled until configured.
type LaneConfig struct {
	InternationalEnabled []string `yaml:"internationalEnabled"`
}

// Default returns the configuration used when nothing is overridden
func Default(serviceName string) *Config {
	temporalCfg := temporal.DefaultConfig()
	temporalCfg.Identity = serviceName

	kafkaCfg := kafka.DefaultConfig()
	kafkaCfg.ClientID = serviceName

	return &Config{
		ServiceName: serviceName,
		Environment: "development",
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		MongoDB:  mongodb.DefaultConfig(),
		Kafka:    kafkaCfg,
		Temporal: temporalCfg,
		Tracing:  tracing.DefaultConfig(serviceName),
		Carrier:  carriers.DefaultUPSConfig(),
		Batch: BatchConfig{
			Concurrency:    5,
			MaxPreviewRows: 20,
			ConfirmTimeout: 24 * time.Hour,
		},
		AutoConfirm: domain.DefaultAutoConfirmRuleSet(),
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by PIPELINE_CONFIG and environment overrides, then validates it.
func Load(serviceName string) (*Config, error) {
	cfg := Default(serviceName)

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)

	c.MongoDB.URI = getEnv("MONGODB_URI", c.MongoDB.URI)
	c.MongoDB.Database = getEnv("MONGODB_DATABASE", c.MongoDB.Database)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}

	c.Temporal.HostPort = getEnv("TEMPORAL_HOST", c.Temporal.HostPort)
	c.Temporal.Namespace = getEnv("TEMPORAL_NAMESPACE", c.Temporal.Namespace)

	c.Tracing.Environment = c.Environment
	c.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.OTLPEndpoint)
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = v == "true"
	}

	c.Carrier.BaseURL = getEnv("UPS_BASE_URL", c.Carrier.BaseURL)
	c.Carrier.ClientID = getEnv("UPS_CLIENT_ID", c.Carrier.ClientID)
	c.Carrier.ClientSecret = getEnv("UPS_CLIENT_SECRET", c.Carrier.ClientSecret)
	c.Carrier.AccountNumber = getEnv("UPS_ACCOUNT_NUMBER", c.Carrier.AccountNumber)

	var err error
	if c.Carrier.Timeout, err = getEnvDuration("UPS_TIMEOUT", c.Carrier.Timeout); err != nil {
		return err
	}
	if c.Batch.Concurrency, err = getEnvInt("BATCH_CONCURRENCY", c.Batch.Concurrency); err != nil {
		return err
	}
	if c.Batch.MaxPreviewRows, err = getEnvInt("MAX_PREVIEW_ROWS", c.Batch.MaxPreviewRows); err != nil {
		return err
	}
	if c.Batch.ConfirmTimeout, err = getEnvDuration("BATCH_CONFIRM_TIMEOUT", c.Batch.ConfirmTimeout); err != nil {
		return err
	}

	// An empty value is meaningful here: it disables every international lane.
	if raw, ok := os.LookupEnv("INTERNATIONAL_ENABLED_LANES"); ok {
		c.Lanes.InternationalEnabled = domain.ParseEnabledLanes(raw)
	}

	if v := os.Getenv("AUTO_CONFIRM_ENABLED"); v != "" {
		c.AutoConfirm.Enabled = v == "true"
	}
	if c.AutoConfirm.MaxCostCents, err = getEnvInt64("AUTO_CONFIRM_MAX_COST_CENTS", c.AutoConfirm.MaxCostCents); err != nil {
		return err
	}
	if c.AutoConfirm.MaxRows, err = getEnvInt("AUTO_CONFIRM_MAX_ROWS", c.AutoConfirm.MaxRows); err != nil {
		return err
	}
	if c.AutoConfirm.MaxCostPerRowCents, err = getEnvInt64("AUTO_CONFIRM_MAX_COST_PER_ROW_CENTS", c.AutoConfirm.MaxCostPerRowCents); err != nil {
		return err
	}
	if services := os.Getenv("AUTO_CONFIRM_ALLOWED_SERVICES"); services != "" {
		c.AutoConfirm.AllowedServices = splitList(services)
	}

	c.Shipper.Name = getEnv("SHIPPER_NAME", c.Shipper.Name)
	c.Shipper.AttentionName = getEnv("SHIPPER_ATTENTION_NAME", c.Shipper.AttentionName)
	c.Shipper.Phone = getEnv("SHIPPER_PHONE", c.Shipper.Phone)
	c.Shipper.Address1 = getEnv("SHIPPER_ADDRESS1", c.Shipper.Address1)
	c.Shipper.City = getEnv("SHIPPER_CITY", c.Shipper.City)
	c.Shipper.State = getEnv("SHIPPER_STATE", c.Shipper.State)
	c.Shipper.PostalCode = getEnv("SHIPPER_POSTAL_CODE", c.Shipper.PostalCode)
	c.Shipper.Country = getEnv("SHIPPER_COUNTRY", c.Shipper.Country)
	if c.Shipper.ShipperNumber == "" {
		c.Shipper.ShipperNumber = c.Carrier.AccountNumber
	}
	return nil
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
