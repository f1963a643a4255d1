package kafka

import (
	"time"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers  []string `yaml:"brokers" validate:"required,min=1"`
	ClientID string   `yaml:"clientId"`

	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	RequiredAcks int           `yaml:"requiredAcks" validate:"oneof=-1 0 1"` // 0: none, 1: leader, -1: all replicas
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:      []string{"localhost:9092"},
		ClientID:     "shipment-pipeline",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
	}
}

// Topics contains the pipeline's Kafka topic names
var Topics = struct {
	BatchProgress  string
	BatchLifecycle string
}{
	BatchProgress:  "shipment.batch.progress",
	BatchLifecycle: "shipment.batch.lifecycle",
}
