package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Config selects the deployment and the pipeline database. Credentials and
// replica set options travel in the URI.
type Config struct {
	URI            string        `yaml:"uri" validate:"required"`
	Database       string        `yaml:"database" validate:"required"`
	AppName        string        `yaml:"appName"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	MaxPoolSize    uint64        `yaml:"maxPoolSize"`
}

func DefaultConfig() *Config {
	return &Config{
		URI:            "mongodb://localhost:27017",
		Database:       "shipment_pipeline",
		AppName:        "shipment-pipeline",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    50,
	}
}

// options builds the driver options. Job and row claims are conditional
// updates, so writes must be acknowledged by a majority to stay exclusive
// across a primary failover.
func (c *Config) options() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(c.URI).
		SetRetryWrites(true).
		SetWriteConcern(writeconcern.Majority())
	if c.AppName != "" {
		opts.SetAppName(c.AppName)
	}
	if c.ConnectTimeout > 0 {
		opts.SetConnectTimeout(c.ConnectTimeout).SetServerSelectionTimeout(c.ConnectTimeout)
	}
	if c.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(c.MaxPoolSize)
	}
	return opts
}

// Client is a connected driver client bound to one database
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewClient connects and fails fast when the primary cannot be reached
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	mc, err := mongo.Connect(ctx, config.options())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	c := &Client{client: mc, database: mc.Database(config.Database)}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.HealthCheck(pingCtx); err != nil {
		_ = mc.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return c, nil
}

func (c *Client) Database() *mongo.Database { return c.database }

func (c *Client) Close(ctx context.Context) error { return c.client.Disconnect(ctx) }

// HealthCheck pings the primary; readiness uses it
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}
