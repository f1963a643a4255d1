// Package testing starts throwaway dependencies for integration suites.
package testing

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	pkgmongo "github.com/wms-platform/shipment-pipeline/pkg/mongodb"
)

const mongoImage = "mongo:6"

// MongoFixture is a disposable MongoDB server plus a pipeline client
// connected to it through the same code path the services use
type MongoFixture struct {
	container *mongodb.MongoDBContainer
	Client    *pkgmongo.Client
}

// StartMongo runs a container and connects to database on it
func StartMongo(ctx context.Context, database string) (*MongoFixture, error) {
	container, err := mongodb.Run(ctx, mongoImage)
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}
	fixture := &MongoFixture{container: container}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = fixture.Close(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	cfg := pkgmongo.DefaultConfig()
	cfg.URI = uri
	cfg.Database = database
	cfg.AppName = "shipment-pipeline-test"
	if fixture.Client, err = pkgmongo.NewClient(ctx, cfg); err != nil {
		_ = fixture.Close(ctx)
		return nil, err
	}
	return fixture, nil
}

// Close disconnects the client and removes the container
func (f *MongoFixture) Close(ctx context.Context) error {
	if f.Client != nil {
		_ = f.Client.Close(ctx)
	}
	if f.container == nil {
		return nil
	}
	return f.container.Terminate(ctx)
}
