package application

import (
	"context"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
)

// FuncSink adapts a function to domain.ProgressSink
type FuncSink func(ctx context.Context, event domain.ProgressEvent) error

// OnProgress implements domain.ProgressSink
func (f FuncSink) OnProgress(ctx context.Context, event domain.ProgressEvent) error {
	return f(ctx, event)
}
