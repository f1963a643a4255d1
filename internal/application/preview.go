package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/payload"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/tracing"
)

// Preview rates up to MaxPreviewRows rows without booking them and estimates
// the rest from the average rated cost. A failed row costs nothing and
// carries its error; only an unavailable carrier session fails the preview.
func (e *BatchEngine) Preview(ctx context.Context, job *domain.BatchJob, rows []*domain.BatchRow) (*domain.PreviewStats, error) {
	start := time.Now()
	logger := e.logger.WithJob(job.JobID)
	ctx = logging.ContextWithJobID(ctx, job.JobID)

	if err := e.carrier.EnsureSession(ctx); err != nil {
		logger.WithError(err).Error("Carrier session unavailable, cannot preview")
		return nil, fmt.Errorf("failed to establish carrier session: %w", err)
	}

	limit := min(len(rows), e.config.MaxPreviewRows)
	items := e.prepare(ctx, job, rows[:limit], logger)

	results := make([]domain.PreviewRow, len(items))
	var g errgroup.Group
	g.SetLimit(e.config.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.previewRow(ctx, job, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("preview interrupted: %w", err)
	}

	stats := aggregatePreview(job.JobID, rows, results, e.serviceCodes(job, rows))

	logger.Performance(ctx, "batch_preview", time.Since(start), true, map[string]any{
		"ratedRows":               stats.RatedRows,
		"additionalRows":          stats.AdditionalRows,
		"totalEstimatedCostCents": stats.TotalEstimatedCostCents,
	})
	return stats, nil
}

func (e *BatchEngine) previewRow(ctx context.Context, job *domain.BatchJob, item *workItem) domain.PreviewRow {
	order := item.order
	row := domain.PreviewRow{
		RowNumber:     item.row.RowNumber,
		OrderID:       order.OrderID,
		RecipientName: order.ShipToName,
		CityState:     fmt.Sprintf("%s, %s", order.ShipToCity, order.ShipToState),
		ServiceCode:   item.service,
	}
	if strings.TrimSpace(row.RecipientName) == "" {
		row.RecipientName = fmt.Sprintf("Row %d", item.row.RowNumber)
	}
	if e.builder.Requirements(order, job.Shipper, item.service).IsInternational {
		row.DestinationCountry = strings.ToUpper(strings.TrimSpace(order.ShipToCountry))
	}

	fail := func(err error) domain.PreviewRow {
		row.ErrorCode = domain.ErrorCodeOf(err)
		row.RateError = errorMessage(err)
		return row
	}
	if item.err != nil {
		return fail(item.err)
	}

	req, err := e.builder.BuildRequest(order, job.Shipper, item.service)
	if err != nil {
		return fail(err)
	}

	result, err := tracing.TracedOperation(ctx, "batch.rate_shipment", func(ctx context.Context) (*domain.CarrierResult, error) {
		return e.carrier.RateShipment(ctx, req)
	}, tracing.CarrierSpanAttributes(e.carrier.CarrierCode(), "rate_shipment")...)
	if err != nil {
		return fail(err)
	}

	cost, err := domain.ToCents(result.TotalCharges.MonetaryValue)
	if err != nil {
		return fail(err)
	}
	duties, err := dutiesCents(result.ChargeBreakdown)
	if err != nil {
		return fail(err)
	}
	row.EstimatedCostCents = cost
	row.DutiesTaxesCents = duties
	row.Warnings = result.Warnings
	return row
}

// serviceCodes resolves the service of every row, rated or not, so service
// restrictions see the whole batch
func (e *BatchEngine) serviceCodes(job *domain.BatchJob, rows []*domain.BatchRow) []string {
	seen := make(map[string]bool)
	codes := make([]string, 0)
	for _, row := range rows {
		code := payload.ResolveServiceCode(job.ServiceCode, row.Order)
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

func aggregatePreview(jobID string, rows []*domain.BatchRow, rated []domain.PreviewRow, serviceCodes []string) *domain.PreviewStats {
	stats := &domain.PreviewStats{
		JobID:             jobID,
		TotalRows:         len(rows),
		RatedRows:         len(rated),
		AdditionalRows:    len(rows) - len(rated),
		ServiceCodes:      serviceCodes,
		AllAddressesValid: true,
		Rows:              rated,
	}

	var ratedTotal int64
	for _, r := range rated {
		ratedTotal += r.EstimatedCostCents
		stats.MaxRowCostCents = max(stats.MaxRowCostCents, r.EstimatedCostCents)
		stats.TotalEstimatedDutiesTaxesCents += r.DutiesTaxesCents
		if r.DestinationCountry != "" {
			stats.InternationalRowCount++
		}
		if domain.IsAddressCode(r.ErrorCode) {
			stats.AllAddressesValid = false
		}
		if len(r.Warnings) > 0 {
			stats.HasAddressWarnings = true
		}
	}

	stats.TotalEstimatedCostCents = ratedTotal + estimateRemaining(ratedTotal, len(rated), stats.AdditionalRows)
	return stats
}

// estimateRemaining prices unrated rows at the average rated cost, rounded
// half-up to whole cents
func estimateRemaining(ratedTotal int64, ratedRows, additionalRows int) int64 {
	if additionalRows <= 0 || ratedRows == 0 {
		return 0
	}
	scaled := decimal.NewFromInt(ratedTotal).Mul(decimal.NewFromInt(int64(additionalRows)))
	return scaled.Div(decimal.NewFromInt(int64(ratedRows))).Round(0).IntPart()
}
