package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
)

func TestBatchEngine_Preview_EstimatesUnratedRows(t *testing.T) {
	f := newEngineFixture(4)
	f.carrier.rateFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		if req.OrderID == "ORD-1" {
			return okResult(req, "15.01"), nil
		}
		return okResult(req, "10.00"), nil
	}

	orders := make([]domain.OrderRecord, 25)
	for i := range orders {
		orders[i] = domesticOrder(i + 1)
	}
	job, rows := f.newJob("JOB-PREVIEW", orders...)

	stats, err := f.engine.Preview(context.Background(), job, rows)
	require.NoError(t, err)

	assert.Equal(t, 25, stats.TotalRows)
	assert.Equal(t, 20, stats.RatedRows)
	assert.Equal(t, 5, stats.AdditionalRows)
	assert.Equal(t, int64(1501), stats.MaxRowCostCents)
	// 20501 rated; 5 more at the 1025.05 average round to 5125
	assert.Equal(t, int64(20501+5125), stats.TotalEstimatedCostCents)
	assert.Equal(t, []string{"03"}, stats.ServiceCodes)
	assert.True(t, stats.AllAddressesValid)
	assert.False(t, stats.HasAddressWarnings)
	require.Len(t, stats.Rows, 20)
	assert.Equal(t, "Customer 1", stats.Rows[0].RecipientName)
	assert.Equal(t, "San Francisco, CA", stats.Rows[0].CityState)

	assert.Zero(t, f.carrier.createdCount(), "preview never books shipments")
	assert.Len(t, f.carrier.rated, 20)
	for _, row := range rows {
		assert.True(t, row.IsPending())
	}
}

func TestBatchEngine_Preview_FlagsAddressProblems(t *testing.T) {
	f := newEngineFixture(2)
	f.commodities.lines["ORD-3"] = shirts("ORD-3")
	f.carrier.rateFn = func(req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
		switch req.OrderID {
		case "ORD-2":
			return nil, domain.NewCarrierError(domain.CodeAddressValidationFailed, "111210", "The requested service is unavailable between the selected locations")
		case "ORD-3":
			result := okResult(req, "41.02")
			result.Warnings = []string{"Ship To address has been changed"}
			result.ChargeBreakdown = &domain.ChargeBreakdown{
				Version:        domain.ChargeBreakdownVersion,
				DutiesAndTaxes: &domain.Charge{MonetaryValue: "6.25", CurrencyCode: "USD"},
			}
			return result, nil
		}
		return okResult(req, "10.00"), nil
	}

	job, rows := f.newJob("JOB-ADDR", domesticOrder(1), domesticOrder(2), canadaOrder(3))
	stats, err := f.engine.Preview(context.Background(), job, rows)
	require.NoError(t, err)

	assert.False(t, stats.AllAddressesValid)
	assert.True(t, stats.HasAddressWarnings)
	assert.Equal(t, 1, stats.InternationalRowCount)
	assert.Equal(t, int64(625), stats.TotalEstimatedDutiesTaxesCents)
	assert.Equal(t, int64(1000+4102), stats.TotalEstimatedCostCents)
	assert.Equal(t, []string{"03", "11"}, stats.ServiceCodes)

	failed := stats.Rows[1]
	assert.Equal(t, domain.CodeAddressValidationFailed, failed.ErrorCode)
	assert.NotEmpty(t, failed.RateError)
	assert.Zero(t, failed.EstimatedCostCents)

	assert.Equal(t, "CA", stats.Rows[2].DestinationCountry)
}

func TestBatchEngine_Preview_ValidationFailureCarriesRateError(t *testing.T) {
	f := newEngineFixture(1)
	order := canadaOrder(1)
	order.ShipToPhone = ""
	f.commodities.lines["ORD-1"] = shirts("ORD-1")

	job, rows := f.newJob("JOB-INVALID", order)
	stats, err := f.engine.Preview(context.Background(), job, rows)
	require.NoError(t, err)

	require.Len(t, stats.Rows, 1)
	assert.Equal(t, domain.CodeMissingInternationalData, stats.Rows[0].ErrorCode)
	assert.Contains(t, stats.Rows[0].RateError, "Recipient phone number")
	assert.Empty(t, f.carrier.rated)
	assert.True(t, stats.AllAddressesValid)
}

func TestBatchEngine_Preview_SessionFailure(t *testing.T) {
	f := newEngineFixture(1)
	f.carrier.sessionErr = domain.NewSessionError("Unable to obtain carrier access token", nil)

	job, rows := f.newJob("JOB-NOSESSION", domesticOrder(1))
	_, err := f.engine.Preview(context.Background(), job, rows)
	require.Error(t, err)
	assert.Equal(t, domain.CodeCarrierSessionUnavailable, domain.ErrorCodeOf(err))
}

func TestEstimateRemaining(t *testing.T) {
	tests := []struct {
		name       string
		ratedTotal int64
		rated      int
		additional int
		want       int64
	}{
		{"no additional rows", 3000, 3, 0, 0},
		{"nothing rated", 0, 0, 5, 0},
		{"exact average", 3000, 3, 2, 2000},
		{"rounds half up", 1001, 2, 1, 501},
		{"repeating average", 1000, 3, 3, 1000},
		{"rounds down below half", 1000, 3, 1, 333},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, estimateRemaining(tt.ratedTotal, tt.rated, tt.additional))
		})
	}
}
