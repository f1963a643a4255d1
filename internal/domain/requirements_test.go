package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allLanesResolver() *LaneResolver {
	return NewLaneResolver([]string{"US-CA", "US-MX"})
}

func TestResolve_Domestic(t *testing.T) {
	r := allLanesResolver()

	for _, country := range []string{"US", "CA", "MX", "GB", "de"} {
		t.Run(country, func(t *testing.T) {
			req := r.Resolve(country, country, "03")

			assert.True(t, req.Shippable())
			assert.False(t, req.IsInternational)
			assert.False(t, req.RequiresDescription)
			assert.False(t, req.RequiresShipperContact)
			assert.False(t, req.RequiresRecipientContact)
			assert.False(t, req.RequiresInvoiceLineTotal)
			assert.False(t, req.RequiresInternationalForms)
			assert.False(t, req.RequiresCommodities)
			assert.Contains(t, req.SupportedServices, "03")
			assert.Contains(t, req.SupportedServices, "07")
			assert.Equal(t, RuleVersion, req.RuleVersion)
		})
	}
}

func TestResolve_DependentTerritory(t *testing.T) {
	req := allLanesResolver().Resolve("US", "PR", "03")

	assert.True(t, req.Shippable())
	assert.False(t, req.IsInternational)
	assert.True(t, req.RequiresInvoiceLineTotal)
	assert.False(t, req.RequiresCommodities)
	assert.False(t, req.RequiresInternationalForms)
	assert.Equal(t, CurrencyUSD, req.CurrencyCode)
}

func TestResolve_TerritoryToItselfIsNotDomestic(t *testing.T) {
	req := allLanesResolver().Resolve("PR", "pr", "03")

	assert.False(t, req.Shippable())
	assert.True(t, req.IsInternational)
	assert.Equal(t, CodeUnsupportedLane, req.NotShippableCode)
	assert.Contains(t, req.NotShippableReason, "PR to PR")
	assert.False(t, req.RequiresInvoiceLineTotal)
}

func TestResolve_InternationalLanes(t *testing.T) {
	tests := []struct {
		name        string
		destination string
		wantInvoice bool
	}{
		{"canada bills by invoice total", "CA", true},
		{"mexico", "MX", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := allLanesResolver().Resolve(" us ", tt.destination, "11")

			require.True(t, req.Shippable(), req.NotShippableReason)
			assert.True(t, req.IsInternational)
			assert.True(t, req.RequiresDescription)
			assert.True(t, req.RequiresShipperContact)
			assert.True(t, req.RequiresRecipientContact)
			assert.True(t, req.RequiresInternationalForms)
			assert.True(t, req.RequiresCommodities)
			assert.Equal(t, tt.wantInvoice, req.RequiresInvoiceLineTotal)
			assert.Equal(t, "USD", req.CurrencyCode)
			assert.Equal(t, FormTypeCommercialInvoice, req.FormType)
			assert.Equal(t, []string{"07", "08", "11", "54", "65"}, req.SupportedServices)
		})
	}
}

func TestResolve_UnsupportedLane(t *testing.T) {
	req := allLanesResolver().Resolve("US", "GB", "07")

	assert.False(t, req.Shippable())
	assert.True(t, req.IsInternational)
	assert.Contains(t, req.NotShippableReason, "US to GB is not currently supported")
	assert.Contains(t, req.NotShippableReason, "US-CA, US-MX")
	assert.Equal(t, CodeUnsupportedLane, req.NotShippableCode)
}

func TestResolve_MissingCountryIsNotShippable(t *testing.T) {
	r := allLanesResolver()

	assert.False(t, r.Resolve("US", "", "03").Shippable())
	assert.False(t, r.Resolve("", "CA", "07").Shippable())
}

func TestResolve_KillSwitch(t *testing.T) {
	for _, lane := range []string{"US-CA", "US-MX"} {
		t.Run(lane, func(t *testing.T) {
			dest := lane[3:]
			r := NewLaneResolver(nil)

			req := r.Resolve("US", dest, "07")

			assert.False(t, req.Shippable())
			assert.Contains(t, req.NotShippableReason, "disabled")
			assert.Equal(t, CodeUnsupportedLane, req.NotShippableCode)
		})
	}
}

func TestResolve_KillSwitchRunsBeforeServiceCheck(t *testing.T) {
	r := NewLaneResolver([]string{"US-MX"})

	req := r.Resolve("US", "CA", "03")

	assert.Contains(t, req.NotShippableReason, "disabled")
	assert.NotContains(t, req.NotShippableReason, "domestic-only")
}

func TestResolve_EnabledThenDisabled(t *testing.T) {
	r := allLanesResolver()
	require.True(t, r.Resolve("US", "CA", "07").Shippable())

	r.SetEnabledLanes([]string{"US-MX"})

	req := r.Resolve("US", "CA", "07")
	assert.False(t, req.Shippable())
	assert.Contains(t, req.NotShippableReason, "disabled")
	assert.True(t, r.Resolve("US", "MX", "07").Shippable())

	r.SetEnabledLanes(ParseEnabledLanes("us-ca, US-MX"))
	assert.True(t, r.Resolve("US", "CA", "07").Shippable())
	assert.Equal(t, []string{"US-CA", "US-MX"}, r.EnabledLanes())
}

func TestResolve_DomesticOnlyServiceOnInternationalLane(t *testing.T) {
	r := allLanesResolver()

	for code := range DomesticOnlyServices {
		for _, dest := range []string{"CA", "MX"} {
			t.Run(code+"-"+dest, func(t *testing.T) {
				req := r.Resolve("US", dest, code)

				assert.False(t, req.Shippable())
				assert.Contains(t, req.NotShippableReason, "domestic-only")
				assert.Contains(t, req.NotShippableReason, "07, 08, 11, 54, 65")
				assert.Equal(t, CodeServiceUnavailableLane, req.NotShippableCode)
			})
		}
	}
}

func TestResolve_UnknownService(t *testing.T) {
	req := allLanesResolver().Resolve("US", "CA", "99")

	assert.False(t, req.Shippable())
	assert.Contains(t, req.NotShippableReason, "Unknown service code '99'")
}

func TestResolve_ConcurrentWithLaneUpdates(t *testing.T) {
	r := allLanesResolver()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					r.SetEnabledLanes([]string{"US-CA"})
				} else {
					_ = r.Resolve("US", "CA", "07")
				}
			}
		}(i)
	}
	wg.Wait()

	assert.True(t, r.Resolve("US", "CA", "07").Shippable())
}

func TestParseEnabledLanes(t *testing.T) {
	assert.Equal(t, []string{"US-CA", "US-MX"}, ParseEnabledLanes(" us-ca ,US-MX,, "))
	assert.Empty(t, ParseEnabledLanes(""))
}
