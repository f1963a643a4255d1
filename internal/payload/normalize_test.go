package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"(212) 555-0199", "2125550199"},
		{"+52 55 1234 5678", "525512345678"},
		{"555-0100", "5550100"},
		{"12345", ""},
		{"", ""},
		{"1234567890123456789", "123456789012345"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestNormalizePostalCode(t *testing.T) {
	tests := []struct {
		code, country, want string
	}{
		{"94105", "US", "94105"},
		{"941051234", "US", "94105-1234"},
		{" 94105-1234 ", "us", "94105-1234"},
		{"123", "US", "123"},
		{"M5X 1A9", "CA", "M5X 1A9"},
		{"06600", "MX", "06600"},
		{"123456789", "CA", "123456789"},
	}
	for _, tt := range tests {
		t.Run(tt.country+"/"+tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePostalCode(tt.code, tt.country))
		})
	}
}

func TestTruncateAddress(t *testing.T) {
	assert.Equal(t, "100 King St W", TruncateAddress("  100 King St W ", 35))
	assert.Equal(t, "500 Market Street Suite 1200", TruncateAddress("500 Market Street Suite 1200 Building Annex", 35))
	assert.Equal(t, "ABCDEFGHIJ", TruncateAddress("ABCDEFGHIJKLMNOP", 10))
	assert.Equal(t, "", TruncateAddress("", 35))
}
