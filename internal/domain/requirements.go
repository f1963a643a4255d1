package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// RuleVersion identifies the compliance rule set encoded by LaneResolver
const RuleVersion = "1.0.0"

// RuleEffectiveDate is the date the current rule version took effect
var RuleEffectiveDate = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	CurrencyUSD               = "USD"
	FormTypeCommercialInvoice = "01"
)

// International service codes accepted on cross-border lanes
var InternationalServices = map[string]bool{
	"07": true, // Worldwide Express
	"08": true, // Worldwide Expedited
	"11": true, // Standard
	"54": true, // Worldwide Express Plus
	"65": true, // Worldwide Saver
}

// Domestic-only service codes, rejected on cross-border lanes
var DomesticOnlyServices = map[string]bool{
	"01": true, // Next Day Air
	"02": true, // 2nd Day Air
	"03": true, // Ground
	"12": true, // 3 Day Select
	"13": true, // Next Day Air Saver
	"14": true, // Next Day Air Early
}

// ServiceNames maps service codes to carrier display names
var ServiceNames = map[string]string{
	"01": "UPS Next Day Air",
	"02": "UPS 2nd Day Air",
	"03": "UPS Ground",
	"07": "UPS Worldwide Express",
	"08": "UPS Worldwide Expedited",
	"11": "UPS Standard",
	"12": "UPS 3 Day Select",
	"13": "UPS Next Day Air Saver",
	"14": "UPS Next Day Air Early",
	"54": "UPS Worldwide Express Plus",
	"65": "UPS Worldwide Saver",
}

// ServiceName returns the display name for code, or the code itself
func ServiceName(code string) string {
	if name, ok := ServiceNames[code]; ok {
		return name
	}
	return code
}

// SupportedLanes are the cross-border lanes with encoded compliance rules
var SupportedLanes = map[string]bool{
	"US-CA": true,
	"US-MX": true,
}

// invoiceTotalLanes are billed by invoice total
var invoiceTotalLanes = map[string]bool{
	"US-CA": true,
	"US-PR": true,
}

// dependentTerritories maps an origin country to territories it serves
// domestically
var dependentTerritories = map[string]map[string]bool{
	"US": {"PR": true},
}

// isDependentTerritory reports whether country is served as a territory of
// another country. Such a country never ships to itself as a domestic lane.
func isDependentTerritory(country string) bool {
	for _, territories := range dependentTerritories {
		if territories[country] {
			return true
		}
	}
	return false
}

// RequirementSet is the set of carrier-mandated sections for one
// (origin, destination, service) combination
type RequirementSet struct {
	IsInternational            bool     `json:"isInternational"`
	RequiresDescription        bool     `json:"requiresDescription"`
	RequiresShipperContact     bool     `json:"requiresShipperContact"`
	RequiresRecipientContact   bool     `json:"requiresRecipientContact"`
	RequiresInvoiceLineTotal   bool     `json:"requiresInvoiceLineTotal"`
	RequiresInternationalForms bool     `json:"requiresInternationalForms"`
	RequiresCommodities        bool     `json:"requiresCommodities"`
	SupportedServices          []string `json:"supportedServices"`
	CurrencyCode               string   `json:"currencyCode,omitempty"`
	FormType                   string   `json:"formType,omitempty"`
	NotShippableReason         string   `json:"notShippableReason,omitempty"`
	NotShippableCode           string   `json:"notShippableCode,omitempty"`
	RuleVersion                string   `json:"ruleVersion"`
	EffectiveDate              string   `json:"effectiveDate"`
}

// Shippable reports whether the lane and service combination may be shipped
func (r RequirementSet) Shippable() bool {
	return r.NotShippableReason == ""
}

// LaneKey returns the canonical "ORIGIN-DEST" key
func LaneKey(origin, destination string) string {
	return origin + "-" + destination
}

// ParseEnabledLanes parses a comma separated lane list such as "US-CA, us-mx"
func ParseEnabledLanes(raw string) []string {
	var lanes []string
	for _, part := range strings.Split(raw, ",") {
		lane := strings.ToUpper(strings.TrimSpace(part))
		if lane != "" {
			lanes = append(lanes, lane)
		}
	}
	return lanes
}

// LaneResolver derives RequirementSets and enforces the international lane
// kill switch. Resolve is safe for concurrent use with SetEnabledLanes.
type LaneResolver struct {
	mu      sync.RWMutex
	enabled map[string]bool
}

// NewLaneResolver creates a resolver with the given enabled lanes
func NewLaneResolver(enabledLanes []string) *LaneResolver {
	r := &LaneResolver{}
	r.SetEnabledLanes(enabledLanes)
	return r
}

// SetEnabledLanes replaces the enabled lane set
func (r *LaneResolver) SetEnabledLanes(lanes []string) {
	enabled := make(map[string]bool, len(lanes))
	for _, lane := range lanes {
		lane = strings.ToUpper(strings.TrimSpace(lane))
		if lane != "" {
			enabled[lane] = true
		}
	}

	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()
}

// EnabledLanes returns the enabled lanes in sorted order
func (r *LaneResolver) EnabledLanes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.enabled)
}

func (r *LaneResolver) laneEnabled(lane string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[lane]
}

// Resolve derives the requirements for shipping serviceCode from origin to
// destination. Unshippable combinations are reported through
// NotShippableReason; Resolve never fails.
func (r *LaneResolver) Resolve(origin, destination, serviceCode string) RequirementSet {
	origin = strings.ToUpper(strings.TrimSpace(origin))
	destination = strings.ToUpper(strings.TrimSpace(destination))
	serviceCode = strings.TrimSpace(serviceCode)

	base := RequirementSet{
		RuleVersion:   RuleVersion,
		EffectiveDate: RuleEffectiveDate.Format("2006-01-02"),
	}

	if origin == "" || destination == "" {
		base.NotShippableReason = "Origin and destination country codes are required to determine shipping requirements."
		base.NotShippableCode = CodeUnsupportedLane
		return base
	}

	lane := LaneKey(origin, destination)

	if dependentTerritories[origin][destination] {
		base.SupportedServices = allServiceCodes()
		base.RequiresInvoiceLineTotal = invoiceTotalLanes[lane]
		if base.RequiresInvoiceLineTotal {
			base.CurrencyCode = CurrencyUSD
		}
		return base
	}

	if origin == destination && !isDependentTerritory(destination) {
		base.SupportedServices = allServiceCodes()
		return base
	}

	base.IsInternational = true

	if !SupportedLanes[lane] {
		base.NotShippableReason = fmt.Sprintf(
			"Shipping lane %s to %s is not currently supported. Supported lanes: %s.",
			origin, destination, strings.Join(sortedKeys(SupportedLanes), ", "),
		)
		base.NotShippableCode = CodeUnsupportedLane
		return base
	}

	if !r.laneEnabled(lane) {
		base.NotShippableReason = fmt.Sprintf(
			"International shipping lane %s is disabled. Set INTERNATIONAL_ENABLED_LANES to include %s to enable.",
			lane, lane,
		)
		base.NotShippableCode = CodeUnsupportedLane
		return base
	}

	international := sortedKeys(InternationalServices)
	base.SupportedServices = international

	if DomesticOnlyServices[serviceCode] {
		base.NotShippableReason = fmt.Sprintf(
			"Service '%s' is domestic-only and cannot be used for %s to %s. Use an international service: %s.",
			serviceCode, origin, destination, strings.Join(international, ", "),
		)
		base.NotShippableCode = CodeServiceUnavailableLane
		return base
	}
	if !InternationalServices[serviceCode] {
		base.NotShippableReason = fmt.Sprintf(
			"Unknown service code '%s'. Supported international services: %s.",
			serviceCode, strings.Join(international, ", "),
		)
		base.NotShippableCode = CodeServiceUnavailableLane
		return base
	}

	base.RequiresDescription = true
	base.RequiresShipperContact = true
	base.RequiresRecipientContact = true
	base.RequiresInternationalForms = true
	base.RequiresCommodities = true
	base.RequiresInvoiceLineTotal = invoiceTotalLanes[lane]
	base.CurrencyCode = CurrencyUSD
	base.FormType = FormTypeCommercialInvoice
	return base
}

func allServiceCodes() []string {
	all := make(map[string]bool, len(InternationalServices)+len(DomesticOnlyServices))
	for code := range InternationalServices {
		all[code] = true
	}
	for code := range DomesticOnlyServices {
		all[code] = true
	}
	return sortedKeys(all)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
