package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Auto-confirm rule names
const (
	RuleEnabled               = "enabled"
	RuleMaxRows               = "max_rows"
	RuleMaxCostCents          = "max_cost_cents"
	RuleMaxCostPerRowCents    = "max_cost_per_row_cents"
	RuleAllowedServices       = "allowed_services"
	RuleRequireValidAddresses = "require_valid_addresses"
	RuleAllowWarnings         = "allow_warnings"
)

// AutoConfirmRuleSet gates unattended batch execution
type AutoConfirmRuleSet struct {
	Enabled               bool     `json:"enabled" yaml:"enabled"`
	MaxCostCents          int64    `json:"maxCostCents" yaml:"max_cost_cents" validate:"gte=0"`
	MaxRows               int      `json:"maxRows" yaml:"max_rows" validate:"gte=0"`
	MaxCostPerRowCents    int64    `json:"maxCostPerRowCents" yaml:"max_cost_per_row_cents" validate:"gte=0"`
	AllowedServices       []string `json:"allowedServices,omitempty" yaml:"allowed_services"`
	RequireValidAddresses bool     `json:"requireValidAddresses" yaml:"require_valid_addresses"`
	AllowWarnings         bool     `json:"allowWarnings" yaml:"allow_warnings"`
}

// DefaultAutoConfirmRuleSet returns conservative rules with auto-confirm off
func DefaultAutoConfirmRuleSet() AutoConfirmRuleSet {
	return AutoConfirmRuleSet{
		Enabled:               false,
		MaxCostCents:          50000,
		MaxRows:               500,
		MaxCostPerRowCents:    5000,
		RequireValidAddresses: true,
		AllowWarnings:         false,
	}
}

// RuleViolation describes one failed auto-confirm rule
type RuleViolation struct {
	Rule      string `json:"rule"`
	Threshold any    `json:"threshold"`
	Actual    any    `json:"actual"`
	Message   string `json:"message"`
}

// AutoConfirmResult is the outcome of EvaluateAutoConfirm
type AutoConfirmResult struct {
	Approved   bool            `json:"approved"`
	Reason     string          `json:"reason"`
	Violations []RuleViolation `json:"violations"`
}

// FormatCost renders cents as "$12.50"
func FormatCost(cents int64) string {
	return "$" + FromCents(cents)
}

// EvaluateAutoConfirm checks preview statistics against rules. Every
// violated rule is reported; only a disabled rule set stops evaluation early.
func EvaluateAutoConfirm(rules AutoConfirmRuleSet, stats PreviewStats) AutoConfirmResult {
	if !rules.Enabled {
		return AutoConfirmResult{
			Approved: false,
			Reason:   "Auto-confirm is disabled",
			Violations: []RuleViolation{{
				Rule:      RuleEnabled,
				Threshold: true,
				Actual:    false,
				Message:   "Auto-confirm is globally disabled",
			}},
		}
	}

	violations := make([]RuleViolation, 0)

	if stats.TotalRows > rules.MaxRows {
		violations = append(violations, RuleViolation{
			Rule:      RuleMaxRows,
			Threshold: rules.MaxRows,
			Actual:    stats.TotalRows,
			Message:   fmt.Sprintf("Row count %d exceeds limit %d", stats.TotalRows, rules.MaxRows),
		})
	}

	if stats.TotalEstimatedCostCents > rules.MaxCostCents {
		violations = append(violations, RuleViolation{
			Rule:      RuleMaxCostCents,
			Threshold: rules.MaxCostCents,
			Actual:    stats.TotalEstimatedCostCents,
			Message: fmt.Sprintf("Total cost %s exceeds limit %s",
				FormatCost(stats.TotalEstimatedCostCents), FormatCost(rules.MaxCostCents)),
		})
	}

	if stats.MaxRowCostCents > rules.MaxCostPerRowCents {
		violations = append(violations, RuleViolation{
			Rule:      RuleMaxCostPerRowCents,
			Threshold: rules.MaxCostPerRowCents,
			Actual:    stats.MaxRowCostCents,
			Message: fmt.Sprintf("Row cost %s exceeds per-row limit %s",
				FormatCost(stats.MaxRowCostCents), FormatCost(rules.MaxCostPerRowCents)),
		})
	}

	if len(rules.AllowedServices) > 0 {
		allowed := make(map[string]bool, len(rules.AllowedServices))
		for _, code := range rules.AllowedServices {
			allowed[code] = true
		}
		disallowedSet := make(map[string]bool)
		for _, code := range stats.ServiceCodes {
			if !allowed[code] {
				disallowedSet[code] = true
			}
		}
		if len(disallowedSet) > 0 {
			disallowed := sortedKeys(disallowedSet)
			threshold := append([]string(nil), rules.AllowedServices...)
			sort.Strings(threshold)
			violations = append(violations, RuleViolation{
				Rule:      RuleAllowedServices,
				Threshold: threshold,
				Actual:    disallowed,
				Message:   "Disallowed service codes: " + strings.Join(disallowed, ", "),
			})
		}
	}

	if rules.RequireValidAddresses && !stats.AllAddressesValid {
		violations = append(violations, RuleViolation{
			Rule:      RuleRequireValidAddresses,
			Threshold: true,
			Actual:    false,
			Message:   "One or more addresses failed validation",
		})
	}

	if rules.RequireValidAddresses && !rules.AllowWarnings && stats.HasAddressWarnings {
		violations = append(violations, RuleViolation{
			Rule:      RuleAllowWarnings,
			Threshold: false,
			Actual:    true,
			Message:   "Address corrections detected (warnings not allowed)",
		})
	}

	if len(violations) > 0 {
		return AutoConfirmResult{
			Approved:   false,
			Reason:     fmt.Sprintf("%d rule(s) violated", len(violations)),
			Violations: violations,
		}
	}

	return AutoConfirmResult{
		Approved:   true,
		Reason:     "All rules satisfied",
		Violations: violations,
	}
}
