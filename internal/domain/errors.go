package domain

import "errors"

// ShippabilityError reports a lane or service combination that cannot ship
type ShippabilityError struct {
	Code   string
	Reason string
}

func (e *ShippabilityError) Error() string {
	return e.Reason
}

// TaxonomyCode returns the compliance error code
func (e *ShippabilityError) TaxonomyCode() string {
	return e.Code
}

// NewShippabilityError builds the error for a not-shippable RequirementSet
func NewShippabilityError(req RequirementSet) *ShippabilityError {
	code := req.NotShippableCode
	if code == "" {
		code = CodeUnsupportedLane
	}
	return &ShippabilityError{Code: code, Reason: req.NotShippableReason}
}

type taxonomyCoder interface {
	TaxonomyCode() string
}

// ErrorCodeOf extracts the compliance code carried by err, falling back to
// the unknown-carrier-error code
func ErrorCodeOf(err error) string {
	var coded taxonomyCoder
	if errors.As(err, &coded) {
		if code := coded.TaxonomyCode(); code != "" {
			return code
		}
	}
	if errors.Is(err, ErrInvalidMonetaryValue) {
		return CodeInvalidDataType
	}
	return CodeCarrierUnknown
}
