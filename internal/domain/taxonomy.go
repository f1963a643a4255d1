package domain

// ErrorCategory groups taxonomy codes for triage
type ErrorCategory string

const (
	CategoryData       ErrorCategory = "data"
	CategoryValidation ErrorCategory = "validation"
	CategoryCarrier    ErrorCategory = "carrier"
	CategorySystem     ErrorCategory = "system"
	CategoryAuth       ErrorCategory = "auth"
)

// Compliance error taxonomy. Validation failures and translated carrier
// failures share this code space so consumers can triage both uniformly.
const (
	CodeInvalidDataType = "E-1003"

	CodeInvalidPostalCode        = "E-2001"
	CodeInvalidStateCode         = "E-2002"
	CodeInvalidPhone             = "E-2003"
	CodeInvalidWeight            = "E-2004"
	CodeAddressTooLong           = "E-2005"
	CodeMissingShipmentFields    = "E-2010"
	CodeMalformedRequest         = "E-2011"
	CodeMissingInternationalData = "E-2013"
	CodeInvalidHSCode            = "E-2014"
	CodeUnsupportedLane          = "E-2015"
	CodeServiceUnavailableLane   = "E-2016"
	CodeCurrencyMismatch         = "E-2017"

	CodeCarrierUnavailable       = "E-3001"
	CodeCarrierRateLimited       = "E-3002"
	CodeAddressValidationFailed  = "E-3003"
	CodeCarrierServiceNotOffered = "E-3004"
	CodeCarrierUnknown           = "E-3005"
	CodeCustomsValidationFailed  = "E-3006"

	// The carrier may have booked the shipment but the response was lost
	CodeCarrierOutcomeUnknown = "E-3011"

	CodeDatabaseError             = "E-4001"
	CodeCarrierSessionUnavailable = "E-4004"

	CodeCarrierAuthFailed   = "E-5001"
	CodeCarrierTokenExpired = "E-5002"
)

// ErrorCodeInfo describes a taxonomy entry
type ErrorCodeInfo struct {
	Code      string        `json:"code"`
	Category  ErrorCategory `json:"category"`
	Title     string        `json:"title"`
	Retryable bool          `json:"retryable"`
}

var errorRegistry = map[string]ErrorCodeInfo{
	CodeInvalidDataType: {CodeInvalidDataType, CategoryData, "Invalid Data Type", false},

	CodeInvalidPostalCode:        {CodeInvalidPostalCode, CategoryValidation, "Invalid ZIP Code", false},
	CodeInvalidStateCode:         {CodeInvalidStateCode, CategoryValidation, "Invalid State Code", false},
	CodeInvalidPhone:             {CodeInvalidPhone, CategoryValidation, "Invalid Phone Number", false},
	CodeInvalidWeight:            {CodeInvalidWeight, CategoryValidation, "Invalid Weight", false},
	CodeAddressTooLong:           {CodeAddressTooLong, CategoryValidation, "Address Too Long", false},
	CodeMissingShipmentFields:    {CodeMissingShipmentFields, CategoryValidation, "Missing Required Shipment Fields", false},
	CodeMalformedRequest:         {CodeMalformedRequest, CategoryValidation, "Malformed Shipment Request", false},
	CodeMissingInternationalData: {CodeMissingInternationalData, CategoryValidation, "Missing International Field", false},
	CodeInvalidHSCode:            {CodeInvalidHSCode, CategoryValidation, "Invalid HS Tariff Code", false},
	CodeUnsupportedLane:          {CodeUnsupportedLane, CategoryValidation, "Unsupported Shipping Lane", false},
	CodeServiceUnavailableLane:   {CodeServiceUnavailableLane, CategoryValidation, "International Service Unavailable", false},
	CodeCurrencyMismatch:         {CodeCurrencyMismatch, CategoryValidation, "Currency Mismatch", false},

	CodeCarrierUnavailable:       {CodeCarrierUnavailable, CategoryCarrier, "Carrier Service Unavailable", true},
	CodeCarrierRateLimited:       {CodeCarrierRateLimited, CategoryCarrier, "Carrier Rate Limit Exceeded", true},
	CodeAddressValidationFailed:  {CodeAddressValidationFailed, CategoryCarrier, "Carrier Address Validation Failed", false},
	CodeCarrierServiceNotOffered: {CodeCarrierServiceNotOffered, CategoryCarrier, "Carrier Service Not Available", false},
	CodeCarrierUnknown:           {CodeCarrierUnknown, CategoryCarrier, "Carrier Unknown Error", false},
	CodeCustomsValidationFailed:  {CodeCustomsValidationFailed, CategoryCarrier, "Customs Validation Failed", false},
	CodeCarrierOutcomeUnknown:    {CodeCarrierOutcomeUnknown, CategoryCarrier, "Carrier Outcome Unknown", false},

	CodeDatabaseError:             {CodeDatabaseError, CategorySystem, "Database Error", true},
	CodeCarrierSessionUnavailable: {CodeCarrierSessionUnavailable, CategorySystem, "Carrier Session Unavailable", false},

	CodeCarrierAuthFailed:   {CodeCarrierAuthFailed, CategoryAuth, "Carrier Authentication Failed", false},
	CodeCarrierTokenExpired: {CodeCarrierTokenExpired, CategoryAuth, "Carrier Token Expired", true},
}

// LookupErrorCode returns the registry entry for code
func LookupErrorCode(code string) (ErrorCodeInfo, bool) {
	info, ok := errorRegistry[code]
	return info, ok
}

// IsRetryableCode reports whether a failure with code may succeed on retry
// without user action.
func IsRetryableCode(code string) bool {
	return errorRegistry[code].Retryable
}

// IsAddressCode reports whether code indicates an address the carrier could
// not validate.
func IsAddressCode(code string) bool {
	return code == CodeInvalidPostalCode || code == CodeAddressValidationFailed
}
