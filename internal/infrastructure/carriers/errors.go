package carriers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
)

// upsCodeMap maps UPS error codes to the compliance taxonomy
var upsCodeMap = map[string]string{
	"111030":              domain.CodeCarrierServiceNotOffered,
	"111050":              domain.CodeCarrierServiceNotOffered,
	"111057":              domain.CodeCarrierServiceNotOffered,
	"111210":              domain.CodeCarrierServiceNotOffered,
	"120500":              domain.CodeInvalidWeight,
	"120501":              domain.CodeInvalidWeight,
	"120502":              domain.CodeInvalidWeight,
	"250001":              domain.CodeCarrierAuthFailed,
	"250002":              domain.CodeCarrierAuthFailed,
	"250003":              domain.CodeCarrierTokenExpired,
	"190001":              domain.CodeCarrierUnavailable,
	"190002":              domain.CodeCarrierUnavailable,
	"190100":              domain.CodeCarrierRateLimited,
	"INCOMPLETE_SHIPMENT": domain.CodeMissingShipmentFields,
	"MALFORMED_REQUEST":   domain.CodeMalformedRequest,
}

// upsMessagePatterns are checked in order against the lowercased message
var upsMessagePatterns = []struct {
	pattern string
	code    string
}{
	{"invalid zip", domain.CodeInvalidPostalCode},
	{"invalid postal", domain.CodeInvalidPostalCode},
	{"postal code is invalid", domain.CodeInvalidPostalCode},
	{"address not found", domain.CodeAddressValidationFailed},
	{"address validation", domain.CodeAddressValidationFailed},
	{"service unavailable", domain.CodeCarrierUnavailable},
	{"temporarily unavailable", domain.CodeCarrierUnavailable},
	{"rate limit", domain.CodeCarrierRateLimited},
	{"too many requests", domain.CodeCarrierRateLimited},
	{"unauthorized", domain.CodeCarrierAuthFailed},
	{"invalid credentials", domain.CodeCarrierAuthFailed},
	{"token expired", domain.CodeCarrierTokenExpired},
	{"customs", domain.CodeCustomsValidationFailed},
	{"harmonized", domain.CodeCustomsValidationFailed},
}

// TranslateUPSError maps a UPS error code and message onto the compliance
// taxonomy: exact codes first, then the 1201xx address family, then message
// patterns, falling back to the unknown-carrier-error code.
func TranslateUPSError(code, message string) *domain.CarrierError {
	code = strings.TrimSpace(code)
	return domain.NewCarrierError(classifyUPSError(code, message), code, message)
}

func classifyUPSError(code, message string) string {
	if mapped, ok := upsCodeMap[code]; ok {
		return mapped
	}
	if strings.HasPrefix(code, "1201") && len(code) == 6 {
		return domain.CodeAddressValidationFailed
	}

	lower := strings.ToLower(message)
	for _, p := range upsMessagePatterns {
		if strings.Contains(lower, p.pattern) {
			return p.code
		}
	}
	return domain.CodeCarrierUnknown
}

// translateHTTPError classifies a non-2xx carrier response. The body decides
// when it names a known failure; otherwise the status code does.
func translateHTTPError(status int, body []byte) *domain.CarrierError {
	code, message := ExtractUPSError(body)
	cerr := TranslateUPSError(code, message)
	if cerr.Message == "" {
		cerr.Message = http.StatusText(status)
	}
	if cerr.Code != domain.CodeCarrierUnknown {
		return cerr
	}

	switch {
	case status == http.StatusUnauthorized:
		cerr.Code = domain.CodeCarrierTokenExpired
	case status == http.StatusForbidden:
		cerr.Code = domain.CodeCarrierAuthFailed
	case status == http.StatusTooManyRequests:
		cerr.Code = domain.CodeCarrierRateLimited
	case status >= http.StatusInternalServerError:
		cerr.Code = domain.CodeCarrierUnavailable
	}
	cerr.Retryable = domain.IsRetryableCode(cerr.Code)
	return cerr
}

type upsErrorEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type upsErrorBody struct {
	Errors   []upsErrorEntry `json:"errors"`
	Response *struct {
		Errors []upsErrorEntry `json:"errors"`
	} `json:"response"`
	Fault *struct {
		Detail struct {
			Errors struct {
				ErrorDetail struct {
					PrimaryErrorCode struct {
						Code        string `json:"Code"`
						Description string `json:"Description"`
					} `json:"PrimaryErrorCode"`
				} `json:"ErrorDetail"`
			} `json:"Errors"`
		} `json:"detail"`
	} `json:"Fault"`
}

// ExtractUPSError pulls the first error code and message out of the UPS
// error envelopes: {"errors":[...]}, {"response":{"errors":[...]}} and the
// legacy SOAP-style Fault document.
func ExtractUPSError(body []byte) (code, message string) {
	var parsed upsErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", strings.TrimSpace(string(body))
	}

	if len(parsed.Errors) > 0 {
		return parsed.Errors[0].Code, parsed.Errors[0].Message
	}
	if parsed.Response != nil && len(parsed.Response.Errors) > 0 {
		return parsed.Response.Errors[0].Code, parsed.Response.Errors[0].Message
	}
	if parsed.Fault != nil {
		primary := parsed.Fault.Detail.Errors.ErrorDetail.PrimaryErrorCode
		return primary.Code, primary.Description
	}
	return "", ""
}
