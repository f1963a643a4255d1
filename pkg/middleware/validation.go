package middleware

import (
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/shipment-pipeline/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var (
	countryCodeRegex = regexp.MustCompile(`^[A-Z]{2}$`)
	serviceCodeRegex = regexp.MustCompile(`^\d{2}$`)
	hsCodeRegex      = regexp.MustCompile(`^\d{6,10}$`)
)

var customValidations = map[string]validator.Func{
	"country_code": func(fl validator.FieldLevel) bool {
		return countryCodeRegex.MatchString(fl.Field().String())
	},
	"service_code": func(fl validator.FieldLevel) bool {
		return serviceCodeRegex.MatchString(fl.Field().String())
	},
	"hs_code": func(fl validator.FieldLevel) bool {
		return hsCodeRegex.MatchString(fl.Field().String())
	},
	"monetary": func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil
	},
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

func register(v *validator.Validate) {
	for tag, fn := range customValidations {
		_ = v.RegisterValidation(tag, fn)
	}
	v.RegisterTagNameFunc(jsonTagName)
}

// InitValidator initializes the singleton validator and registers the same
// custom tags on gin's binding engine.
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		register(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			register(v)
		}
	})
	return validate
}

// ValidationErrorFormatter formats validation errors into a field map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}
	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "country_code":
		return "must be a two-letter uppercase country code"
	case "service_code":
		return "must be a two-digit carrier service code"
	case "hs_code":
		return "must be 6 to 10 digits"
	case "monetary":
		return "must be a decimal amount"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON body into obj and validates it
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if stderrors.As(err, &validationErrors) {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}
