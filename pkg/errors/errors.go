// Package errors carries API errors from the application layer to the HTTP
// edge: a stable code, a message and the status to answer with.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnprocessable      = "UNPROCESSABLE"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
)

// AppError is rendered as the body of an error response; Err stays
// server side
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// Wrap keeps err as the cause for logs and errors.Is
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields reports one message per failing request field
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	e := ErrValidation(message)
	e.Details = fields
	return e
}

// ErrBadRequest is for bodies that could not be decoded at all
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

func ErrNotFoundWithID(resource, id string) *AppError {
	return NewAppError(CodeNotFound, resource+" not found", http.StatusNotFound).WithDetail("id", id)
}

// ErrConflict covers state clashes such as executing a job another caller
// has already claimed
func ErrConflict(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// ErrInternal hides the cause from the client; an empty message gets a
// generic one
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(CodeServiceUnavailable, service+" is temporarily unavailable", http.StatusServiceUnavailable)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// TaxonomyCoder is implemented by domain errors that carry a pipeline
// error-taxonomy code (E-xxxx)
type TaxonomyCoder interface {
	TaxonomyCode() string
}

// messageRules classify plain errors by wording, first match wins
var messageRules = []struct {
	fragment string
	build    func(err error) *AppError
}{
	{"not found", func(error) *AppError { return NewAppError(CodeNotFound, "resource not found", http.StatusNotFound) }},
	{"already", func(err error) *AppError { return ErrConflict(err.Error()) }},
	{"invalid", func(err error) *AppError { return ErrValidation(err.Error()) }},
	{"required", func(err error) *AppError { return ErrValidation(err.Error()) }},
}

// MapDomainError turns any error into an AppError. Taxonomy errors become
// 422s with the code in the errorCode detail; deadlines become 504s.
func MapDomainError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	var coded TaxonomyCoder
	if errors.As(err, &coded) {
		return NewAppError(CodeUnprocessable, err.Error(), http.StatusUnprocessableEntity).
			WithDetail("errorCode", coded.TaxonomyCode()).
			Wrap(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAppError(CodeTimeout, "operation timed out", http.StatusGatewayTimeout).Wrap(err)
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		if strings.Contains(msg, rule.fragment) {
			return rule.build(err).Wrap(err)
		}
	}
	return ErrInternal("").Wrap(err)
}
