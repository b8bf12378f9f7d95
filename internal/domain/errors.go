package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: msg}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: msg}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: http.StatusConflict, Message: msg}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg}
}

func ErrTooManyRequests(msg string) *AppError {
	return &AppError{Code: http.StatusTooManyRequests, Message: msg}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// ErrorKind classifies failures coming from the payment and AI vendors.
type ErrorKind string

const (
	KindConfig           ErrorKind = "config"
	KindAuth             ErrorKind = "auth"
	KindTransport        ErrorKind = "transport"
	KindVendor           ErrorKind = "vendor"
	KindPlanNotFound     ErrorKind = "plan_not_found"
	KindEmptyResponse    ErrorKind = "empty_response"
	KindNoMedia          ErrorKind = "no_media"
	KindValidation       ErrorKind = "validation"
	KindInvalidAPIKey    ErrorKind = "invalid_api_key"
	KindAPINotEnabled    ErrorKind = "api_not_enabled"
	KindBillingDisabled  ErrorKind = "billing_disabled"
	KindMalformedRequest ErrorKind = "malformed_request"
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindSafetyBlocked    ErrorKind = "safety_blocked"
	KindUnknownVendor    ErrorKind = "unknown_vendor"
)

// VendorError is the typed failure returned by every flow that talks to a vendor.
// Message is safe to show to the end user.
type VendorError struct {
	Kind       ErrorKind `json:"kind"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"error"`
	ConsoleURL string    `json:"consoleUrl,omitempty"`
	Err        error     `json:"-"`
}

func (e *VendorError) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VendorError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-invoking the same request might succeed.
func (e *VendorError) Retryable() bool {
	return e.Kind == KindTransport
}

// HTTPStatus maps the kind onto the status code handlers respond with.
func (e *VendorError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPlanNotFound:
		return http.StatusNotFound
	case KindConfig, KindInvalidAPIKey, KindAPINotEnabled, KindBillingDisabled:
		return http.StatusServiceUnavailable
	case KindVendor, KindMalformedRequest, KindSafetyBlocked:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// AsVendorError attempts to extract a VendorError from an error chain.
func AsVendorError(err error) (*VendorError, bool) {
	var vErr *VendorError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}

// IsKind reports whether err carries a VendorError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	vErr, ok := AsVendorError(err)
	return ok && vErr.Kind == kind
}

func ConfigError(msg string) *VendorError {
	return &VendorError{Kind: KindConfig, Message: msg}
}

func AuthError(msg string, err error) *VendorError {
	return &VendorError{Kind: KindAuth, Message: msg, Err: err}
}

func TransportError(msg string, err error) *VendorError {
	return &VendorError{Kind: KindTransport, Message: msg, Err: err}
}

func BusinessError(code, msg string) *VendorError {
	return &VendorError{Kind: KindVendor, Code: code, Message: msg}
}

func PlanNotFoundError(planID string) *VendorError {
	return &VendorError{Kind: KindPlanNotFound, Code: "PLAN_NOT_FOUND", Message: fmt.Sprintf("plan %q does not exist", planID)}
}

func EmptyResponseError(msg string) *VendorError {
	return &VendorError{Kind: KindEmptyResponse, Message: msg}
}

func NoMediaInResponseError() *VendorError {
	return &VendorError{Kind: KindNoMedia, Message: "the generation finished but returned no media"}
}

func ValidationError(msg string) *VendorError {
	return &VendorError{Kind: KindValidation, Message: msg}
}

var placeholderMarkers = []string{"your_", "your-", "placeholder", "changeme", "change_me", "replace"}

// IsPlaceholderCredential reports whether a configured secret is absent or an obvious sample value.
func IsPlaceholderCredential(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return true
	}
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		return true
	}
	if strings.Trim(v, "x") == "" {
		return true
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}
