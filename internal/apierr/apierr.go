// Package apierr normalizes the heterogeneous failure shapes the backend
// produces into a single taxonomy. The backend wraps errors three ways:
// {detail: "..."}, {detail: {error: {...}}}, and {error: {...}}; transport
// failures carry no response at all. Every classifier here is a pure
// function over the error value and never panics.
package apierr

import (
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"
)

// Code identifies one bucket of the error taxonomy. Values match the
// backend's machine codes so explicit envelope codes pass through intact.
type Code string

const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeServerError        Code = "SERVER_ERROR"
	CodeClientError        Code = "CLIENT_ERROR"
	CodeNetworkError       Code = "NETWORK_ERROR"
	CodeUnknown            Code = "UNKNOWN_ERROR"
)

const (
	genericMessage  = "An unexpected error occurred"
	fallbackMessage = "An unexpected error occurred. Please try again."
)

// errorInfo is the nested machine-readable envelope the backend attaches
// to structured failures.
type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type envelope struct {
	Error   *errorInfo      `json:"error"`
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`

	detailString string
	detailError  *errorInfo
}

func parseEnvelope(body []byte) envelope {
	var env envelope
	if len(body) == 0 {
		return env
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}
	}
	if len(env.Detail) > 0 {
		var s string
		if err := json.Unmarshal(env.Detail, &s); err == nil {
			env.detailString = s
		} else {
			var nested struct {
				Error *errorInfo `json:"error"`
			}
			if err := json.Unmarshal(env.Detail, &nested); err == nil {
				env.detailError = nested.Error
			}
		}
	}
	return env
}

// APIError is a non-2xx backend response. The body is retained verbatim
// so classification can be re-derived at any point in the error chain.
type APIError struct {
	StatusCode int
	Body       []byte

	env envelope
}

// New builds an APIError from a failed response, parsing whichever
// envelope shape the body carries.
func New(statusCode int, body []byte) *APIError {
	return &APIError{StatusCode: statusCode, Body: body, env: parseEnvelope(body)}
}

func (e *APIError) Error() string {
	return "api: status " + strconv.Itoa(e.StatusCode) + ": " + e.message()
}

// message applies the envelope precedence: error.message, detail as a
// string, detail.error.message, then the top-level message field.
func (e *APIError) message() string {
	if e.env.Error != nil && e.env.Error.Message != "" {
		return e.env.Error.Message
	}
	if e.env.detailString != "" {
		return e.env.detailString
	}
	if e.env.detailError != nil && e.env.detailError.Message != "" {
		return e.env.detailError.Message
	}
	if e.env.Message != "" {
		return e.env.Message
	}
	return fallbackMessage
}

func (e *APIError) code() string {
	if e.env.Error != nil && e.env.Error.Code != "" {
		return e.env.Error.Code
	}
	if e.env.detailError != nil && e.env.detailError.Code != "" {
		return e.env.detailError.Code
	}
	return ""
}

func (e *APIError) field() string {
	if e.env.Error != nil && e.env.Error.Field != "" {
		return e.env.Error.Field
	}
	if e.env.detailError != nil && e.env.detailError.Field != "" {
		return e.env.detailError.Field
	}
	return ""
}

// Message extracts a human-readable message from any error. It always
// returns a non-empty string.
func Message(err error) string {
	if err == nil {
		return genericMessage
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.message()
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallbackMessage
}

// FieldOf returns the form-field name a validation error targets, or ""
// when the error is not field-scoped. Callers route field-scoped messages
// to the offending input instead of a global notification.
func FieldOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.field()
	}
	return ""
}

// CodeOf maps any error to the taxonomy. An explicit envelope code wins;
// otherwise the HTTP status decides; transport failures are NetworkError.
func CodeOf(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var ae *APIError
	if errors.As(err, &ae) {
		if c := ae.code(); c != "" {
			return Code(c)
		}
		switch {
		case ae.StatusCode == 401:
			return CodeUnauthorized
		case ae.StatusCode == 403:
			return CodeForbidden
		case ae.StatusCode == 404:
			return CodeNotFound
		case ae.StatusCode == 409:
			return CodeConflict
		case ae.StatusCode == 503:
			return CodeServiceUnavailable
		case ae.StatusCode >= 500:
			return CodeServerError
		case ae.StatusCode >= 400:
			return CodeClientError
		}
		return CodeUnknown
	}
	if IsNetworkError(err) {
		return CodeNetworkError
	}
	return CodeUnknown
}

// networkPatterns covers transport failures that surface as wrapped
// strings rather than typed errors.
var networkPatterns = []string{
	"connection refused",
	"connection reset by peer",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"transport connection broken",
	"server closed idle connection",
	"request canceled while waiting for connection",
}

// IsNetworkError reports whether err is a transport-level failure: there
// is no HTTP response and the error matches a known network shape.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range networkPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// ShouldRetry reports whether re-issuing the failed operation could
// plausibly succeed. Exactly ServiceUnavailable, ServerError and network
// failures qualify.
func ShouldRetry(err error) bool {
	switch CodeOf(err) {
	case CodeServiceUnavailable, CodeServerError, CodeNetworkError:
		return true
	}
	return IsNetworkError(err)
}

// RetryableCode reports whether a code alone marks an error retryable.
func RetryableCode(c Code) bool {
	return c == CodeServiceUnavailable || c == CodeServerError || c == CodeNetworkError
}

// ClassifiedError is the terminal, user-presentable form of a failure.
type ClassifiedError struct {
	Message string
	Code    Code
	Field   string
	Err     error
}

func (c ClassifiedError) Error() string { return c.Message }

func (c ClassifiedError) Unwrap() error { return c.Err }

// UserMessage renders the failure for terminal output, prefixing the
// offending field when the backend scoped the error to one.
func (c ClassifiedError) UserMessage() string {
	if c.Field != "" {
		return c.Field + ": " + c.Message
	}
	return c.Message
}

// Classify derives the full classification in one pass.
func Classify(err error) ClassifiedError {
	return ClassifiedError{
		Message: Message(err),
		Code:    CodeOf(err),
		Field:   FieldOf(err),
		Err:     err,
	}
}
