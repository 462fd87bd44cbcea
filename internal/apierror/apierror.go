// Package apierror defines the error taxonomy surfaced by the HTTP API.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Kind classifies an API error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindServiceUnavailable
	KindUpstreamTimeout
	KindUpstreamFailure
	KindNotImplemented
)

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return "internal"
	}
}

// Error is an API-facing error with a kind, a short message and optional detail.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of kind with message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// WithDetail returns a copy of e carrying detail.
func (e *Error) WithDetail(detail string) *Error {
	out := *e
	out.Detail = detail
	return &out
}

// Validation reports invalid input.
func Validation(message string) *Error { return New(KindValidation, message) }

// Unauthorized reports a missing or invalid credential.
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Forbidden reports a credential without access.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// NotFound reports a missing resource.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Conflict reports a uniqueness violation.
func Conflict(message string) *Error { return New(KindConflict, message) }

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of kind.
func Is(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Body is the JSON error payload.
type Body struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Respond writes err as JSON and aborts the gin chain. Errors that are not
// *Error become a generic 500 whose detail is only shown in debug mode.
func Respond(c *gin.Context, err error, debug bool) {
	status, body := Render(err, debug)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, body)
}

// Render maps err to a status code and body.
func Render(err error, debug bool) (int, Body) {
	body := Body{Timestamp: time.Now().UTC().Format(time.RFC3339)}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		body.Error = "Internal server error"
		if debug && err != nil {
			body.Detail = err.Error()
		} else {
			body.Detail = "An unexpected error occurred"
		}
		return http.StatusInternalServerError, body
	}

	body.Error = apiErr.Message
	body.Detail = apiErr.Detail
	if apiErr.Kind == KindInternal && !debug {
		body.Detail = "An unexpected error occurred"
	} else if debug && body.Detail == "" && apiErr.Err != nil {
		body.Detail = apiErr.Err.Error()
	}
	return apiErr.Kind.Status(), body
}
