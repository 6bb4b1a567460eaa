package nextrush

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an `HTTPError` the way spec section 7's error
// taxonomy does: a handful of named conditions, each with a default HTTP
// status, rather than a Go type per condition.
type ErrorKind uint8

// Error kinds, in the order they appear in the taxonomy table.
const (
	KindBadRequest ErrorKind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindMethodNotAllowed
	KindRequestTimeout
	KindPayloadTooLarge
	KindUnsupportedMediaType
	KindRangeNotSatisfiable
	KindTooManyRequests
	KindInternal
	KindNotImplemented
)

// defaultStatus is the default HTTP status for each `ErrorKind`.
var defaultStatus = map[ErrorKind]int{
	KindBadRequest:           http.StatusBadRequest,
	KindUnauthorized:         http.StatusUnauthorized,
	KindForbidden:            http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindMethodNotAllowed:     http.StatusMethodNotAllowed,
	KindRequestTimeout:       http.StatusRequestTimeout,
	KindPayloadTooLarge:      http.StatusRequestEntityTooLarge,
	KindUnsupportedMediaType: http.StatusUnsupportedMediaType,
	KindRangeNotSatisfiable:  http.StatusRequestedRangeNotSatisfiable,
	KindTooManyRequests:      http.StatusTooManyRequests,
	KindInternal:             http.StatusInternalServerError,
	KindNotImplemented:       http.StatusNotImplemented,
}

// HTTPError is a typed error that the outer exception filter (see
// `DefaultErrorHandler`) knows how to convert into an HTTP response. Errors
// that are not an `*HTTPError` are treated as `KindInternal`.
type HTTPError struct {
	Kind    ErrorKind
	Status  int
	Message string

	// Details carries extra structured fields that appear alongside
	// "error" in the JSON error body (e.g. `Allow`, `Retry-After`).
	Details map[string]interface{}

	// Cause is the underlying error, if any. Never sent to the client.
	Cause error
}

// NewHTTPError returns a new `*HTTPError` of the kind with the message. If
// the message is empty, the standard HTTP status text is used.
func NewHTTPError(kind ErrorKind, message string) *HTTPError {
	status := defaultStatus[kind]
	if message == "" {
		message = http.StatusText(status)
	}

	return &HTTPError{Kind: kind, Status: status, Message: message}
}

// Error implements the `error` interface.
func (e *HTTPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("nextrush: %s: %v", e.Message, e.Cause)
	}

	return fmt.Sprintf("nextrush: %s", e.Message)
}

// Unwrap supports `errors.Is`/`errors.As` against the `Cause`.
func (e *HTTPError) Unwrap() error {
	return e.Cause
}

// WithDetails returns a copy of the e with the d merged into its `Details`.
func (e *HTTPError) WithDetails(d map[string]interface{}) *HTTPError {
	ne := *e
	ne.Details = make(map[string]interface{}, len(e.Details)+len(d))
	for k, v := range e.Details {
		ne.Details[k] = v
	}
	for k, v := range d {
		ne.Details[k] = v
	}

	return &ne
}

// Convenience constructors for the taxonomy in spec section 7.

// ErrBadRequest returns a `KindBadRequest` `*HTTPError`.
func ErrBadRequest(message string) *HTTPError { return NewHTTPError(KindBadRequest, message) }

// ErrUnauthorized returns a `KindUnauthorized` `*HTTPError`.
func ErrUnauthorized(message string) *HTTPError { return NewHTTPError(KindUnauthorized, message) }

// ErrForbidden returns a `KindForbidden` `*HTTPError`.
func ErrForbidden(message string) *HTTPError { return NewHTTPError(KindForbidden, message) }

// ErrNotFound returns a `KindNotFound` `*HTTPError`.
func ErrNotFound(message string) *HTTPError { return NewHTTPError(KindNotFound, message) }

// ErrMethodNotAllowed returns a `KindMethodNotAllowed` `*HTTPError` with the
// Allow header value set in `Details["allow"]`.
func ErrMethodNotAllowed(allow string) *HTTPError {
	return NewHTTPError(KindMethodNotAllowed, "").WithDetails(map[string]interface{}{
		"allow": allow,
	})
}

// ErrRequestTimeout returns a `KindRequestTimeout` `*HTTPError`.
func ErrRequestTimeout(message string) *HTTPError {
	return NewHTTPError(KindRequestTimeout, message)
}

// ErrPayloadTooLarge returns a `KindPayloadTooLarge` `*HTTPError`.
func ErrPayloadTooLarge(message string) *HTTPError {
	return NewHTTPError(KindPayloadTooLarge, message)
}

// ErrUnsupportedMediaType returns a `KindUnsupportedMediaType` `*HTTPError`.
func ErrUnsupportedMediaType(message string) *HTTPError {
	return NewHTTPError(KindUnsupportedMediaType, message)
}

// ErrRangeNotSatisfiable returns a `KindRangeNotSatisfiable` `*HTTPError` with
// the total size in `Details["size"]`, used to build `Content-Range: bytes
// */size`.
func ErrRangeNotSatisfiable(size int64) *HTTPError {
	return NewHTTPError(KindRangeNotSatisfiable, "").WithDetails(map[string]interface{}{
		"size": size,
	})
}

// ErrTooManyRequests returns a `KindTooManyRequests` `*HTTPError`, optionally
// carrying a `Retry-After` seconds value in `Details["retry_after"]`.
func ErrTooManyRequests(retryAfter int) *HTTPError {
	e := NewHTTPError(KindTooManyRequests, "")
	if retryAfter > 0 {
		e = e.WithDetails(map[string]interface{}{"retry_after": retryAfter})
	}

	return e
}

// ErrInternal wraps the cause as a `KindInternal` `*HTTPError`. The cause's
// message is never sent to the client.
func ErrInternal(cause error) *HTTPError {
	e := NewHTTPError(KindInternal, "")
	e.Cause = cause

	return e
}

// ErrNotImplemented returns a `KindNotImplemented` `*HTTPError`.
func ErrNotImplemented(message string) *HTTPError {
	return NewHTTPError(KindNotImplemented, message)
}

// ExceptionFilter converts an error raised during the middleware chain into
// an HTTP response. Filters are tried in registration order; the first one
// whose `Catch` returns true is considered to have handled the error.
type ExceptionFilter interface {
	Catch(err error, c *Context) (handled bool)
}

// ExceptionFilterFunc adapts a function to an `ExceptionFilter`.
type ExceptionFilterFunc func(err error, c *Context) bool

// Catch implements `ExceptionFilter`.
func (f ExceptionFilterFunc) Catch(err error, c *Context) bool { return f(err, c) }

// asHTTPError converts any error into an `*HTTPError`, defaulting to
// `KindInternal` the way spec section 4.1 describes: "An unhandled error
// yields 500 with a generic body".
func asHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	return ErrInternal(err)
}

// DefaultErrorHandler is the centralized error handler installed on every
// new `App`. It runs the registered `ExceptionFilter`s in order and falls
// back to a sanitized JSON body for whatever none of them catch.
func DefaultErrorHandler(err error, c *Context) {
	if err == nil {
		return
	}

	for _, f := range c.App.Filters {
		if f.Catch(err, c) {
			return
		}
	}

	he := asHTTPError(err)

	if c.App.Logger != nil {
		fields := map[string]interface{}{
			"request_id": c.RequestID,
			"status":     he.Status,
			"path":       c.Path,
			"method":     c.Method,
		}
		if he.Cause != nil {
			fields["cause"] = he.Cause.Error()
		}
		c.App.Logger.Errorj(fields)
	}

	if c.Response.Written {
		return
	}

	c.Response.Status = he.Status

	for k, v := range he.Details {
		switch k {
		case "allow":
			c.Response.Header.Set("Allow", fmt.Sprint(v))
		case "retry_after":
			c.Response.Header.Set("Retry-After", fmt.Sprint(v))
		case "size":
			c.Response.Header.Set("Content-Range", fmt.Sprintf("bytes */%v", v))
		}
	}

	body := map[string]interface{}{"error": he.Message}
	for k, v := range he.Details {
		body[k] = v
	}

	_ = c.Response.JSON(body)
}
