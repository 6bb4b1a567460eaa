package middleware

import (
	"github.com/google/uuid"
	"github.com/nextrush/nextrush"
)

// RequestIDConfig configures `RequestID`, matching spec section 4.6: a
// configurable header name, a pluggable generator, and an "echo-only" mode
// that never manufactures an id.
type RequestIDConfig struct {
	// Header is the request/response header carrying the id. Defaults to
	// "X-Request-ID".
	Header string

	// Generator produces a new id when the incoming request has none.
	// Defaults to a UUIDv4 via `github.com/google/uuid`.
	Generator func() string

	// EchoOnly disables generation: if the header is absent, `c.RequestID`
	// stays empty and the response header is not set.
	EchoOnly bool
}

// DefaultRequestIDConfig returns the "X-Request-ID" / UUIDv4 configuration.
func DefaultRequestIDConfig() RequestIDConfig {
	return RequestIDConfig{
		Header:    "X-Request-ID",
		Generator: func() string { return uuid.NewString() },
	}
}

// RequestID returns a middleware that reads cfg.Header from the incoming
// request, generating a fresh id when absent (unless EchoOnly), and sets
// `c.RequestID` plus the response header so downstream middleware, handlers
// and the logger can all correlate on it (spec section 4.6).
func RequestID(cfg RequestIDConfig) nextrush.Middleware {
	if cfg.Header == "" {
		cfg.Header = "X-Request-ID"
	}
	if cfg.Generator == nil {
		cfg.Generator = func() string { return uuid.NewString() }
	}

	return func(c *nextrush.Context, next nextrush.Next) error {
		id := c.Request.Headers.Get(cfg.Header)

		if id == "" && !cfg.EchoOnly {
			id = cfg.Generator()
		}

		if id != "" {
			c.RequestID = id
			c.Response.Header.Set(cfg.Header, id)
		}

		return next()
	}
}
