package nextrush

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Next invokes the remainder of the middleware chain. Calling it more than
// once per middleware invocation is a programmer error (spec section 4.1)
// and is reported as a `KindInternal` `*HTTPError` rather than silently
// ignored or allowed to re-run the chain.
type Next func() error

// Handler handles a matched request. Returning a non-nil error hands it to
// the app's `ExceptionFilter`s / `DefaultErrorHandler`.
type Handler func(c *Context) error

// Middleware wraps the chain with cross-cutting behavior. It decides
// whether, when, and how many times to call `next` -- though calling it more
// than once is rejected, see `Next`.
type Middleware func(c *Context, next Next) error

// Context is the per-request object passed to every `Handler` and
// `Middleware`. It is pooled: fields are reset between requests rather than
// reallocated, following aofei-air's contextPool idiom.
type Context struct {
	App      *App
	Request  *Request
	Response *Response

	// ctx is the context.Context backing Deadline/Done/Value. It is
	// derived from the inbound `*http.Request`'s context and may be
	// replaced by `WithContext`.
	ctx context.Context

	// Params holds the named path parameters captured by the router
	// (":name" segments) plus the "*" key for a trailing wildcard
	// capture, if the matched route had one.
	Params map[string]string

	// State is a free-form per-request bag for passing values between
	// middleware and handlers (e.g. an authenticated user record).
	State map[string]interface{}

	RequestID string
	Path      string
	Method    string

	bodyParsed bool
	parsedBody *ParsedBody
	bodyErr    error

	handlers []Handler
	chain    []Middleware
	index    int
}

var contextPool = sync.Pool{New: func() interface{} { return &Context{} }}

// acquireContext retrieves a `Context` from the pool and resets it for raw
// served under app.
func acquireContext(app *App, raw *http.Request, rw http.ResponseWriter) *Context {
	c := contextPool.Get().(*Context)

	if c.Request == nil {
		c.Request = &Request{}
	}
	if c.Response == nil {
		c.Response = &Response{}
	}

	c.App = app
	c.Request.reset(app, raw)
	c.Response.reset(app, rw, c.Request)
	c.ctx = raw.Context()

	if c.Params == nil {
		c.Params = make(map[string]string, 8)
	} else {
		for k := range c.Params {
			delete(c.Params, k)
		}
	}

	if c.State == nil {
		c.State = make(map[string]interface{}, 4)
	} else {
		for k := range c.State {
			delete(c.State, k)
		}
	}

	c.Path = c.Request.Path
	c.Method = c.Request.Method
	c.RequestID = ""
	c.handlers = c.handlers[:0]
	c.chain = c.chain[:0]
	c.index = -1
	c.bodyParsed = false
	c.parsedBody = nil
	c.bodyErr = nil

	return c
}

// release returns c to the pool. Callers must not touch c afterwards.
func releaseContext(c *Context) {
	c.App = nil
	contextPool.Put(c)
}

// Deadline, Done, Err and Value implement `context.Context`, delegating to
// the inbound request's context so a `*Context` can be passed directly to
// APIs that expect one (database calls, outbound HTTP, etc).
func (c *Context) Deadline() (deadline time.Time, ok bool) { return c.ctx.Deadline() }
func (c *Context) Done() <-chan struct{}                   { return c.ctx.Done() }
func (c *Context) Err() error                              { return c.ctx.Err() }
func (c *Context) Value(key interface{}) interface{}       { return c.ctx.Value(key) }

// WithContext replaces the `context.Context` backing Deadline/Done/Value,
// e.g. after deriving one with `context.WithTimeout`.
func (c *Context) WithContext(ctx context.Context) {
	c.ctx = ctx
}

// Param returns the named path parameter, or "" if absent.
func (c *Context) Param(name string) string {
	return c.Params[name]
}

// Get returns the named state value and whether it was present.
func (c *Context) Get(key string) (interface{}, bool) {
	v, ok := c.State[key]
	return v, ok
}

// Set stores value under key in the per-request state bag.
func (c *Context) Set(key string, value interface{}) {
	c.State[key] = value
}

// next advances the chain by one step: it runs the next middleware, handing
// it a `Next` closure that rejects a second call, and runs the final handler
// once every middleware has been entered. It is the single source of truth
// for chain advancement.
func (c *Context) next() error {
	c.index++

	if c.index < len(c.chain) {
		mw := c.chain[c.index]
		called := false

		err := mw(c, func() error {
			if called {
				return NewHTTPError(KindInternal, "next called multiple times")
			}
			called = true
			return c.next()
		})

		return err
	}

	if c.index == len(c.chain) && len(c.handlers) > 0 {
		return c.handlers[0](c)
	}

	return nil
}

// JSON is a thin forwarding convenience so handlers can write
// `return c.JSON(v)` instead of `return c.Response.JSON(v)`.
func (c *Context) JSON(v interface{}) error { return c.Response.JSON(v) }

// String forwards to `Response.String`.
func (c *Context) String(s string) error { return c.Response.String(s) }

// HTML forwards to `Response.HTML`.
func (c *Context) HTML(h string) error { return c.Response.HTML(h) }

// NoContent forwards to `Response.NoContent`.
func (c *Context) NoContent() error { return c.Response.NoContent() }

// StatusCode sets the response status and returns c for chaining, e.g.
// `return c.StatusCode(http.StatusCreated).JSON(v)`.
func (c *Context) StatusCode(status int) *Context {
	c.Response.Status = status
	return c
}
