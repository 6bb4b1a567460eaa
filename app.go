package nextrush

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// App is the top-level framework object: route tree, global middleware
// chain, logger, and the HTTP server that drives it all. Grounded on
// teacher air.go's `Air` struct, trimmed of the ACME/HTTP2/PROXY-protocol
// fields this module's non-goals exclude.
type App struct {
	Config Config
	Logger *Logger

	// Filters are tried, in order, before the default error handler when a
	// handler or middleware returns an error (spec section 7).
	Filters []ExceptionFilter

	// ErrorHandler replaces `DefaultErrorHandler` entirely when set.
	ErrorHandler func(err error, c *Context)

	// BodyParser overrides `DefaultBodyParserOptions()` when set (see
	// bodyparser.go).
	BodyParser *BodyParserOptions

	// TrustProxy mirrors Config.TrustProxy; request.go reads it off the
	// App directly rather than through Config so it can be flipped at
	// runtime in tests.
	TrustProxy bool

	router    *Router
	rootChain []Middleware

	// wsOpts holds the WebSocket subsystem's options. Nil until first
	// touched, at which point `wsOptions`/`rooms` fill in the default.
	wsOpts *WSOptions

	roomRegistry *RoomRegistry
	roomsOnce    sync.Once

	server *http.Server

	shutdownMu   sync.Mutex
	shutdownJobs []shutdownJob
}

type shutdownJob struct {
	name string
	fn   func(context.Context) error
}

// New returns an `*App` with `DefaultConfig()`.
func New() *App {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig returns an `*App` configured by cfg.
func NewWithConfig(cfg Config) *App {
	a := &App{
		Config:     cfg,
		TrustProxy: cfg.TrustProxy,
		router:     newRouter(cfg.RouteCacheSize),
		Logger:     NewLogger(nil, cfg.LogFormat),
	}

	a.Logger.JSON = cfg.LogJSON
	if cfg.DebugMode {
		a.Logger.Level = lvlDebug
	} else {
		a.Logger.Level = lvlInfo
	}

	return a
}

// Use appends mw to the app's global middleware chain. Only routes
// registered after the call run with it, matching `Group.Use`.
func (a *App) Use(mw ...Middleware) {
	a.rootChain = append(a.rootChain, mw...)
}

// Group returns a `*Group` rooted at prefix.
func (a *App) Group(prefix string) *Group {
	return &Group{app: a, prefix: joinPrefix("/", prefix)}
}

func (a *App) handle(method, path string, handler Handler) {
	a.router.insert(method, path, handler, nil)
}

// GET registers a GET route.
func (a *App) GET(path string, handler Handler) { a.handle("GET", path, handler) }

// HEAD registers a HEAD route.
func (a *App) HEAD(path string, handler Handler) { a.handle("HEAD", path, handler) }

// POST registers a POST route.
func (a *App) POST(path string, handler Handler) { a.handle("POST", path, handler) }

// PUT registers a PUT route.
func (a *App) PUT(path string, handler Handler) { a.handle("PUT", path, handler) }

// PATCH registers a PATCH route.
func (a *App) PATCH(path string, handler Handler) { a.handle("PATCH", path, handler) }

// DELETE registers a DELETE route.
func (a *App) DELETE(path string, handler Handler) { a.handle("DELETE", path, handler) }

// OPTIONS registers an OPTIONS route.
func (a *App) OPTIONS(path string, handler Handler) { a.handle("OPTIONS", path, handler) }

// Static serves files out of root under prefix. See static.go.
func (a *App) Static(prefix, root string) {
	a.registerStatic(prefix, root, nil)
}

// StaticWithOptions serves files out of root under prefix using opts
// instead of `DefaultStaticOptions()`.
func (a *App) StaticWithOptions(prefix, root string, opts StaticOptions) {
	a.registerStaticWithOptions(prefix, root, opts, nil)
}

// WS registers a WebSocket upgrade route. See websocket.go.
func (a *App) WS(path string, handler WSHandler) {
	a.registerWS(path, handler, nil)
}

// ServeHTTP implements `http.Handler`, dispatching raw through the route
// tree and the app's middleware chain. Matches teacher air.go's
// `ServeHTTP`: resolve a route, build the chain, run it, hand any error to
// the error handler.
func (a *App) ServeHTTP(w http.ResponseWriter, raw *http.Request) {
	c := acquireContext(a, raw, w)
	defer releaseContext(c)

	entry, params, allowed, matched := a.router.lookup(c.Method, c.Path)

	var final Handler

	switch {
	case matched && entry != nil:
		for k, v := range params {
			c.Params[k] = v
		}
		c.chain = append(c.chain, a.rootChain...)
		c.chain = append(c.chain, entry.middleware...)
		final = entry.handler

	case matched && len(allowed) > 0:
		c.chain = append(c.chain, a.rootChain...)
		final = methodNotAllowedHandler(allowed)

	default:
		c.chain = append(c.chain, a.rootChain...)
		final = notFoundHandler
	}

	c.handlers = append(c.handlers, final)
	c.index = -1

	err := c.next()

	if err != nil {
		a.handleError(err, c)
	}

	c.Response.runDeferred()
}

func (a *App) handleError(err error, c *Context) {
	if a.ErrorHandler != nil {
		a.ErrorHandler(err, c)
		return
	}

	DefaultErrorHandler(err, c)
}

func notFoundHandler(c *Context) error {
	return ErrNotFound("")
}

func methodNotAllowedHandler(allowed []string) Handler {
	allow := joinStrings(allowed, ", ")
	return func(c *Context) error {
		return ErrMethodNotAllowed(allow)
	}
}

func joinStrings(s []string, sep string) string {
	out := ""
	for i, v := range s {
		if i > 0 {
			out += sep
		}
		out += v
	}

	return out
}

// ListenAndServe starts the HTTP server on `Config.Address`, blocking until
// it stops (via `Shutdown` or an unrecoverable error).
func (a *App) ListenAndServe() error {
	return a.Listen(a.Config.Address)
}

// Listen starts the HTTP server on addr, blocking until it stops.
func (a *App) Listen(addr string) error {
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a,
		ReadTimeout:  a.Config.ReadTimeout,
		WriteTimeout: a.Config.WriteTimeout,
		IdleTimeout:  a.Config.IdleTimeout,
	}

	a.Logger.Infof("listening on %s", addr)

	err := a.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

// Shutdown gracefully stops the HTTP server: it stops accepting new
// connections, waits for in-flight requests, then runs the registered
// shutdown jobs in the order they were added. Matches teacher air.go's
// `AddShutdownJob`/`RemoveShutdownJob`/graceful-shutdown sequence,
// generalized to also cover the WebSocket room registry's close (see
// room.go).
func (a *App) Shutdown(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	a.shutdownMu.Lock()
	jobs := append([]shutdownJob(nil), a.shutdownJobs...)
	a.shutdownMu.Unlock()

	for _, job := range jobs {
		if err := job.fn(ctx); err != nil {
			a.Logger.Errorf("shutdown job %q: %v", job.name, err)
			return fmt.Errorf("nextrush: shutdown job %q: %w", job.name, err)
		}
	}

	return nil
}

// AddShutdownJob registers fn to run, in registration order, during
// `Shutdown`. name must be unique; a second registration under the same
// name replaces the first.
func (a *App) AddShutdownJob(name string, fn func(context.Context) error) {
	a.shutdownMu.Lock()
	defer a.shutdownMu.Unlock()

	for i, job := range a.shutdownJobs {
		if job.name == name {
			a.shutdownJobs[i].fn = fn
			return
		}
	}

	a.shutdownJobs = append(a.shutdownJobs, shutdownJob{name: name, fn: fn})
}

// RemoveShutdownJob removes the named shutdown job, if present.
func (a *App) RemoveShutdownJob(name string) {
	a.shutdownMu.Lock()
	defer a.shutdownMu.Unlock()

	for i, job := range a.shutdownJobs {
		if job.name == name {
			a.shutdownJobs = append(a.shutdownJobs[:i], a.shutdownJobs[i+1:]...)
			return
		}
	}
}
