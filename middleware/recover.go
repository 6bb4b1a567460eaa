package middleware

import (
	"fmt"

	"github.com/nextrush/nextrush"
)

// RecoverConfig configures `Recover`.
type RecoverConfig struct {
	// LogStack, when true, includes the formatted panic value as a
	// "panic" field passed to the app logger. The stack trace itself
	// never reaches the client (spec section 7: "the stack is logged ...
	// never sent to the client").
	LogStack bool
}

// DefaultRecoverConfig returns a configuration that logs the panic value.
func DefaultRecoverConfig() RecoverConfig {
	return RecoverConfig{LogStack: true}
}

// Recover returns a middleware implementing spec section 7's crash
// isolation: "a handler panic/throw must not terminate the server". It
// must be the outermost global middleware to catch panics from everything
// downstream, including other middleware. Grounded on the `recover()` +
// `defer` idiom used by the Watchdog-style `RecoveryMiddleware` found in
// the retrieved corpus (`other_examples/..._internal-api-middleware.go.go`),
// adapted to convert the panic into this module's `*HTTPError` taxonomy
// instead of writing a raw response directly.
func Recover(cfg RecoverConfig) nextrush.Middleware {
	return func(c *nextrush.Context, next nextrush.Next) (err error) {
		defer func() {
			if r := recover(); r != nil {
				if cfg.LogStack && c.App != nil && c.App.Logger != nil {
					c.App.Logger.Errorj(map[string]interface{}{
						"request_id": c.RequestID,
						"path":       c.Path,
						"method":     c.Method,
						"panic":      fmt.Sprint(r),
					})
				}

				if e, ok := r.(error); ok {
					err = nextrush.ErrInternal(e)
				} else {
					err = nextrush.ErrInternal(fmt.Errorf("panic: %v", r))
				}
			}
		}()

		return next()
	}
}
