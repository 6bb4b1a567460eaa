package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nextrush/nextrush"
)

// CORSConfig configures `CORS`, matching spec section 4.6's description and
// the "newer, plugin-aware preset" spec section 9 picks as authoritative
// over the legacy global-only one: an explicit origin allow-list or
// predicate rather than a single hardcoded origin.
type CORSConfig struct {
	// AllowOrigins is a literal allow-list. "*" admits any origin. Ignored
	// if AllowOriginFunc is set.
	AllowOrigins []string

	// AllowOriginFunc, when set, decides per-request whether origin is
	// allowed, taking precedence over AllowOrigins.
	AllowOriginFunc func(origin string) bool

	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool

	// MaxAge is the preflight cache duration in seconds; 0 omits the
	// header.
	MaxAge int
}

// DefaultCORSConfig returns a permissive "*" origin configuration covering
// the common HTTP verbs.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		MaxAge:       86400,
	}
}

// CORS returns a middleware implementing spec section 4.6's CORS behavior:
// preflight (`OPTIONS` + `Access-Control-Request-Method`) gets a 204 with
// `Access-Control-Allow-Methods/Headers/Max-Age` (and credentials, if
// configured); simple requests get `Access-Control-Allow-Origin` (plus
// `Vary: Origin` when echoing a specific origin rather than "*").
func CORS(cfg CORSConfig) nextrush.Middleware {
	return func(c *nextrush.Context, next nextrush.Next) error {
		origin := c.Request.Headers.Get("Origin")
		if origin == "" {
			return next()
		}

		allowed, echoOrigin := resolveOrigin(cfg, origin)
		if !allowed {
			return next()
		}

		isPreflight := c.Method == http.MethodOptions &&
			c.Request.Headers.Get("Access-Control-Request-Method") != ""

		if isPreflight {
			writeAllowOrigin(c, echoOrigin, origin)

			if len(cfg.AllowMethods) > 0 {
				c.Response.Header.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
			}

			if len(cfg.AllowHeaders) > 0 {
				c.Response.Header.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
			} else if reqHeaders := c.Request.Headers.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				c.Response.Header.Set("Access-Control-Allow-Headers", reqHeaders)
			}

			if cfg.AllowCredentials {
				c.Response.Header.Set("Access-Control-Allow-Credentials", "true")
			}

			if cfg.MaxAge > 0 {
				c.Response.Header.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}

			c.Response.WriteStatus(http.StatusNoContent)
			return nil
		}

		writeAllowOrigin(c, echoOrigin, origin)

		if len(cfg.ExposeHeaders) > 0 {
			c.Response.Header.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
		}

		if cfg.AllowCredentials {
			c.Response.Header.Set("Access-Control-Allow-Credentials", "true")
		}

		return next()
	}
}

// resolveOrigin decides whether origin is allowed and whether the response
// should echo it back verbatim (echoOrigin=true) versus answer with a bare
// "*" (echoOrigin=false, only possible for the literal-list path).
func resolveOrigin(cfg CORSConfig, origin string) (allowed, echoOrigin bool) {
	if cfg.AllowOriginFunc != nil {
		return cfg.AllowOriginFunc(origin), true
	}

	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			return true, false
		}
		if strings.EqualFold(o, origin) {
			return true, true
		}
	}

	return false, false
}

func writeAllowOrigin(c *nextrush.Context, echoOrigin bool, origin string) {
	if echoOrigin {
		c.Response.Header.Set("Access-Control-Allow-Origin", origin)
		c.Response.Header.Add("Vary", "Origin")
		return
	}

	c.Response.Header.Set("Access-Control-Allow-Origin", "*")
}
