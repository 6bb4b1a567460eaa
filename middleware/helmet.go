package middleware

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nextrush/nextrush"
)

// HelmetConfig configures `Helmet`, matching spec section 4.6's fixed
// security-header set.
type HelmetConfig struct {
	// ContentSecurityPolicy maps directive name ("default-src") to its
	// value ("'self'"); empty map omits the header entirely.
	ContentSecurityPolicy map[string]string

	FrameOptions                 string // e.g. "DENY", "SAMEORIGIN"; "" omits the header
	XSSProtection                string // e.g. "1; mode=block"; "" omits the header
	ReferrerPolicy               string // e.g. "no-referrer"; "" omits the header
	DNSPrefetchControl           string // "on" or "off"; "" omits the header
	DownloadOptions              string // typically "noopen"; "" omits the header
	PermittedCrossDomainPolicies string // e.g. "none"; "" omits the header

	HSTSMaxAge            int // seconds; 0 omits Strict-Transport-Security
	HSTSIncludeSubdomains bool
	HSTSPreload           bool

	NoSniff bool

	// HidePoweredBy removes any `X-Powered-By` header a prior middleware or
	// the runtime may have set.
	HidePoweredBy bool
}

// DefaultHelmetConfig returns the conservative defaults spec section 4.6
// lists: nosniff, deny-framing, HSTS for a year, and `X-Powered-By`
// stripped.
func DefaultHelmetConfig() HelmetConfig {
	return HelmetConfig{
		FrameOptions:                 "DENY",
		XSSProtection:                "1; mode=block",
		ReferrerPolicy:               "no-referrer",
		DNSPrefetchControl:           "off",
		DownloadOptions:              "noopen",
		PermittedCrossDomainPolicies: "none",
		HSTSMaxAge:                   31536000,
		HSTSIncludeSubdomains:        true,
		NoSniff:                      true,
		HidePoweredBy:                true,
	}
}

// Helmet returns a middleware that sets the fixed set of security headers
// spec section 4.6 names, each individually toggleable through cfg.
func Helmet(cfg HelmetConfig) nextrush.Middleware {
	csp := buildCSP(cfg.ContentSecurityPolicy)
	hsts := buildHSTS(cfg)

	return func(c *nextrush.Context, next nextrush.Next) error {
		if cfg.NoSniff {
			c.Response.Header.Set("X-Content-Type-Options", "nosniff")
		}
		if cfg.FrameOptions != "" {
			c.Response.Header.Set("X-Frame-Options", cfg.FrameOptions)
		}
		if cfg.XSSProtection != "" {
			c.Response.Header.Set("X-XSS-Protection", cfg.XSSProtection)
		}
		if hsts != "" {
			c.Response.Header.Set("Strict-Transport-Security", hsts)
		}
		if cfg.ReferrerPolicy != "" {
			c.Response.Header.Set("Referrer-Policy", cfg.ReferrerPolicy)
		}
		if cfg.DNSPrefetchControl != "" {
			c.Response.Header.Set("X-DNS-Prefetch-Control", cfg.DNSPrefetchControl)
		}
		if cfg.DownloadOptions != "" {
			c.Response.Header.Set("X-Download-Options", cfg.DownloadOptions)
		}
		if cfg.PermittedCrossDomainPolicies != "" {
			c.Response.Header.Set("X-Permitted-Cross-Domain-Policies", cfg.PermittedCrossDomainPolicies)
		}
		if csp != "" {
			c.Response.Header.Set("Content-Security-Policy", csp)
		}
		if cfg.HidePoweredBy {
			c.Response.Header.Del("X-Powered-By")
		}

		return next()
	}
}

func buildCSP(directives map[string]string) string {
	if len(directives) == 0 {
		return ""
	}

	names := make([]string, 0, len(directives))
	for name := range directives {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+directives[name])
	}

	return strings.Join(parts, "; ")
}

func buildHSTS(cfg HelmetConfig) string {
	if cfg.HSTSMaxAge <= 0 {
		return ""
	}

	v := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
	if cfg.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	if cfg.HSTSPreload {
		v += "; preload"
	}

	return v
}
