package nextrush

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Request is the per-request view of an inbound HTTP request, carrying both
// the raw `*http.Request` and the derived fields spec section 3 lists:
// method, parsed path, query, headers, remote IP, scheme, host.
type Request struct {
	// Raw is the underlying `*http.Request`. The body has not been
	// consumed until a body parser (see bodyparser.go) or the handler
	// reads from it.
	Raw *http.Request

	Method string
	Path   string

	// Query is the raw multi-valued parsed query string. Spec section 3
	// models the query as a K->V map with last-write-wins semantics for
	// duplicate keys, but `url.Values.Get` returns the *first* value for
	// a repeated key -- use `QueryParam` for last-write-wins lookups;
	// `Query` itself is kept for callers that want every value.
	Query   url.Values
	Headers http.Header

	IP       string
	Secure   bool
	Protocol string
	Hostname string
	Host     string

	app *App
}

// reset re-derives every field of r from raw, so the `Request` can be
// reused across pooled contexts without reallocating.
func (r *Request) reset(app *App, raw *http.Request) {
	r.app = app
	r.Raw = raw
	r.Method = raw.Method
	r.Path = cleanPath(raw.URL.Path)
	r.Query = raw.URL.Query()
	r.Headers = raw.Header

	r.Protocol = "http"
	if raw.TLS != nil {
		r.Protocol = "https"
	}

	r.Host = raw.Host
	r.Hostname = r.Host
	if h, _, err := net.SplitHostPort(r.Host); err == nil {
		r.Hostname = h
	}

	if app != nil && app.TrustProxy {
		if proto := raw.Header.Get("X-Forwarded-Proto"); proto != "" {
			r.Protocol = strings.TrimSpace(strings.Split(proto, ",")[0])
		}
		if host := raw.Header.Get("X-Forwarded-Host"); host != "" {
			r.Host = strings.TrimSpace(strings.Split(host, ",")[0])
			r.Hostname = r.Host
			if h, _, err := net.SplitHostPort(r.Host); err == nil {
				r.Hostname = h
			}
		}
	}

	r.Secure = r.Protocol == "https"
	r.IP = r.remoteIP(raw)
}

// remoteIP resolves the client IP, honoring X-Forwarded-For/X-Real-IP when
// `App.TrustProxy` is set (see spec section 6's configuration table).
func (r *Request) remoteIP(raw *http.Request) string {
	if r.app != nil && r.app.TrustProxy {
		if xff := raw.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
		if xri := raw.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(raw.RemoteAddr)
	if err != nil {
		return raw.RemoteAddr
	}

	return host
}

// Origin returns the scheme://host of the request.
func (r *Request) Origin() string {
	return r.Protocol + "://" + r.Host
}

// Href returns the full URL of the request as observed by the server
// (scheme, host, path and query).
func (r *Request) Href() string {
	return r.Origin() + r.Raw.URL.RequestURI()
}

// Search returns the raw query string, including the leading "?" when
// non-empty.
func (r *Request) Search() string {
	if r.Raw.URL.RawQuery == "" {
		return ""
	}

	return "?" + r.Raw.URL.RawQuery
}

// QueryParam returns the named query parameter under spec section 3's
// last-write-wins duplicate-key semantics -- the *last* occurrence, unlike
// `Query.Get`'s first-occurrence behavior. `bind.go`'s `flattenQuery`
// applies the same rule for the `Bind()` path.
func (r *Request) QueryParam(name string) string {
	vals := r.Query[name]
	if len(vals) == 0 {
		return ""
	}

	return vals[len(vals)-1]
}

// Header returns the first value of the named header, matching the
// case-insensitive, multi-valued semantics of spec section 3.
func (r *Request) Header(name string) string {
	return r.Headers.Get(name)
}

// Cookie returns the named cookie, or an error if it is not present.
func (r *Request) Cookie(name string) (*http.Cookie, error) {
	return r.Raw.Cookie(name)
}

// Cookies returns all cookies sent with the request.
func (r *Request) Cookies() []*http.Cookie {
	return r.Raw.Cookies()
}

// cleanPath makes p non-empty and rooted at "/". Trailing slashes are kept
// here; the router's `splitSegments` drops empty segments, which is what
// makes "/a/b/" and "/a/b" match the same route.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}

	if p[0] != '/' {
		p = "/" + p
	}

	return p
}
