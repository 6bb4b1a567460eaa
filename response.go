package nextrush

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/BurntSushi/toml"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/net/http/httpguts"
	"gopkg.in/yaml.v3"
)

// Response is the per-request view of the outbound HTTP response. It models
// spec section 3's data model directly: a status code, case-insensitive
// headers, a body state, and a monotonic "headers-sent" latch.
type Response struct {
	Status        int
	Header        http.Header
	Body          io.Writer
	ContentLength int64

	// Written is the "headers-sent" latch from spec section 3. The
	// transition false -> true is monotonic and irreversible.
	Written bool

	raw           http.ResponseWriter
	req           *Request
	app           *App
	deferredFuncs []func()
}

// reset re-initializes resp for a new request-response cycle.
func (resp *Response) reset(app *App, raw http.ResponseWriter, req *Request) {
	resp.app = app
	resp.req = req
	resp.Status = http.StatusOK
	resp.ContentLength = -1
	resp.Written = false
	resp.deferredFuncs = resp.deferredFuncs[:0]

	rw := &responseWriter{resp: resp, raw: raw}
	resp.setWriter(rw)
}

// setWriter installs hrw as the underlying `http.ResponseWriter`, refreshing
// the exported `Header`/`Body` aliases. Middleware that needs to intercept
// the byte stream (e.g. compression) should wrap the current writer and call
// this again rather than writing to the raw writer directly.
func (resp *Response) setWriter(hrw http.ResponseWriter) {
	resp.raw = hrw
	resp.Header = hrw.Header()
	resp.Body = hrw
}

// HTTPResponseWriter returns the underlying `http.ResponseWriter`. Used by
// middleware (e.g. the compression middleware) that must wrap the byte
// stream; call `SetHTTPResponseWriter` afterwards.
func (resp *Response) HTTPResponseWriter() http.ResponseWriter {
	return resp.raw
}

// SetHTTPResponseWriter replaces the underlying `http.ResponseWriter`.
func (resp *Response) SetHTTPResponseWriter(hrw http.ResponseWriter) {
	resp.setWriter(hrw)
}

// SetHeader sets the named header's sole value. A fatal error per spec
// section 4.1 ("writing a header after headers-sent is a programmer error")
// is intentionally not raised here: net/http itself silently ignores header
// mutations after WriteHeader, which is observably equivalent and avoids
// panicking inside arbitrary middleware.
func (resp *Response) SetHeader(key, value string) {
	resp.Header.Set(key, value)
}

// SetCookie adds c as a Set-Cookie header.
func (resp *Response) SetCookie(c *http.Cookie) {
	if v := c.String(); v != "" {
		resp.Header.Add("Set-Cookie", v)
	}
}

// Write writes b as the response body, implicitly flushing headers if they
// have not been sent yet (spec section 3: "writing the body before
// headers-sent implicitly flushes headers").
func (resp *Response) Write(b []byte) (int, error) {
	if !resp.Written {
		resp.raw.WriteHeader(resp.Status)
	}
	return resp.Body.Write(b)
}

// WriteStatus sets the status code without writing a body. It is a no-op
// once headers have been sent.
func (resp *Response) WriteStatus(status int) {
	if resp.Written {
		return
	}

	resp.Status = status
	resp.raw.WriteHeader(status)
}

// String writes s as a "text/plain" body.
func (resp *Response) String(s string) error {
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	_, err := resp.Write([]byte(s))
	return err
}

// HTML writes h as a "text/html" body.
func (resp *Response) HTML(h string) error {
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	_, err := resp.Write([]byte(h))
	return err
}

// JSON writes v as an "application/json" body.
func (resp *Response) JSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	resp.Header.Set("Content-Type", "application/json; charset=utf-8")
	_, err = resp.Write(b)
	return err
}

// JSONP writes v as an "application/javascript" body wrapped in the callback
// function name.
func (resp *Response) JSONP(v interface{}, callback string) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	resp.Header.Set("Content-Type", "application/javascript; charset=utf-8")
	_, err = fmt.Fprintf(resp, "%s(%s);", callback, b)
	return err
}

// XML writes v as an "application/xml" body.
func (resp *Response) XML(v interface{}) error {
	b, err := xml.Marshal(v)
	if err != nil {
		return err
	}

	resp.Header.Set("Content-Type", "application/xml; charset=utf-8")
	_, err = resp.Write(append([]byte(xml.Header), b...))
	return err
}

// Msgpack writes v as an "application/msgpack" body.
func (resp *Response) Msgpack(v interface{}) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	resp.Header.Set("Content-Type", "application/msgpack")
	_, err = resp.Write(b)
	return err
}

// TOML writes v as an "application/toml" body.
func (resp *Response) TOML(v interface{}) error {
	buf := bytes.Buffer{}
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}

	resp.Header.Set("Content-Type", "application/toml; charset=utf-8")
	_, err := resp.Write(buf.Bytes())
	return err
}

// YAML writes v as an "application/yaml" body.
func (resp *Response) YAML(v interface{}) error {
	buf := bytes.Buffer{}
	if err := yaml.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}

	resp.Header.Set("Content-Type", "application/yaml; charset=utf-8")
	_, err := resp.Write(buf.Bytes())
	return err
}

// Blob writes b as a body with the given contentType.
func (resp *Response) Blob(contentType string, b []byte) error {
	resp.Header.Set("Content-Type", contentType)
	_, err := resp.Write(b)
	return err
}

// Stream copies r to the response body with the given contentType without
// buffering r first. As with the writers above, ContentLength counts the
// bytes as they are written.
func (resp *Response) Stream(contentType string, r io.Reader) error {
	resp.Header.Set("Content-Type", contentType)
	_, err := io.Copy(resp, r)
	return err
}

// NoContent writes a response with no body, preserving whatever Status was
// already set (default 200, but handlers typically set 204 first).
func (resp *Response) NoContent() error {
	resp.WriteStatus(resp.Status)
	return nil
}

// Redirect writes a redirect to target using resp.Status if it is already a
// redirection status, or http.StatusFound otherwise.
func (resp *Response) Redirect(target string) error {
	if resp.Written {
		return errors.New("nextrush: response already written")
	}

	if resp.Status < http.StatusMultipleChoices || resp.Status >= http.StatusBadRequest {
		resp.Status = http.StatusFound
	}

	http.Redirect(resp.raw, resp.req.Raw, target, resp.Status)
	return nil
}

// Flush flushes any buffered data to the client, if supported by the
// underlying `http.ResponseWriter`.
func (resp *Response) Flush() {
	if f, ok := resp.raw.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack takes over the underlying TCP connection, used by the WebSocket
// subsystem and any handler that needs raw socket access.
func (resp *Response) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := resp.raw.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}

	conn, rw, err := h.Hijack()
	if err != nil {
		return nil, nil, err
	}

	resp.Written = true
	return conn, rw, nil
}

// Defer pushes f onto the stack of functions run after the handler and all
// middleware have returned, in LIFO order. Used by, e.g., the compression
// middleware to flush and close its writer.
func (resp *Response) Defer(f func()) {
	if f != nil {
		resp.deferredFuncs = append(resp.deferredFuncs, f)
	}
}

// runDeferred runs the deferred functions in LIFO order.
func (resp *Response) runDeferred() {
	for i := len(resp.deferredFuncs) - 1; i >= 0; i-- {
		resp.deferredFuncs[i]()
	}
}

// acceptsEncoding reports whether the request's Accept-Encoding header lists
// scheme as a bare token (case-insensitively). q-values are not parsed: an
// entry carrying parameters, such as "gzip;q=0.5", does not match.
func (resp *Response) acceptsEncoding(scheme string) bool {
	return httpguts.HeaderValuesContainsToken(resp.req.Headers["Accept-Encoding"], scheme)
}

// responseWriter ties the `Response` to the underlying `http.ResponseWriter`,
// latching `Written` the first time a byte (or an explicit WriteHeader) goes
// out the door. Modeled on aofei-air's response.go responseWriter.
type responseWriter struct {
	resp *Response
	raw  http.ResponseWriter
}

// Header implements `http.ResponseWriter`.
func (rw *responseWriter) Header() http.Header {
	return rw.raw.Header()
}

// WriteHeader implements `http.ResponseWriter`.
func (rw *responseWriter) WriteHeader(status int) {
	if rw.resp.Written {
		return
	}

	rw.raw.WriteHeader(status)
	rw.resp.Status = status
	rw.resp.ContentLength = 0
	rw.resp.Written = true
}

// Write implements `http.ResponseWriter`.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.resp.Written {
		rw.WriteHeader(rw.resp.Status)
	}

	n, err := rw.raw.Write(b)
	rw.resp.ContentLength += int64(n)
	return n, err
}

// Flush implements `http.Flusher` when the underlying writer supports it.
func (rw *responseWriter) Flush() {
	if f, ok := rw.raw.(http.Flusher); ok {
		f.Flush()
	}
}
