package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/nextrush/nextrush"
	"golang.org/x/net/http/httpguts"
)

// CompressConfig configures `Compress`, matching spec section 4.6: select
// brotli or gzip from `Accept-Encoding`, skip below a size threshold or for
// a non-compressible MIME type.
type CompressConfig struct {
	// Level is the gzip compression level (`compress/gzip` constants
	// apply; klauspost/compress/gzip accepts the same range).
	Level int

	// MinLength is the minimum buffered byte count before compression
	// kicks in; shorter bodies are flushed uncompressed, matching spec
	// section 4.6's "skip if response size ... is below threshold".
	MinLength int

	// Skip, when it returns true, bypasses compression entirely for this
	// request (e.g. for Range responses, which must stay byte-addressable).
	Skip func(c *nextrush.Context) bool
}

// DefaultCompressConfig returns a 256-byte threshold at the default gzip
// compression level.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{Level: gzip.DefaultCompression, MinLength: 256}
}

// Compress returns a middleware that negotiates brotli over gzip (per spec
// section 4.4/4.6's stated preference), wraps the response writer, and sets
// `Content-Encoding`/`Vary: Accept-Encoding` once the body is known to cross
// MinLength and have a compressible `Content-Type`. Grounded on teacher
// (deleted) `gases/compress.go`'s gzip-wrapping shape, extended with
// brotli per `firasghr-GoSessionEngine`'s go.mod.
func Compress(cfg CompressConfig) nextrush.Middleware {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 256
	}

	return func(c *nextrush.Context, next nextrush.Next) error {
		if cfg.Skip != nil && cfg.Skip(c) {
			return next()
		}

		accept := c.Request.Headers["Accept-Encoding"]

		var encoding string
		switch {
		case httpguts.HeaderValuesContainsToken(accept, "br"):
			encoding = "br"
		case httpguts.HeaderValuesContainsToken(accept, "gzip"):
			encoding = "gzip"
		default:
			return next()
		}

		cw := &compressWriter{
			ResponseWriter: c.Response.HTTPResponseWriter(),
			encoding:       encoding,
			level:          cfg.Level,
			minLength:      cfg.MinLength,
			status:         http.StatusOK,
		}

		c.Response.SetHTTPResponseWriter(cw)
		c.Response.Defer(func() { cw.Close() })

		return next()
	}
}

var compressibleTypePrefixes = []string{
	"text/", "application/json", "application/javascript", "application/xml",
	"application/toml", "application/yaml", "image/svg+xml",
}

func isCompressibleType(contentType string) bool {
	ct := strings.SplitN(contentType, ";", 2)[0]
	for _, p := range compressibleTypePrefixes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}

// compressWriter buffers the first MinLength bytes of a response so it can
// decide, once it has seen the Content-Type and enough body, whether
// compression is worthwhile; everything after that decision streams
// directly through the chosen encoder (or, if the body never crossed
// MinLength, is flushed uncompressed on Close).
type compressWriter struct {
	http.ResponseWriter

	encoding  string
	level     int
	minLength int

	status        int
	headerWritten bool

	buf     []byte
	started bool
	direct  bool

	gz *gzip.Writer
	br *brotli.Writer
}

func (w *compressWriter) WriteHeader(status int) {
	if w.headerWritten {
		return
	}
	w.status = status
}

func (w *compressWriter) Write(p []byte) (int, error) {
	if w.started {
		return w.encoder().Write(p)
	}

	w.buf = append(w.buf, p...)
	if len(w.buf) < w.minLength {
		return len(p), nil
	}

	if err := w.begin(); err != nil {
		return 0, err
	}

	return len(p), nil
}

// begin decides, based on the buffered prefix and the declared
// Content-Type, whether to start compressing or to fall back to a direct
// (uncompressed) passthrough, then flushes the buffered bytes accordingly.
func (w *compressWriter) begin() error {
	if !isCompressibleType(w.ResponseWriter.Header().Get("Content-Type")) {
		return w.beginDirect()
	}

	w.ResponseWriter.Header().Set("Content-Encoding", w.encoding)
	w.ResponseWriter.Header().Add("Vary", "Accept-Encoding")
	w.ResponseWriter.Header().Del("Content-Length")
	w.flushHeader()

	switch w.encoding {
	case "br":
		w.br = brotli.NewWriterLevel(w.ResponseWriter, brotliLevel(w.level))
	default:
		level := w.level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		gz, err := gzip.NewWriterLevel(w.ResponseWriter, level)
		if err != nil {
			gz, _ = gzip.NewWriterLevel(w.ResponseWriter, gzip.DefaultCompression)
		}
		w.gz = gz
	}

	w.started = true

	_, err := w.encoder().Write(w.buf)
	w.buf = nil
	return err
}

func (w *compressWriter) beginDirect() error {
	w.direct = true
	w.started = true
	w.flushHeader()

	_, err := w.ResponseWriter.Write(w.buf)
	w.buf = nil
	return err
}

func (w *compressWriter) encoder() http.ResponseWriter {
	switch {
	case w.br != nil:
		return brotliResponseWriter{w.ResponseWriter, w.br}
	case w.gz != nil:
		return gzipResponseWriter{w.ResponseWriter, w.gz}
	default:
		return w.ResponseWriter
	}
}

func (w *compressWriter) flushHeader() {
	if w.headerWritten {
		return
	}
	w.headerWritten = true
	w.ResponseWriter.WriteHeader(w.status)
}

// Close flushes and closes the active encoder, or -- if the response never
// crossed MinLength -- writes the still-buffered bytes uncompressed.
func (w *compressWriter) Close() error {
	if !w.started {
		return w.beginDirect()
	}

	if w.br != nil {
		return w.br.Close()
	}
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

func (w *compressWriter) Flush() {
	if w.gz != nil {
		w.gz.Flush()
	}
	if w.br != nil {
		w.br.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// gzipResponseWriter/brotliResponseWriter adapt the respective compressing
// io.Writer to the http.ResponseWriter interface `encoder` returns,
// delegating header access to the underlying raw writer.
type gzipResponseWriter struct {
	http.ResponseWriter
	gz *gzip.Writer
}

func (w gzipResponseWriter) Write(p []byte) (int, error) { return w.gz.Write(p) }

type brotliResponseWriter struct {
	http.ResponseWriter
	br *brotli.Writer
}

func (w brotliResponseWriter) Write(p []byte) (int, error) { return w.br.Write(p) }

func brotliLevel(level int) int {
	if level <= 0 || level > brotli.BestCompression {
		return brotli.DefaultCompression
	}
	return level
}
