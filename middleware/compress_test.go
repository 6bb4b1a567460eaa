package middleware_test

import (
	"compress/gzip"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nextrush/nextrush"
	"github.com/nextrush/nextrush/middleware"
)

func TestCompressGzipsLargeCompressibleBody(t *testing.T) {
	app := nextrush.New()
	cfg := middleware.DefaultCompressConfig()
	cfg.MinLength = 16
	app.Use(middleware.Compress(cfg))

	body := strings.Repeat("hello world ", 100)
	app.GET("/text", func(c *nextrush.Context) error {
		c.Response.Header.Set("Content-Type", "text/plain")
		return c.String(body)
	})

	req := httptest.NewRequest("GET", "/text", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", rec.Header().Get("Content-Encoding"))
	}

	gr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("expected a valid gzip stream: %v", err)
	}
	defer gr.Close()

	decoded, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("failed to decompress: %v", err)
	}
	if string(decoded) != body {
		t.Fatalf("decompressed body mismatch")
	}
}

func TestCompressSkipsBodyBelowThreshold(t *testing.T) {
	app := nextrush.New()
	cfg := middleware.DefaultCompressConfig()
	cfg.MinLength = 4096
	app.Use(middleware.Compress(cfg))

	app.GET("/text", func(c *nextrush.Context) error {
		c.Response.Header.Set("Content-Type", "text/plain")
		return c.String("short")
	})

	req := httptest.NewRequest("GET", "/text", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "" {
		t.Fatalf("expected no encoding below the threshold, got %q", rec.Header().Get("Content-Encoding"))
	}
	if rec.Body.String() != "short" {
		t.Fatalf("expected an uncompressed passthrough body, got %q", rec.Body.String())
	}
}

func TestCompressSkipsNonCompressibleContentType(t *testing.T) {
	app := nextrush.New()
	cfg := middleware.DefaultCompressConfig()
	cfg.MinLength = 4
	app.Use(middleware.Compress(cfg))

	payload := strings.Repeat("x", 1000)
	app.GET("/img", func(c *nextrush.Context) error {
		c.Response.Header.Set("Content-Type", "image/png")
		return c.Response.Blob("image/png", []byte(payload))
	})

	req := httptest.NewRequest("GET", "/img", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "" {
		t.Fatalf("expected no encoding for a non-compressible type, got %q", rec.Header().Get("Content-Encoding"))
	}
	if rec.Body.String() != payload {
		t.Fatal("expected the body to pass through unchanged")
	}
}

func TestCompressPreservesErrorStatusAndBody(t *testing.T) {
	app := nextrush.New()
	app.Use(middleware.Compress(middleware.DefaultCompressConfig()))
	app.GET("/fail", func(c *nextrush.Context) error {
		return nextrush.ErrForbidden("nope")
	})

	req := httptest.NewRequest("GET", "/fail", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != 403 {
		t.Fatalf("expected the real error status to survive Compress, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nope") {
		t.Fatalf("expected the error JSON body to survive Compress, got %q", rec.Body.String())
	}
}

func TestCompressNoAcceptEncodingPassesThrough(t *testing.T) {
	app := nextrush.New()
	app.Use(middleware.Compress(middleware.DefaultCompressConfig()))
	app.GET("/text", func(c *nextrush.Context) error { return c.String("hello") })

	req := httptest.NewRequest("GET", "/text", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "" {
		t.Fatal("expected no Content-Encoding without an Accept-Encoding header")
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("expected uncompressed body, got %q", rec.Body.String())
	}
}
