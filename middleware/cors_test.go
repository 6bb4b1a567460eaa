package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextrush/nextrush"
	"github.com/nextrush/nextrush/middleware"
)

func TestCORSPreflightResponds204WithHeaders(t *testing.T) {
	app := nextrush.New()
	app.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	app.GET("/widgets", func(c *nextrush.Context) error { return c.String("ok") })

	req := httptest.NewRequest("OPTIONS", "/widgets", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard allow-origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("expected Allow-Methods to be set on a preflight response")
	}
}

func TestCORSSimpleRequestEchoesConfiguredOrigin(t *testing.T) {
	app := nextrush.New()
	cfg := middleware.DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://trusted.example"}
	app.Use(middleware.CORS(cfg))
	app.GET("/widgets", func(c *nextrush.Context) error { return c.String("ok") })

	req := httptest.NewRequest("GET", "/widgets", nil)
	req.Header.Set("Origin", "https://trusted.example")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://trusted.example" {
		t.Fatalf("expected the specific origin to be echoed, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin when echoing a specific origin, got %q", rec.Header().Get("Vary"))
	}
}

func TestCORSRejectsDisallowedOrigin(t *testing.T) {
	app := nextrush.New()
	cfg := middleware.DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://trusted.example"}
	app.Use(middleware.CORS(cfg))
	app.GET("/widgets", func(c *nextrush.Context) error { return c.String("ok") })

	req := httptest.NewRequest("GET", "/widgets", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected no allow-origin header for a disallowed origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
