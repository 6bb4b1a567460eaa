package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextrush/nextrush"
	"github.com/nextrush/nextrush/middleware"
)

func TestRecoverConvertsPanicTo500(t *testing.T) {
	app := nextrush.New()
	app.Use(middleware.Recover(middleware.DefaultRecoverConfig()))
	app.GET("/boom", func(c *nextrush.Context) error {
		panic("something went wrong")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	rec := httptest.NewRecorder()

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("expected the middleware to absorb the panic, but it propagated: %v", r)
			}
		}()
		app.ServeHTTP(rec, req)
	}()

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRecoverLeavesNormalResponsesAlone(t *testing.T) {
	app := nextrush.New()
	app.Use(middleware.Recover(middleware.DefaultRecoverConfig()))
	app.GET("/ping", func(c *nextrush.Context) error { return c.String("pong") })

	req := httptest.NewRequest("GET", "/ping", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("expected an untouched 200/pong response, got %d/%q", rec.Code, rec.Body.String())
	}
}
