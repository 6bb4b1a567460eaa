package nextrush

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGroupPrefixAndMiddlewareScoping(t *testing.T) {
	app := New()

	var trail []string
	app.Use(func(c *Context, next Next) error {
		trail = append(trail, "app")
		return next()
	})

	api := app.Group("/api")
	api.Use(func(c *Context, next Next) error {
		trail = append(trail, "api")
		return next()
	})
	api.GET("/widgets", func(c *Context) error { return c.String("ok") })

	app.GET("/health", func(c *Context) error { return c.String("ok") })

	req := httptest.NewRequest("GET", "/api/widgets", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(trail) != 2 || trail[0] != "app" || trail[1] != "api" {
		t.Fatalf("expected app then api middleware order, got %v", trail)
	}

	trail = nil
	req2 := httptest.NewRequest("GET", "/health", nil)
	rec2 := httptest.NewRecorder()
	app.ServeHTTP(rec2, req2)

	if len(trail) != 1 || trail[0] != "app" {
		t.Fatalf("expected the group middleware to not leak onto routes outside the group, got %v", trail)
	}
}

func TestNestedGroupInheritsParentMiddleware(t *testing.T) {
	app := New()

	var trail []string
	api := app.Group("/api")
	api.Use(func(c *Context, next Next) error {
		trail = append(trail, "api")
		return next()
	})

	v1 := api.Group("/v1")
	v1.Use(func(c *Context, next Next) error {
		trail = append(trail, "v1")
		return next()
	})
	v1.GET("/widgets", func(c *Context) error { return c.String("ok") })

	req := httptest.NewRequest("GET", "/api/v1/widgets", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(trail) != 2 || trail[0] != "api" || trail[1] != "v1" {
		t.Fatalf("expected api then v1 order, got %v", trail)
	}
}
