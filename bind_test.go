package nextrush

import (
	"net/http/httptest"
	"strings"
	"testing"
)

type widgetPayload struct {
	Name  string `form:"name"`
	Count int    `form:"count"`
}

func TestBindQueryStringOnGET(t *testing.T) {
	app := New()

	var got widgetPayload
	app.GET("/widgets", func(c *Context) error {
		if err := c.Bind(&got); err != nil {
			return err
		}
		return c.NoContent()
	})

	req := httptest.NewRequest("GET", "/widgets?name=gizmo&count=3", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if got.Name != "gizmo" || got.Count != 3 {
		t.Fatalf("expected {gizmo 3}, got %+v", got)
	}
}

func TestBindJSONBodyOnPOST(t *testing.T) {
	app := New()

	var got widgetPayload
	app.POST("/widgets", func(c *Context) error {
		if err := c.Bind(&got); err != nil {
			return err
		}
		return c.NoContent()
	})

	req := httptest.NewRequest("POST", "/widgets", strings.NewReader(`{"name":"sprocket","count":7}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if got.Name != "sprocket" || got.Count != 7 {
		t.Fatalf("expected {sprocket 7}, got %+v", got)
	}
}

func TestBindFormBodyOnPOST(t *testing.T) {
	app := New()

	var got widgetPayload
	app.POST("/widgets", func(c *Context) error {
		if err := c.Bind(&got); err != nil {
			return err
		}
		return c.NoContent()
	})

	req := httptest.NewRequest("POST", "/widgets", strings.NewReader("name=cog&count=5"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if got.Name != "cog" || got.Count != 5 {
		t.Fatalf("expected {cog 5}, got %+v", got)
	}
}
