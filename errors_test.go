package nextrush

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPErrorDefaultMessage(t *testing.T) {
	e := NewHTTPError(KindNotFound, "")
	if e.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", e.Status)
	}
	if e.Message != http.StatusText(http.StatusNotFound) {
		t.Fatalf("expected default status text, got %q", e.Message)
	}
}

func TestHTTPErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := ErrInternal(cause)

	if !errors.Is(e, cause) {
		t.Fatal("expected errors.Is to see through Unwrap to the cause")
	}
}

func TestDefaultErrorHandlerSanitizesBody(t *testing.T) {
	app := New()
	app.GET("/boom", func(c *Context) error {
		return ErrInternal(errors.New("credentials: password=hunter2"))
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got error: %v", err)
	}
	if msg, _ := body["error"].(string); msg == "" || msg == "credentials: password=hunter2" {
		t.Fatalf("expected a sanitized error message, got %q", msg)
	}
}

func TestExceptionFilterTakesPrecedence(t *testing.T) {
	app := New()
	app.Filters = append(app.Filters, ExceptionFilterFunc(func(err error, c *Context) bool {
		werr := c.JSON(map[string]string{"custom": "handled"})
		return werr == nil
	}))

	app.GET("/boom", func(c *Context) error {
		return ErrBadRequest("bad")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected the filter's own 200 JSON response, got %d", rec.Code)
	}
}

func TestMethodNotAllowedIncludesAllowHeader(t *testing.T) {
	allow := ErrMethodNotAllowed("GET, POST")
	if allow.Details["allow"] != "GET, POST" {
		t.Fatalf("expected allow detail, got %v", allow.Details)
	}
}
