package nextrush

import (
	"net/http/httptest"
	"testing"
)

func TestRequestQueryParamLastWriteWins(t *testing.T) {
	raw := httptest.NewRequest("GET", "/?tag=a&tag=b&tag=c", nil)

	r := &Request{}
	r.reset(nil, raw)

	if got := r.Query.Get("tag"); got != "a" {
		t.Fatalf("expected url.Values.Get to keep returning the first value, got %q", got)
	}

	if got := r.QueryParam("tag"); got != "c" {
		t.Fatalf("expected QueryParam to return the last value, got %q", got)
	}
}

func TestRequestQueryParamMissingKey(t *testing.T) {
	raw := httptest.NewRequest("GET", "/", nil)

	r := &Request{}
	r.reset(nil, raw)

	if got := r.QueryParam("missing"); got != "" {
		t.Fatalf("expected empty string for a missing key, got %q", got)
	}
}
