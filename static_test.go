package nextrush

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestStaticServesFileAndETag(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.txt", "hello world")

	app := New()
	app.Static("/static", dir)

	req := httptest.NewRequest("GET", "/static/hello.txt", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "hello world" {
		t.Fatalf("expected file contents, got %q", rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag header")
	}
}

// TestStaticConditionalGet implements spec section 8's static+304 scenario:
// a second request carrying If-None-Match with the first response's ETag
// must receive 304 with no body.
func TestStaticConditionalGet(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.txt", "hello world")

	app := New()
	app.Static("/static", dir)

	req1 := httptest.NewRequest("GET", "/static/hello.txt", nil)
	rec1 := httptest.NewRecorder()
	app.ServeHTTP(rec1, req1)
	etag := rec1.Header().Get("ETag")

	req2 := httptest.NewRequest("GET", "/static/hello.txt", nil)
	req2.Header.Set("If-None-Match", etag)
	rec2 := httptest.NewRecorder()
	app.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec2.Code)
	}
	if rec2.Body.Len() != 0 {
		t.Fatalf("expected empty body on 304, got %d bytes", rec2.Body.Len())
	}
}

// TestStaticRangeRequest implements spec section 8's Range scenario: a
// request for bytes=0-4 of a known file gets a 206 with just those bytes.
func TestStaticRangeRequest(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.txt", "hello world")

	app := New()
	app.Static("/static", dir)

	req := httptest.NewRequest("GET", "/static/hello.txt", nil)
	req.Header.Set("Range", "bytes=0-4")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("expected 'hello', got %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Range") == "" {
		t.Fatal("expected a Content-Range header")
	}
}

func TestStaticDotfilePolicyDefaultIgnores(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, ".secret", "nope")

	app := New()
	app.Static("/static", dir)

	req := httptest.NewRequest("GET", "/static/.secret", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for ignored dotfile, got %d", rec.Code)
	}
}

func TestStaticDotfilePolicyDeny(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, ".secret", "nope")

	app := New()
	opts := DefaultStaticOptions()
	opts.Dotfiles = "deny"
	app.StaticWithOptions("/static", dir, opts)

	req := httptest.NewRequest("GET", "/static/.secret", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for denied dotfile, got %d", rec.Code)
	}
}

func TestStaticSPAFallback(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "index.html", "<html>app</html>")

	app := New()
	opts := DefaultStaticOptions()
	opts.SPA = "index.html"
	app.StaticWithOptions("/app", dir, opts)

	req := httptest.NewRequest("GET", "/app/some/client/route", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected SPA fallback to 200, got %d", rec.Code)
	}
	if rec.Body.String() != "<html>app</html>" {
		t.Fatalf("expected index.html contents, got %q", rec.Body.String())
	}
}

func TestStaticTraversalRejected(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "hello.txt", "hello world")

	app := New()
	app.Static("/static", dir)

	req := httptest.NewRequest("GET", "/static/../../../../etc/passwd", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatal("expected a traversal attempt to never reach 200")
	}
}

func TestStaticCacheBytesWiredFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaticCacheBytes = 2 << 20
	a := NewWithConfig(cfg)

	a.Static("/static", t.TempDir())

	opts := a.staticOptionsForApp(StaticOptions{})
	if opts.MaxCacheSize != int64(cfg.StaticCacheBytes) {
		t.Fatalf("expected Config.StaticCacheBytes to size a plain Static() mount, got %d want %d", opts.MaxCacheSize, cfg.StaticCacheBytes)
	}

	custom := StaticOptions{MaxCacheSize: 99}
	if got := a.staticOptionsForApp(custom); got.MaxCacheSize != 99 {
		t.Fatalf("expected an explicit MaxCacheSize to win over Config, got %d", got.MaxCacheSize)
	}
}

func TestBuildETagStableAcrossCalls(t *testing.T) {
	mod := time.Unix(1700000000, 0)
	a := buildETag(mod, 123)
	b := buildETag(mod, 123)
	if a != b {
		t.Fatalf("expected buildETag to be deterministic, got %q vs %q", a, b)
	}

	c := buildETag(mod, 124)
	if a == c {
		t.Fatal("expected a different size to produce a different etag")
	}
}
