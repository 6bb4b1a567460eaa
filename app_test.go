package nextrush

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppUseOnlyAffectsRoutesRegisteredAfter(t *testing.T) {
	app := New()

	app.GET("/before", func(c *Context) error { return c.String("before") })

	var ran bool
	app.Use(func(c *Context, next Next) error {
		ran = true
		return next()
	})

	app.GET("/after", func(c *Context) error { return c.String("after") })

	req := httptest.NewRequest("GET", "/before", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if ran {
		t.Fatal("expected middleware registered after a route to not affect it")
	}

	req2 := httptest.NewRequest("GET", "/after", nil)
	rec2 := httptest.NewRecorder()
	app.ServeHTTP(rec2, req2)

	if !ran {
		t.Fatal("expected middleware to run for a route registered after Use")
	}
}

func TestAppCustomErrorHandlerOverridesDefault(t *testing.T) {
	app := New()
	app.ErrorHandler = func(err error, c *Context) {
		c.Response.WriteStatus(http.StatusTeapot)
	}
	app.GET("/boom", func(c *Context) error { return ErrInternal(errors.New("boom")) })

	req := httptest.NewRequest("GET", "/boom", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected the custom handler's 418, got %d", rec.Code)
	}
}

func TestAppShutdownRunsJobsInOrder(t *testing.T) {
	app := New()

	var order []string
	app.AddShutdownJob("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	app.AddShutdownJob("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected shutdown jobs in registration order, got %v", order)
	}
}

func TestAppShutdownJobReplacementAndRemoval(t *testing.T) {
	app := New()

	calls := 0
	app.AddShutdownJob("job", func(ctx context.Context) error {
		calls++
		return nil
	})
	app.AddShutdownJob("job", func(ctx context.Context) error {
		calls += 10
		return nil
	})

	app.RemoveShutdownJob("does-not-exist")

	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 10 {
		t.Fatalf("expected the second registration to replace the first, got calls=%d", calls)
	}
}

func TestAppShutdownStopsOnJobError(t *testing.T) {
	app := New()

	ran := false
	app.AddShutdownJob("fails", func(ctx context.Context) error {
		return errors.New("boom")
	})
	app.AddShutdownJob("never-runs", func(ctx context.Context) error {
		ran = true
		return nil
	})

	if err := app.Shutdown(context.Background()); err == nil {
		t.Fatal("expected Shutdown to surface the job's error")
	}
	if ran {
		t.Fatal("expected a failing job to stop the remaining jobs from running")
	}
}
