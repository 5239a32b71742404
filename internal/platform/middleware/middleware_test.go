package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/")

	var seen string
	h := RequestID()(func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		return okHandler(c)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seen == "" {
		t.Error("expected a generated request_id in context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q does not match context id %q", got, seen)
	}
}

func TestRequestID_HonorsClientID(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/")
	c.Request().Header.Set(RequestIDHeader, "reception-42")

	h := RequestID()(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := rec.Header().Get(RequestIDHeader); got != "reception-42" {
		t.Errorf("expected client id echoed back, got %q", got)
	}
}

func TestLogger_EmitsRequestLine(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	c, _ := newTestContext(http.MethodGet, "/api/v1/queues")
	c.Set("user_id", "dr-rao")

	h := Logger(logger)(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := buf.String()
	if !strings.Contains(line, `"path":"/api/v1/queues"`) {
		t.Errorf("log line missing path: %s", line)
	}
	if !strings.Contains(line, `"user_id":"dr-rao"`) {
		t.Errorf("log line missing user_id: %s", line)
	}
}

func TestLogger_HandlerErrorLoggedAndReturned(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	c, _ := newTestContext(http.MethodPost, "/boom")

	h := Logger(logger)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad input")
	})
	if err := h(c); err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error-level line, got %s", buf.String())
	}
}

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	c, _ := newTestContext(http.MethodGet, "/panic")

	h := Recovery(logger)(func(c echo.Context) error {
		panic("queue state corrupted")
	})
	err := h(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
	if !strings.Contains(buf.String(), "queue state corrupted") {
		t.Error("expected panic value in log output")
	}
}

func TestRecovery_LeavesNormalFlowAlone(t *testing.T) {
	logger := zerolog.Nop()
	c, rec := newTestContext(http.MethodGet, "/ok")

	h := Recovery(logger)(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
