package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSessionKeepsClientProvidedID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Session())

	var seen string
	r.GET("/stats", func(c *gin.Context) {
		seen = SessionIDFromContext(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-Session-ID", "sess-42")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if seen != "sess-42" {
		t.Fatalf("expected sess-42 in context, got %q", seen)
	}
	if got := resp.Header().Get("X-Session-ID"); got != "sess-42" {
		t.Fatalf("expected session echoed back, got %q", got)
	}
}

func TestSessionGeneratesIDWhenMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Session())

	var seen string
	r.GET("/stats", func(c *gin.Context) {
		seen = SessionIDFromContext(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if seen == "" {
		t.Fatalf("expected generated session id")
	}
	if got := resp.Header().Get("X-Session-ID"); got != seen {
		t.Fatalf("header %q does not match context %q", got, seen)
	}
}

func TestSessionIDFromContextWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if got := SessionIDFromContext(c); got != "" {
		t.Fatalf("expected empty session id, got %q", got)
	}
	if got := SessionIDFromContext(nil); got != "" {
		t.Fatalf("expected empty session id for nil context, got %q", got)
	}
}
