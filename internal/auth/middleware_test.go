package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api", s.Middleware(), s.CSRFMiddleware())
	g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	g.POST("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareDisabledAllowsAll(t *testing.T) {
	r := newRouter(NewService(""))
	rec := serve(r, httptest.NewRequest(http.MethodPost, "/api/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareBearerToken(t *testing.T) {
	r := newRouter(NewService("s3cret"))

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := serve(r, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if rec := serve(r, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", rec.Code)
	}
}

func TestMiddlewareCookieRequiresCSRFOnWrites(t *testing.T) {
	s := NewService("s3cret")
	r := newRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.AddCookie(&http.Cookie{Name: s.AuthCookieName(), Value: "s3cret"})
	if rec := serve(r, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for cookie GET, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/ping", nil)
	req.AddCookie(&http.Cookie{Name: s.AuthCookieName(), Value: "s3cret"})
	if rec := serve(r, req); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/ping", nil)
	req.AddCookie(&http.Cookie{Name: s.AuthCookieName(), Value: "s3cret"})
	req.AddCookie(&http.Cookie{Name: s.CSRFCookieName(), Value: "abc"})
	req.Header.Set(s.CSRFHeaderName(), "abc")
	if rec := serve(r, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with csrf, got %d", rec.Code)
	}
}
