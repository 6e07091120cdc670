package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Use(Middleware(Config{SkipPaths: []string{"/health"}}))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.GET("/x", ok)
	e.POST("/x", ok)
	e.POST("/health", ok)
	return e
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		origin string
		cookie string
		header string
		want   int
	}{
		{"safe method passes", http.MethodGet, "/x", "", "", "", http.StatusNoContent},
		{"skip path", http.MethodPost, "/health", "", "", "", http.StatusNoContent},
		{"missing origin", http.MethodPost, "/x", "", "tok", "tok", http.StatusForbidden},
		{"foreign origin", http.MethodPost, "/x", "http://evil.test", "tok", "tok", http.StatusForbidden},
		{"missing header", http.MethodPost, "/x", "http://example.com", "tok", "", http.StatusForbidden},
		{"mismatched header", http.MethodPost, "/x", "http://example.com", "tok", "nope", http.StatusForbidden},
		{"matching token", http.MethodPost, "/x", "http://example.com", "tok", "tok", http.StatusNoContent},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			rec := httptest.NewRecorder()
			newEcho().ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddleware_ExposesTokenOnSafeRequests(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	newEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	tok := rec.Header().Get("X-CSRF-Token")
	assert.NotEmpty(t, tok)
	var found bool
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "XSRF-TOKEN" {
			found = ck.Value == tok
		}
	}
	assert.True(t, found)
}
