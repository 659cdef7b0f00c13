package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, allowed []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(method, "/doctors", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	CORS(allowed)(handler).ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://rams.example/"}, http.MethodGet, "https://rams.example", false)

	assert.True(t, called)
	assert.Equal(t, "https://rams.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Request-ID", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://rams.example"}, http.MethodGet, "https://evil.example", false)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	rec, _ := corsRequest(t, []string{"*"}, http.MethodGet, "https://any.example", false)
	assert.Equal(t, "https://any.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://rams.example"}, http.MethodOptions, "https://rams.example", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, called = corsRequest(t, []string{"https://rams.example"}, http.MethodOptions, "https://evil.example", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
