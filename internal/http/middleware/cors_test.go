package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	called := false
	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()

	CORS([]string{"https://dashboard.example.com/"})(okHandler(&called)).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	called := false
	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()

	CORS([]string{"https://dashboard.example.com"})(okHandler(&called)).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		want    int
	}{
		{"wildcard", []string{"*"}, http.StatusNoContent},
		{"unlisted", []string{"https://dashboard.example.com"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(http.MethodOptions, "/api/appointments", nil)
			req.Header.Set("Origin", "https://other.example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()

			CORS(tt.origins)(okHandler(&called)).ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
