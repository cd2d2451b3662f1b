package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestDashboardJWTDisabledWithoutSecret(t *testing.T) {
	called := false
	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	rec := httptest.NewRecorder()

	DashboardJWT("")(okHandler(&called)).ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, called=%v status=%d", called, rec.Code)
	}
}

func TestDashboardJWTMissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	rec := httptest.NewRecorder()

	DashboardJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestDashboardJWTInvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrong", jwt.SigningMethodHS256))
	rec := httptest.NewRecorder()

	DashboardJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestDashboardJWTRejectsOtherHMAC(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", jwt.SigningMethodHS512))
	rec := httptest.NewRecorder()

	DashboardJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestDashboardJWTValidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", jwt.SigningMethodHS256))
	rec := httptest.NewRecorder()

	called := false
	DashboardJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := DashboardClaimsFromContext(r.Context())
		if !ok || claims.Subject != "front-desk" {
			t.Fatalf("expected dashboard claims in context, got %+v", claims)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestDashboardJWTLetsPreflightThrough(t *testing.T) {
	called := false
	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/send-notification", nil)
	rec := httptest.NewRecorder()

	DashboardJWT("secret")(okHandler(&called)).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected preflight to reach the handler")
	}
}

func signedToken(t *testing.T, secret string, method jwt.SigningMethod) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "front-desk",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestDashboardJWTWithRejecter(t *testing.T) {
	var gotMsg string
	reject := func(w http.ResponseWriter, r *http.Request, status int, msg string) {
		gotMsg = msg
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(status)
	}
	req := httptest.NewRequest(http.MethodPost, "/send-notification", nil)
	rec := httptest.NewRecorder()

	DashboardJWTWithRejecter("secret", reject)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || gotMsg != "missing authorization header" {
		t.Fatalf("unexpected rejection status=%d msg=%q", rec.Code, gotMsg)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected rejecter headers to be kept")
	}
}
