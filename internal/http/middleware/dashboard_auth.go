package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const dashboardClaimsKey contextKey = "dashboardClaims"

// DashboardJWT requires an HS256 bearer token signed with secret.
// An empty secret disables the check so local dashboards work without tokens.
func DashboardJWT(secret string) func(http.Handler) http.Handler {
	return DashboardJWTWithRejecter(secret, nil)
}

// DashboardJWTWithRejecter is DashboardJWT with a custom 401 writer.
func DashboardJWTWithRejecter(secret string, reject Rejecter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				reject.write(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				reject.write(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), dashboardClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DashboardClaimsFromContext returns the verified JWT claims if present.
func DashboardClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(dashboardClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}
