package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims mirrors the access tokens the identity gateway issues.
type TokenClaims struct {
	UserID    string `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type ctxUserIDKey struct{}

// Middleware resolves the current user and stores it on the request
// context. It accepts either a gateway-issued Bearer token or the
// internal X-User-Id header set by the gateway after verification.
// Requests without a resolvable user pass through anonymous; handlers
// that mutate state reject them.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get("X-User-Id"))

			if auth := r.Header.Get("Authorization"); auth != "" && len(secret) > 0 {
				parts := strings.SplitN(auth, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					writeError(w, http.StatusUnauthorized, "invalid Authorization header")
					return
				}
				claims := &TokenClaims{}
				token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
					return secret, nil
				})
				if err != nil || !token.Valid || claims.TokenType != "access" {
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				userID = claims.UserID
			}

			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user for this request, if any.
func UserID(r *http.Request) (string, bool) {
	v := r.Context().Value(ctxUserIDKey{})
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// WithUserID is a test helper mirroring what Middleware stores.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserIDKey{}, userID)
}
