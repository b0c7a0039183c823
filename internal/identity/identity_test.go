package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, uid, typ string, secret []byte) string {
	t.Helper()
	claims := &TokenClaims{
		UserID:    uid,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString(secret)
	require.NoError(t, err)
	return raw
}

func echoUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserID(r)
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(uid))
	})
}

func TestMiddlewareBearerToken(t *testing.T) {
	h := Middleware(testSecret)(echoUserHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-42", "access", testSecret))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", w.Body.String())
}

func TestMiddlewareHeaderFallback(t *testing.T) {
	h := Middleware(testSecret)(echoUserHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User-Id", "user-7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "user-7", w.Body.String())
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	tests := []struct {
		name string
		auth string
	}{
		{"garbage", "Bearer not-a-token"},
		{"wrong secret", "Bearer " + signToken(t, "user-1", "access", []byte("other"))},
		{"refresh token", "Bearer " + signToken(t, "user-1", "refresh", testSecret)},
		{"malformed header", "Token abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Middleware(testSecret)(echoUserHandler())
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Authorization", tt.auth)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestMiddlewareAnonymousPassthrough(t *testing.T) {
	h := Middleware(testSecret)(echoUserHandler())

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestClientIsAdmin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/internal/users/admin-1/admin":
			w.Write([]byte(`{"admin":true}`))
		case "/internal/users/pleb-1/admin":
			w.Write([]byte(`{"admin":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	ok, err := c.IsAdmin(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsAdmin(context.Background(), "pleb-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsAdmin(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientUserExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/internal/users/known/exists" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	ok, err := c.UserExists(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.UserExists(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}
