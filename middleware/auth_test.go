package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedToken builds a syntactically valid JWT that no Clerk instance
// ever issued. The middleware must reject it.
func selfSignedToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user_fake",
		"iss": "https://clerk.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("not-the-real-key"))
	require.NoError(t, err)
	return signed
}

func TestClerkAuthMiddlewareRejections(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run on auth failure")
	})
	handler := ClerkAuthMiddleware(next)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Token abc"},
		{"self-signed token", "Bearer " + selfSignedToken(t)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/habits", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestOptionalAuthMiddlewareLetsAnonymousThrough(t *testing.T) {
	var clerkID string
	var authed bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clerkID, authed = GetClerkID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := OptionalAuthMiddleware(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/community/feed", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, authed)
	assert.Empty(t, clerkID)
}

func TestTimezoneMiddleware(t *testing.T) {
	var got *time.Location
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetTimezone(r.Context())
	})
	handler := TimezoneMiddleware(next)

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"valid zone", "America/New_York", "America/New_York"},
		{"missing header", "", "UTC"},
		{"garbage falls back to UTC", "Not/AZone", "UTC"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/habits", nil)
			if tc.header != "" {
				req.Header.Set("x-timezone", tc.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.String())
		})
	}
}
