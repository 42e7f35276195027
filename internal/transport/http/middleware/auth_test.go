package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/security"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/response"
)

func authTestHandler(t *testing.T) (http.Handler, *security.JWTVerifier) {
	t.Helper()
	verifier := security.NewJWTVerifier("secret", "caseflow-auth")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		require.True(t, ok, "user id must be in context")
		w.Write([]byte(uid))
	})
	return Auth(verifier, response.WriteError)(next), verifier
}

func TestAuth_MissingHeader(t *testing.T) {
	t.Parallel()

	h, _ := authTestHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token_missing")
}

func TestAuth_MalformedHeader(t *testing.T) {
	t.Parallel()

	h, _ := authTestHandler(t)

	for _, header := range []string{"Basic abc", "Bearer", "Bearer   "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	t.Parallel()

	h, verifier := authTestHandler(t)
	tok, err := verifier.SignAccessToken("agent-7", "agent", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "agent-7", rec.Body.String())
}

func TestAuth_ExpiredToken(t *testing.T) {
	t.Parallel()

	h, verifier := authTestHandler(t)
	tok, err := verifier.SignAccessToken("agent-7", "agent", -time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token_expired")
}
