package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/application/mailauth"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/flow"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/memory"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/oauth"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/security"
	http_handlers "github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/handlers"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/middleware"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/response"
)

type noopDispatcher struct{}

func (noopDispatcher) Send(ctx context.Context, accessToken string, provider domain.Provider, msg domain.MailMessage) error {
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *security.JWTVerifier) {
	t.Helper()

	lg := zerolog.Nop()
	providers := oauth.NewRegistry(
		oauth.NewGoogleProvider("google-client-id", "https://app.example.com/mail/v1/oauth/callback"),
		oauth.NewMicrosoftProvider("ms-client-id", "https://app.example.com/mail/v1/oauth/callback"),
	)

	svc := mailauth.NewService(
		providers,
		oauth.NewPKCEGenerator(),
		memory.NewAttemptStore(time.Minute),
		flow.NewController(2*time.Second, 10*time.Millisecond, lg),
		oauth.NewExchangeClient(lg),
		memory.NewTokenStore(),
		noopDispatcher{},
		memory.NewNoopPublisher(lg),
		mailauth.Config{},
		lg,
	)

	verifier := security.NewJWTVerifier("secret", "caseflow-auth")

	mux, err := New(Deps{
		Health:   http_handlers.NewHealthHandler(nil),
		Mail:     http_handlers.NewMailHandler(svc),
		Callback: http_handlers.NewCallbackHandler(svc, "https://app.example.com"),
		AuthMW:   middleware.Auth(verifier, response.WriteError),
	})
	require.NoError(t, err)
	return mux, verifier
}

func bearer(t *testing.T, v *security.JWTVerifier) string {
	t.Helper()
	tok, err := v.SignAccessToken("agent-1", "agent", time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestRouter_HealthAndMetricsUnauthenticated(t *testing.T) {
	t.Parallel()

	mux, _ := newTestRouter(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestRouter_MailEndpointsRequireBearer(t *testing.T) {
	t.Parallel()

	mux, _ := newTestRouter(t)

	reqs := []struct {
		method, path string
	}{
		{http.MethodPost, "/mail/v1/de/google/connect"},
		{http.MethodGet, "/mail/v1/connect/attempts/x"},
		{http.MethodPost, "/mail/v1/connect/attempts/x/cancel"},
		{http.MethodGet, "/mail/v1/de/google/status"},
		{http.MethodDelete, "/mail/v1/de/google"},
		{http.MethodPost, "/mail/v1/de/google/send"},
	}
	for _, r := range reqs {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(r.method, r.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", r.method, r.path)
	}
}

func TestRouter_CallbackIsPublic(t *testing.T) {
	t.Parallel()

	mux, _ := newTestRouter(t)

	// No bearer token; missing params produce the HTML error page, not a 401.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mail/v1/oauth/callback", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestRouter_ConnectFlowOverHTTP(t *testing.T) {
	t.Parallel()

	mux, verifier := newTestRouter(t)
	auth := bearer(t, verifier)

	// start
	req := httptest.NewRequest(http.MethodPost, "/mail/v1/de/google/connect", nil)
	req.Header.Set("Authorization", auth)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			AttemptID string `json:"attempt_id"`
			AuthURL   string `json:"auth_url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.AttemptID)
	assert.Contains(t, created.Data.AuthURL, "accounts.google.com")
	assert.Contains(t, created.Data.AuthURL, "code_challenge_method=S256")

	// non-blocking state probe
	req = httptest.NewRequest(http.MethodGet, "/mail/v1/connect/attempts/"+created.Data.AttemptID+"?wait=0", nil)
	req.Header.Set("Authorization", auth)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "waiting_for_message")

	// user closes the popup
	req = httptest.NewRequest(http.MethodPost, "/mail/v1/connect/attempts/"+created.Data.AttemptID+"/cancel", bytes.NewReader([]byte(`{"reason":"closed"}`)))
	req.Header.Set("Authorization", auth)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// long-poll resolves to cancelled
	req = httptest.NewRequest(http.MethodGet, "/mail/v1/connect/attempts/"+created.Data.AttemptID, nil)
	req.Header.Set("Authorization", auth)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_cancelled")
}

func TestRouter_StatusDisconnected(t *testing.T) {
	t.Parallel()

	mux, verifier := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/mail/v1/de/microsoft/status", nil)
	req.Header.Set("Authorization", bearer(t, verifier))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connected":false`)
}

func TestRouter_SendRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	mux, verifier := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/mail/v1/de/google/send", bytes.NewReader([]byte(`{"subject":"x"}`)))
	req.Header.Set("Authorization", bearer(t, verifier))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
