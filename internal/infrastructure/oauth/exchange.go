package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

// TokenResponse is the provider token endpoint's success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// tokenError is the provider token endpoint's error body.
type tokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *tokenError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// ExchangeClient talks to provider token and profile endpoints. expiresAt is
// always computed from the client's own clock at response time.
type ExchangeClient struct {
	httpClient *http.Client
	now        func() time.Time
	lg         zerolog.Logger
}

func NewExchangeClient(lg zerolog.Logger) *ExchangeClient {
	return &ExchangeClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		lg:         lg.With().Str("component", "exchange_client").Logger(),
	}
}

// WithHTTPClient overrides the transport, used by tests with httptest servers.
func (c *ExchangeClient) WithHTTPClient(hc *http.Client) *ExchangeClient {
	c.httpClient = hc
	return c
}

// WithClock overrides the time source, used by expiry tests.
func (c *ExchangeClient) WithClock(now func() time.Time) *ExchangeClient {
	c.now = now
	return c
}

// Exchange trades a one-time authorization code (plus its PKCE verifier) for
// tokens. The redirect_uri must be byte-identical to the one used when
// building the authorization URL; a mismatch is classified separately because
// it is a deployment problem, not a user problem.
func (c *ExchangeClient) Exchange(ctx context.Context, p Provider, code, verifier string) (domain.AuthTokens, error) {
	d := p.Descriptor()
	form := url.Values{
		"client_id":     {d.ClientID},
		"code":          {code},
		"code_verifier": {verifier},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {d.RedirectURI},
	}
	return c.postTokenForm(ctx, d.TokenEndpoint, form)
}

// Refresh trades a refresh token for a fresh access token. The stored refresh
// token is retained by the caller when the response omits a new one.
func (c *ExchangeClient) Refresh(ctx context.Context, p Provider, refreshToken string) (domain.AuthTokens, error) {
	d := p.Descriptor()
	form := url.Values{
		"client_id":     {d.ClientID},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
		"scope":         {d.ScopeString()},
	}
	return c.postTokenForm(ctx, d.TokenEndpoint, form)
}

// FetchUserInfo calls the provider profile endpoint with a bearer header and
// normalizes the body through the provider capability.
func (c *ExchangeClient) FetchUserInfo(ctx context.Context, p Provider, accessToken string) (domain.UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Descriptor().UserInfoEndpoint, nil)
	if err != nil {
		return domain.UserInfo{}, domain.ErrInternal(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.UserInfo{}, domain.ErrNetwork(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.UserInfo{}, domain.ErrNetwork(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.UserInfo{}, domain.ErrAuthFailed(fmt.Errorf("userinfo endpoint: %s", strings.TrimSpace(string(body))))
	}
	if resp.StatusCode != http.StatusOK {
		return domain.UserInfo{}, domain.ErrNetwork(fmt.Errorf("userinfo endpoint status %d", resp.StatusCode))
	}

	info, err := p.NormalizeUserInfo(body)
	if err != nil {
		return domain.UserInfo{}, domain.ErrInternal(err)
	}

	// Best-effort: providers with a separate photo endpoint fill Picture
	// here. Accounts without a photo answer 404, which is not a failure of
	// the profile fetch.
	if ps, ok := p.(PhotoSource); ok && info.Picture == "" {
		pic, err := c.fetchPhoto(ctx, ps.PhotoEndpoint(), accessToken)
		if err != nil {
			c.lg.Debug().Err(err).Str("provider", string(p.Name())).Msg("profile photo unavailable")
		} else {
			info.Picture = pic
		}
	}
	return info, nil
}

// Photos larger than this are dropped rather than inflated into the stored
// user info record.
const maxPhotoBytes = 1 << 20

// fetchPhoto retrieves a binary profile photo and renders it as a data URL
// so it fits the same Picture field other providers fill from the profile
// body.
func (c *ExchangeClient) fetchPhoto(ctx context.Context, endpoint, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("photo endpoint status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxPhotoBytes {
		return "", fmt.Errorf("photo exceeds %d bytes", maxPhotoBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (c *ExchangeClient) postTokenForm(ctx context.Context, endpoint string, form url.Values) (domain.AuthTokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.AuthTokens{}, domain.ErrInternal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AuthTokens{}, domain.ErrNetwork(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AuthTokens{}, domain.ErrNetwork(err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.AuthTokens{}, classifyTokenFailure(resp.StatusCode, body)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return domain.AuthTokens{}, domain.ErrNetwork(fmt.Errorf("malformed token response: %w", err))
	}
	if tr.AccessToken == "" {
		return domain.AuthTokens{}, domain.ErrAuthFailed(fmt.Errorf("token response missing access_token"))
	}

	issued := c.now()
	return domain.AuthTokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
		ExpiresAt:    issued.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// classifyTokenFailure maps a non-2xx token endpoint response onto the error
// taxonomy so the UI can show an actionable message for each case.
func classifyTokenFailure(status int, body []byte) error {
	var te tokenError
	_ = json.Unmarshal(body, &te)

	desc := strings.ToLower(te.Description)
	switch {
	case te.Code == "invalid_grant":
		return domain.ErrGrantInvalid(&te)
	case te.Code == "redirect_uri_mismatch" || strings.Contains(desc, "redirect"):
		return domain.ErrRedirectMismatch(&te)
	case status == http.StatusUnauthorized || te.Code == "invalid_client":
		if te.Code == "" {
			return domain.ErrAuthFailed(fmt.Errorf("token endpoint status %d", status))
		}
		return domain.ErrAuthFailed(&te)
	default:
		if te.Code != "" {
			return domain.ErrNetwork(&te)
		}
		return domain.ErrNetwork(fmt.Errorf("token endpoint status %d: %s", status, strings.TrimSpace(string(body))))
	}
}
