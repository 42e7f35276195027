package oauth

import (
	"encoding/json"
	"errors"
	"net/url"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

const (
	googleAuthEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenEndpoint    = "https://oauth2.googleapis.com/token"
	googleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleProvider implements the capability set for Google accounts.
type GoogleProvider struct {
	desc Descriptor
}

func NewGoogleProvider(clientID, redirectURI string) *GoogleProvider {
	return &GoogleProvider{
		desc: Descriptor{
			Name:                  domain.ProviderGoogle,
			AuthorizationEndpoint: googleAuthEndpoint,
			TokenEndpoint:         googleTokenEndpoint,
			UserInfoEndpoint:      googleUserInfoEndpoint,
			ClientID:              clientID,
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.send",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			RedirectURI: redirectURI,
		},
	}
}

func (p *GoogleProvider) Name() domain.Provider  { return domain.ProviderGoogle }
func (p *GoogleProvider) Descriptor() Descriptor { return p.desc }

// Google's PKCE flow here does not reliably yield a usable refresh token, so
// an expired Google token is treated as permanently invalid. The authorize
// request still asks for offline access on first consent; the lifecycle layer
// deliberately does not act on whatever comes back.
func (p *GoogleProvider) SupportsRefresh() bool { return false }

func (p *GoogleProvider) AuthParams(challenge, state string) url.Values {
	return url.Values{
		"client_id":             {p.desc.ClientID},
		"redirect_uri":          {p.desc.RedirectURI},
		"response_type":         {"code"},
		"scope":                 {p.desc.ScopeString()},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"access_type":           {"offline"}, // Get refresh token
		"prompt":                {"consent"}, // Always show consent screen
	}
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (p *GoogleProvider) NormalizeUserInfo(body []byte) (domain.UserInfo, error) {
	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.UserInfo{}, err
	}
	if info.ID == "" {
		return domain.UserInfo{}, errors.New("invalid userinfo: missing id")
	}
	return domain.UserInfo{
		ID:      info.ID,
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	}, nil
}
