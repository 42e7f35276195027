package oauth

import (
	"encoding/json"
	"errors"
	"net/url"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

const (
	microsoftAuthEndpoint     = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	microsoftTokenEndpoint    = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	microsoftUserInfoEndpoint = "https://graph.microsoft.com/v1.0/me"
	microsoftPhotoEndpoint    = "https://graph.microsoft.com/v1.0/me/photo/$value"
)

// MicrosoftProvider implements the capability set for Microsoft accounts
// through the `common` endpoints and Microsoft Graph.
type MicrosoftProvider struct {
	desc Descriptor
}

func NewMicrosoftProvider(clientID, redirectURI string) *MicrosoftProvider {
	return &MicrosoftProvider{
		desc: Descriptor{
			Name:                  domain.ProviderMicrosoft,
			AuthorizationEndpoint: microsoftAuthEndpoint,
			TokenEndpoint:         microsoftTokenEndpoint,
			UserInfoEndpoint:      microsoftUserInfoEndpoint,
			ClientID:              clientID,
			Scopes: []string{
				"openid",
				"profile",
				"email",
				"offline_access",
				"https://graph.microsoft.com/Mail.Send",
				"https://graph.microsoft.com/User.Read",
			},
			RedirectURI: redirectURI,
		},
	}
}

func (p *MicrosoftProvider) Name() domain.Provider  { return domain.ProviderMicrosoft }
func (p *MicrosoftProvider) Descriptor() Descriptor { return p.desc }

// offline_access is in the scope set, so the token response carries a refresh
// token the lifecycle layer can act on.
func (p *MicrosoftProvider) SupportsRefresh() bool { return true }

// Graph serves the profile picture as raw bytes on its own endpoint; the
// /me body carries no picture field.
func (p *MicrosoftProvider) PhotoEndpoint() string { return microsoftPhotoEndpoint }

// Microsoft requires PKCE for public clients on the v2.0 endpoints.
func (p *MicrosoftProvider) AuthParams(challenge, state string) url.Values {
	return url.Values{
		"client_id":             {p.desc.ClientID},
		"redirect_uri":          {p.desc.RedirectURI},
		"response_type":         {"code"},
		"response_mode":         {"query"},
		"scope":                 {p.desc.ScopeString()},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
}

type graphUser struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
}

func (p *MicrosoftProvider) NormalizeUserInfo(body []byte) (domain.UserInfo, error) {
	var u graphUser
	if err := json.Unmarshal(body, &u); err != nil {
		return domain.UserInfo{}, err
	}
	if u.ID == "" {
		return domain.UserInfo{}, errors.New("invalid userinfo: missing id")
	}
	email := u.Mail
	if email == "" {
		// Personal accounts often have no mail attribute; the UPN is the
		// address in that case.
		email = u.UserPrincipalName
	}
	return domain.UserInfo{
		ID:    u.ID,
		Email: email,
		Name:  u.DisplayName,
	}, nil
}
