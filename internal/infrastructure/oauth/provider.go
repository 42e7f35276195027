package oauth

import (
	"net/url"
	"strings"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

// Descriptor holds the static endpoint and client configuration for one
// provider. Built once at process start from config and never mutated.
type Descriptor struct {
	Name                  domain.Provider
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	ClientID              string
	Scopes                []string
	RedirectURI           string
}

func (d Descriptor) ScopeString() string {
	return strings.Join(d.Scopes, " ")
}

// Provider is the capability set behind which the two divergent provider
// APIs are normalized. Selected by registry lookup, never by scattered
// string comparisons.
type Provider interface {
	Name() domain.Provider
	Descriptor() Descriptor

	// AuthParams returns the full authorization query for one attempt.
	// PKCE S256 is always included; providers add their own extras.
	AuthParams(challenge, state string) url.Values

	// SupportsRefresh reports whether an expired token with a refresh token
	// may be silently refreshed. Providers without a guaranteed refresh path
	// are treated as refresh-incapable and fail closed.
	SupportsRefresh() bool

	// NormalizeUserInfo maps a raw profile-endpoint body into the common
	// UserInfo shape.
	NormalizeUserInfo(body []byte) (domain.UserInfo, error)
}

// PhotoSource is an optional capability for providers whose profile picture
// lives on a separate binary endpoint instead of the profile body. The
// fetch is best-effort; an identity without a photo is still valid.
type PhotoSource interface {
	PhotoEndpoint() string
}

// Registry resolves providers by name.
type Registry struct {
	providers map[domain.Provider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[domain.Provider]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(name domain.Provider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.ErrUnsupportedProvider(string(name))
	}
	return p, nil
}

// AuthCodeURL composes the provider authorization URL for one attempt.
func AuthCodeURL(p Provider, challenge, state string) string {
	return p.Descriptor().AuthorizationEndpoint + "?" + p.AuthParams(challenge, state).Encode()
}
