package domain

import "fmt"

// IdentityKey is the sharding unit for stored credentials.
// Tokens for two countries under the same provider are fully independent,
// even when they belong to the same human user.
type IdentityKey struct {
	Country  string
	Provider Provider
}

func NewIdentityKey(country string, provider Provider) IdentityKey {
	return IdentityKey{Country: country, Provider: provider}
}

func (k IdentityKey) String() string {
	return fmt.Sprintf("%s:%s", k.Country, k.Provider)
}

// UserInfo is the normalized profile shape across providers.
// Display-only: never used for authorization decisions.
type UserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}
