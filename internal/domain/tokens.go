package domain

import "time"

// AuthTokens holds provider credentials for one identity key.
// ExpiresAt is always derived at issuance time from expires_in;
// stale absolute instants from the wire are never trusted.
type AuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"` // present only when the provider issued one
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired reports whether the access token is past its lifetime at now.
func (t AuthTokens) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ExpiresWithin reports whether the access token expires within d of now.
// Callers use this to refresh proactively before time-sensitive operations.
func (t AuthTokens) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !now.Add(d).Before(t.ExpiresAt)
}

// HasRefreshToken reports whether a silent refresh is even possible.
func (t AuthTokens) HasRefreshToken() bool {
	return t.RefreshToken != ""
}
