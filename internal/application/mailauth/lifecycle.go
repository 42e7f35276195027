package mailauth

import (
	"context"
	"errors"
	"sync"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/metrics"
)

// ValidAccessToken returns a usable access token for the identity key, or
// ErrReauthRequired when there is none and none can be obtained silently.
//
// Fail closed: any ambiguity in refresh eligibility or outcome clears the
// stored tokens. Callers must treat reauth_required as "run the connect flow
// again", never as something to degrade around.
func (s *Service) ValidAccessToken(ctx context.Context, country, provider string) (string, error) {
	if !domain.IsValidProvider(provider) {
		return "", domain.ErrUnsupportedProvider(provider)
	}
	key := domain.NewIdentityKey(country, domain.Provider(provider))

	tokens, err := s.tokens.GetTokens(ctx, key)
	if err != nil {
		return "", err
	}
	if tokens == nil {
		return "", domain.ErrReauthRequired(nil)
	}
	if !tokens.IsExpired(s.now()) {
		return tokens.AccessToken, nil
	}
	return s.refreshLocked(ctx, key, *tokens)
}

// ExpiringSoon reports whether the stored access token expires within the
// configured proactive-refresh window. Absent tokens report false; callers
// discover disconnection through ValidAccessToken.
func (s *Service) ExpiringSoon(ctx context.Context, country, provider string) (bool, error) {
	if !domain.IsValidProvider(provider) {
		return false, domain.ErrUnsupportedProvider(provider)
	}
	key := domain.NewIdentityKey(country, domain.Provider(provider))

	tokens, err := s.tokens.GetTokens(ctx, key)
	if err != nil {
		return false, err
	}
	if tokens == nil {
		return false, nil
	}
	return tokens.ExpiresWithin(s.now(), s.soonSkew), nil
}

// refreshLocked serializes refreshes per identity key. The second caller
// blocks on the same mutex, then re-reads the store: if the first refresh
// succeeded it sees fresh tokens and never issues a second provider call.
func (s *Service) refreshLocked(ctx context.Context, key domain.IdentityKey, stale domain.AuthTokens) (string, error) {
	mu := s.keyMutex(key)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.tokens.GetTokens(ctx, key)
	if err != nil {
		return "", err
	}
	if current == nil {
		// a concurrent refresh already failed and cleared the key
		return "", domain.ErrReauthRequired(nil)
	}
	if !current.IsExpired(s.now()) {
		return current.AccessToken, nil
	}

	p, err := s.providers.Get(key.Provider)
	if err != nil {
		return "", err
	}

	// Only providers with a refresh capability and an actual refresh token
	// are eligible. Everything else is permanently invalid once expired.
	if !p.SupportsRefresh() || !current.HasRefreshToken() {
		s.clearAndReport(ctx, key, "ineligible")
		return "", domain.ErrReauthRequired(nil)
	}

	fresh, err := s.exchanger.Refresh(ctx, p, current.RefreshToken)
	if err != nil {
		s.clearAndReport(ctx, key, "denied")
		s.lg.Warn().Err(err).Str("key", key.String()).Msg("token refresh denied, storage cleared")
		if isDomainKind(err, domain.KindGateway) {
			return "", domain.ErrRefreshFailed(err)
		}
		return "", domain.ErrReauthRequired(err)
	}

	// Providers are not required to rotate the refresh token on every call.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = current.RefreshToken
	}
	if err := s.tokens.PutTokens(ctx, key, fresh); err != nil {
		return "", err
	}

	metrics.TokenRefreshTotal.WithLabelValues(string(key.Provider), "success").Inc()
	return fresh.AccessToken, nil
}

func (s *Service) clearAndReport(ctx context.Context, key domain.IdentityKey, outcome string) {
	if err := s.tokens.Clear(ctx, key); err != nil {
		s.lg.Error().Err(err).Str("key", key.String()).Msg("failed to clear tokens after refresh failure")
	}
	metrics.TokenRefreshTotal.WithLabelValues(string(key.Provider), outcome).Inc()
}

func (s *Service) keyMutex(key domain.IdentityKey) *sync.Mutex {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	mu, ok := s.refreshing[key]
	if !ok {
		mu = &sync.Mutex{}
		s.refreshing[key] = mu
	}
	return mu
}

func asDomainError(err error, target **domain.Error) bool {
	return errors.As(err, target)
}

func isDomainKind(err error, kind domain.ErrKind) bool {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
