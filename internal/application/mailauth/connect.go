package mailauth

import (
	"context"
	"fmt"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/config"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/flow"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/oauth"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/metrics"
)

// ConnectStart is handed to the UI so it can open the popup and poll the
// attempt. The attempt id doubles as the OAuth state parameter; the callback
// verifies it against the stored attempt, so a forged callback with an
// unknown state has no effect.
type ConnectStart struct {
	AttemptID string
	AuthURL   string
}

// ConnectResult is the outcome of a finished attempt.
type ConnectResult struct {
	Key      domain.IdentityKey
	UserInfo domain.UserInfo
}

// StartConnect begins one authorization attempt for an identity key.
// The client id is validated before the PKCE generator is touched: a
// misconfigured deployment should not burn randomness on a doomed attempt.
func (s *Service) StartConnect(ctx context.Context, country, provider string) (*ConnectStart, error) {
	if !domain.IsValidProvider(provider) {
		return nil, domain.ErrUnsupportedProvider(provider)
	}
	key := domain.NewIdentityKey(country, domain.Provider(provider))

	p, err := s.providers.Get(key.Provider)
	if err != nil {
		return nil, err
	}
	if config.IsPlaceholderClientID(p.Descriptor().ClientID) {
		return nil, domain.ErrOAuthNotConfigured(provider)
	}

	challenge, err := s.pkce.Generate()
	if err != nil {
		return nil, err
	}

	state, err := s.attempts.Create(ctx, AttemptData{
		Country:      key.Country,
		Provider:     key.Provider,
		CodeVerifier: challenge.Verifier,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	authURL := oauth.AuthCodeURL(p, challenge.Challenge, state)

	handle := &uiPopupHandle{}
	fl, err := s.controller.Start(handleOpener{h: handle}, authURL)
	if err != nil {
		return nil, err
	}
	s.registerAttempt(state, &liveAttempt{flow: fl, handle: handle, key: key})

	s.lg.Info().Str("country", key.Country).Str("provider", provider).Str("attempt", state).Msg("connect attempt started")
	return &ConnectStart{AttemptID: state, AuthURL: authURL}, nil
}

// CallbackInput is what the provider redirect delivered to the callback
// endpoint.
type CallbackInput struct {
	State            string
	Code             string
	ErrorCode        string
	ErrorDescription string
}

// DeliverCallback feeds the redirect outcome into the attempt's flow. The
// state must match a stored attempt; anything else is dropped so that a page
// guessing states cannot signal into a pending flow.
func (s *Service) DeliverCallback(ctx context.Context, in CallbackInput) error {
	if _, err := s.attempts.Peek(ctx, in.State); err != nil {
		return domain.ErrAttemptNotFound()
	}
	a, ok := s.lookupAttempt(in.State)
	if !ok {
		return domain.ErrAttemptNotFound()
	}

	if in.ErrorCode != "" {
		a.flow.Deliver(flow.Event{
			Kind: flow.EventError,
			Err:  domain.ErrAuthFailed(fmt.Errorf("%s: %s", in.ErrorCode, in.ErrorDescription)),
		})
		return nil
	}
	a.flow.Deliver(flow.Event{Kind: flow.EventSuccess, Code: in.Code})
	return nil
}

// CancelAttempt records a UI-reported popup event. A plain cancel flips the
// closed flag the flow's poller watches; reason "blocked" means window.open
// returned null in the browser and the attempt fails immediately.
func (s *Service) CancelAttempt(ctx context.Context, attemptID, reason string) error {
	a, ok := s.lookupAttempt(attemptID)
	if !ok {
		return domain.ErrAttemptNotFound()
	}
	if reason == "blocked" {
		a.flow.Deliver(flow.Event{Kind: flow.EventError, Err: domain.ErrPopupBlocked()})
		return nil
	}
	a.handle.Close()
	return nil
}

// AwaitResult blocks until the attempt reaches a terminal state. On success
// it consumes the one-time attempt record, exchanges the code, fetches and
// normalizes the user profile, and persists both records for the identity
// key. Every failure path leaves no tokens behind.
func (s *Service) AwaitResult(ctx context.Context, attemptID string) (*ConnectResult, error) {
	a, ok := s.lookupAttempt(attemptID)
	if !ok {
		return nil, domain.ErrAttemptNotFound()
	}
	defer s.dropAttempt(attemptID)

	code, err := a.flow.Await(ctx)
	if err != nil {
		metrics.ConnectAttemptsTotal.WithLabelValues(string(a.key.Provider), errOutcome(err)).Inc()
		// drop the unused challenge so it cannot be replayed later
		_, _ = s.attempts.Consume(ctx, attemptID)
		return nil, err
	}

	data, err := s.attempts.Consume(ctx, attemptID)
	if err != nil {
		// terminal success but no live challenge: the exchange must fail
		// deterministically rather than proceed without a verifier
		metrics.ConnectAttemptsTotal.WithLabelValues(string(a.key.Provider), "missing_challenge").Inc()
		return nil, domain.ErrMissingChallenge()
	}

	p, err := s.providers.Get(data.Provider)
	if err != nil {
		return nil, err
	}

	tokens, err := s.exchanger.Exchange(ctx, p, code, data.CodeVerifier)
	if err != nil {
		metrics.ConnectAttemptsTotal.WithLabelValues(string(a.key.Provider), errOutcome(err)).Inc()
		return nil, err
	}

	info, err := s.exchanger.FetchUserInfo(ctx, p, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.PutTokens(ctx, a.key, tokens); err != nil {
		return nil, err
	}
	if err := s.tokens.PutUserInfo(ctx, a.key, info); err != nil {
		return nil, err
	}

	metrics.ConnectAttemptsTotal.WithLabelValues(string(a.key.Provider), "success").Inc()
	s.publish(ctx, "mail.connected", map[string]string{
		"country":  a.key.Country,
		"provider": string(a.key.Provider),
		"email":    info.Email,
	})
	s.lg.Info().Str("country", a.key.Country).Str("provider", string(a.key.Provider)).Msg("mail account connected")

	return &ConnectResult{Key: a.key, UserInfo: info}, nil
}

// AttemptState exposes the flow state for observability.
func (s *Service) AttemptState(attemptID string) (flow.State, error) {
	a, ok := s.lookupAttempt(attemptID)
	if !ok {
		return "", domain.ErrAttemptNotFound()
	}
	return a.flow.State(), nil
}

// Disconnect clears tokens and user info for the identity key.
func (s *Service) Disconnect(ctx context.Context, country, provider string) error {
	if !domain.IsValidProvider(provider) {
		return domain.ErrUnsupportedProvider(provider)
	}
	key := domain.NewIdentityKey(country, domain.Provider(provider))
	if err := s.tokens.Clear(ctx, key); err != nil {
		return err
	}
	s.publish(ctx, "mail.disconnected", map[string]string{
		"country":  key.Country,
		"provider": string(key.Provider),
	})
	return nil
}

func errOutcome(err error) string {
	var de *domain.Error
	if ok := asDomainError(err, &de); ok {
		return de.Code
	}
	return "error"
}
