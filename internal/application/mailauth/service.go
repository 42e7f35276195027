package mailauth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/flow"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/oauth"
)

type Service struct {
	providers  *oauth.Registry
	pkce       ChallengeSource
	attempts   AttemptStore
	controller *flow.Controller
	exchanger  Exchanger
	tokens     TokenStore
	dispatcher MailDispatcher
	pub        EventPublisher // nil => events disabled

	now      func() time.Time
	soonSkew time.Duration

	// live attempts are process-local: the flow state machine and the
	// UI-reported popup handle cannot round-trip through a KV store
	attemptMu sync.Mutex
	live      map[string]*liveAttempt

	// at-most-one refresh in flight per identity key
	refreshMu  sync.Mutex
	refreshing map[domain.IdentityKey]*sync.Mutex

	lg zerolog.Logger
}

type liveAttempt struct {
	flow   *flow.Flow
	handle *uiPopupHandle
	key    domain.IdentityKey
}

type Config struct {
	RefreshSoonSkew time.Duration
}

func NewService(
	providers *oauth.Registry,
	pkce ChallengeSource,
	attempts AttemptStore,
	controller *flow.Controller,
	exchanger Exchanger,
	tokens TokenStore,
	dispatcher MailDispatcher,
	pub EventPublisher,
	cfg Config,
	lg zerolog.Logger,
) *Service {
	skew := cfg.RefreshSoonSkew
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	return &Service{
		providers:  providers,
		pkce:       pkce,
		attempts:   attempts,
		controller: controller,
		exchanger:  exchanger,
		tokens:     tokens,
		dispatcher: dispatcher,
		pub:        pub,
		now:        time.Now,
		soonSkew:   skew,
		live:       make(map[string]*liveAttempt),
		refreshing: make(map[domain.IdentityKey]*sync.Mutex),
		lg:         lg.With().Str("component", "mailauth_service").Logger(),
	}
}

// WithClock overrides the time source for expiry tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) publish(ctx context.Context, routingKey string, payload any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, routingKey, payload); err != nil {
		s.lg.Warn().Err(err).Str("routing_key", routingKey).Msg("event publish failed")
	}
}

func (s *Service) registerAttempt(state string, a *liveAttempt) {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()
	s.live[state] = a
}

func (s *Service) lookupAttempt(state string) (*liveAttempt, bool) {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()
	a, ok := s.live[state]
	return a, ok
}

func (s *Service) dropAttempt(state string) {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()
	delete(s.live, state)
}

// uiPopupHandle is the production flow.Handle: the opener UI owns the real
// window object and reports manual closure through the cancel endpoint, which
// flips the flag the flow's poller watches.
type uiPopupHandle struct {
	mu     sync.Mutex
	closed bool
}

func (h *uiPopupHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *uiPopupHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

type handleOpener struct{ h *uiPopupHandle }

func (o handleOpener) Open(string) (flow.Handle, error) { return o.h, nil }
