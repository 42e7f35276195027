package mailauth

import (
	"context"
	"time"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/oauth"
)

/*
TokenStore
----------
Persistence port over the (country, provider) identity key. Two logical
records per key: tokens and user info, both JSON. Malformed stored payloads
read as absent; Clear removes both records so no stale identity survives a
disconnect.
*/
type TokenStore interface {
	PutTokens(ctx context.Context, key domain.IdentityKey, t domain.AuthTokens) error
	GetTokens(ctx context.Context, key domain.IdentityKey) (*domain.AuthTokens, error)
	PutUserInfo(ctx context.Context, key domain.IdentityKey, u domain.UserInfo) error
	GetUserInfo(ctx context.Context, key domain.IdentityKey) (*domain.UserInfo, error)
	Clear(ctx context.Context, key domain.IdentityKey) error
}

/*
AttemptStore
------------
One record per in-flight authorization attempt, keyed by the crypto-random
state token. Consumed exactly once by the code exchange; a consume on a
missing or already-used attempt fails deterministically.
*/
type AttemptData struct {
	Country      string          `json:"country"`
	Provider     domain.Provider `json:"provider"`
	CodeVerifier string          `json:"code_verifier"`
	CreatedAt    time.Time       `json:"created_at"`
}

type AttemptStore interface {
	// Create generates the state token and stores the attempt under it.
	Create(ctx context.Context, data AttemptData) (state string, err error)
	// Peek reads the attempt without consuming it (callback-side state check).
	Peek(ctx context.Context, state string) (AttemptData, error)
	// Consume reads and deletes the attempt (one-time use).
	Consume(ctx context.Context, state string) (AttemptData, error)
}

/*
Exchanger
---------
Token endpoint + profile endpoint client.
*/
type Exchanger interface {
	Exchange(ctx context.Context, p oauth.Provider, code, verifier string) (domain.AuthTokens, error)
	Refresh(ctx context.Context, p oauth.Provider, refreshToken string) (domain.AuthTokens, error)
	FetchUserInfo(ctx context.Context, p oauth.Provider, accessToken string) (domain.UserInfo, error)
}

/*
MailDispatcher
--------------
Provider send API client. A nil error means the provider accepted the
message; success is judged purely on HTTP status.
*/
type MailDispatcher interface {
	Send(ctx context.Context, accessToken string, provider domain.Provider, msg domain.MailMessage) error
}

/*
ChallengeSource
---------------
PKCE pair generation. Abstracted so tests can assert the source is never
touched when configuration checks fail first.
*/
type ChallengeSource interface {
	Generate() (oauth.Challenge, error)
}

/*
EventPublisher
--------------
Best-effort domain events for the case system (mail.connected, mail.sent,
mail.disconnected). Publish failures are logged, never surfaced to callers.
*/
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
