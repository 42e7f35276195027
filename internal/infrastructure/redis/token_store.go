package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

// TokenStore persists tokens and user info per (country, provider) key as
// JSON blobs. Malformed stored payloads are treated as absent, never as read
// errors: a corrupted record must look like a disconnect, not break the UI.
type TokenStore struct {
	client *Client
}

func NewTokenStore(client *Client) *TokenStore {
	return &TokenStore{client: client}
}

func tokensKey(key domain.IdentityKey) string {
	return fmt.Sprintf("mail:tokens:%s:%s", key.Country, key.Provider)
}

func userInfoKey(key domain.IdentityKey) string {
	return fmt.Sprintf("mail:userinfo:%s:%s", key.Country, key.Provider)
}

func (s *TokenStore) PutTokens(ctx context.Context, key domain.IdentityKey, t domain.AuthTokens) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	if err := s.client.rdb.Set(ctx, tokensKey(key), data, 0).Err(); err != nil {
		return domain.ErrStoreUnavailable(err)
	}
	return nil
}

func (s *TokenStore) GetTokens(ctx context.Context, key domain.IdentityKey) (*domain.AuthTokens, error) {
	data, err := s.client.rdb.Get(ctx, tokensKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, domain.ErrStoreUnavailable(err)
	}

	var t domain.AuthTokens
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, nil
	}
	if t.AccessToken == "" {
		return nil, nil
	}
	return &t, nil
}

func (s *TokenStore) PutUserInfo(ctx context.Context, key domain.IdentityKey, u domain.UserInfo) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user info: %w", err)
	}
	if err := s.client.rdb.Set(ctx, userInfoKey(key), data, 0).Err(); err != nil {
		return domain.ErrStoreUnavailable(err)
	}
	return nil
}

func (s *TokenStore) GetUserInfo(ctx context.Context, key domain.IdentityKey) (*domain.UserInfo, error) {
	data, err := s.client.rdb.Get(ctx, userInfoKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, domain.ErrStoreUnavailable(err)
	}

	var u domain.UserInfo
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, nil
	}
	return &u, nil
}

// Clear removes both records for the key so no stale identity is displayed
// after a disconnect.
func (s *TokenStore) Clear(ctx context.Context, key domain.IdentityKey) error {
	if err := s.client.rdb.Del(ctx, tokensKey(key), userInfoKey(key)).Err(); err != nil {
		return domain.ErrStoreUnavailable(err)
	}
	return nil
}
