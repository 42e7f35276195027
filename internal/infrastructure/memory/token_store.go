package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

// TokenStore is the in-memory twin of the redis store, used in dev and
// tests. Values are kept as JSON to exercise the same malformed-payload
// behavior as the real store.
type TokenStore struct {
	mu       sync.Mutex
	tokens   map[domain.IdentityKey][]byte
	userInfo map[domain.IdentityKey][]byte
}

func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens:   make(map[domain.IdentityKey][]byte),
		userInfo: make(map[domain.IdentityKey][]byte),
	}
}

func (s *TokenStore) PutTokens(ctx context.Context, key domain.IdentityKey, t domain.AuthTokens) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = data
	return nil
}

func (s *TokenStore) GetTokens(ctx context.Context, key domain.IdentityKey) (*domain.AuthTokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.tokens[key]
	if !ok {
		return nil, nil
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
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInfo[key] = data
	return nil
}

func (s *TokenStore) GetUserInfo(ctx context.Context, key domain.IdentityKey) (*domain.UserInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.userInfo[key]
	if !ok {
		return nil, nil
	}
	var u domain.UserInfo
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, nil
	}
	return &u, nil
}

func (s *TokenStore) Clear(ctx context.Context, key domain.IdentityKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	delete(s.userInfo, key)
	return nil
}

// CorruptTokens overwrites the stored token payload with junk. Test hook for
// the malformed-reads-as-absent contract.
func (s *TokenStore) CorruptTokens(key domain.IdentityKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = []byte("{not json")
}
