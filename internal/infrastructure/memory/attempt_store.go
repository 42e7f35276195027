package memory

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/application/mailauth"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

type AttemptStore struct {
	mu       sync.Mutex
	attempts map[string]attemptEntry
	ttl      time.Duration
}

type attemptEntry struct {
	data      mailauth.AttemptData
	expiresAt time.Time
}

func NewAttemptStore(ttl time.Duration) *AttemptStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AttemptStore{
		attempts: make(map[string]attemptEntry),
		ttl:      ttl,
	}
}

func (s *AttemptStore) Create(ctx context.Context, data mailauth.AttemptData) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Cleanup expired
	now := time.Now()
	for k, v := range s.attempts {
		if now.After(v.expiresAt) {
			delete(s.attempts, k)
		}
	}

	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", domain.ErrRandomFailed(err)
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	s.attempts[state] = attemptEntry{
		data:      data,
		expiresAt: now.Add(s.ttl),
	}
	return state, nil
}

func (s *AttemptStore) Peek(ctx context.Context, state string) (mailauth.AttemptData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.attempts[state]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(s.attempts, state)
		return mailauth.AttemptData{}, domain.ErrAttemptNotFound()
	}
	return entry.data, nil
}

func (s *AttemptStore) Consume(ctx context.Context, state string) (mailauth.AttemptData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.attempts[state]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(s.attempts, state)
		return mailauth.AttemptData{}, domain.ErrAttemptNotFound()
	}

	delete(s.attempts, state) // One-time use
	return entry.data, nil
}
