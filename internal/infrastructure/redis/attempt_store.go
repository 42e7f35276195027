package redis

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/application/mailauth"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

// AttemptStore manages in-flight authorization attempts in Redis. The state
// token is crypto-random and doubles as the CSRF state parameter; Consume is
// one-time so a replayed callback finds nothing.
type AttemptStore struct {
	client *Client
	ttl    time.Duration
}

func NewAttemptStore(client *Client, ttl time.Duration) *AttemptStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AttemptStore{client: client, ttl: ttl}
}

func attemptKey(state string) string {
	return "mail:attempt:" + state
}

func (s *AttemptStore) Create(ctx context.Context, attempt mailauth.AttemptData) (string, error) {
	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", domain.ErrRandomFailed(err)
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	data, err := json.Marshal(attempt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attempt: %w", err)
	}

	if err := s.client.rdb.Set(ctx, attemptKey(state), data, s.ttl).Err(); err != nil {
		return "", domain.ErrStoreUnavailable(err)
	}
	return state, nil
}

func (s *AttemptStore) Peek(ctx context.Context, state string) (mailauth.AttemptData, error) {
	data, err := s.client.rdb.Get(ctx, attemptKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return mailauth.AttemptData{}, domain.ErrAttemptNotFound()
		}
		return mailauth.AttemptData{}, domain.ErrStoreUnavailable(err)
	}

	var attempt mailauth.AttemptData
	if err := json.Unmarshal(data, &attempt); err != nil {
		return mailauth.AttemptData{}, domain.ErrAttemptNotFound()
	}
	return attempt, nil
}

// Consume reads and deletes the attempt atomically so the PKCE verifier is
// used at most once.
func (s *AttemptStore) Consume(ctx context.Context, state string) (mailauth.AttemptData, error) {
	key := attemptKey(state)

	var attempt mailauth.AttemptData
	err := s.client.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return domain.ErrAttemptNotFound()
			}
			return err
		}

		if err := json.Unmarshal(data, &attempt); err != nil {
			return domain.ErrAttemptNotFound()
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)

	if err != nil {
		return mailauth.AttemptData{}, err
	}
	return attempt, nil
}
