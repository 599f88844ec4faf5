// Package redis provides a Redis-backed session store. Sessions expire
// server-side via key TTL, so no sweeper is needed.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/agora-social/agora/internal/app/domain/session"
	"github.com/agora-social/agora/internal/app/storage"
)

const keyPrefix = "agora:session:"

// SessionStore keeps sessions in Redis under agora:session:<token>.
type SessionStore struct {
	client *goredis.Client
}

var _ storage.SessionStore = (*SessionStore)(nil)

// New creates a SessionStore on top of an existing client.
func New(client *goredis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) CreateSession(ctx context.Context, sess session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, keyPrefix+sess.Token, payload, ttl).Err()
}

func (s *SessionStore) GetSession(ctx context.Context, token string) (session.Session, error) {
	payload, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, goredis.Nil) {
		return session.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}

	var sess session.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return session.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, keyPrefix+token).Err()
}
