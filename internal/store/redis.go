package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
)

const sessionRetention = 24 * time.Hour

// RedisStore persists sessions as JSON under session:<id>.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) Create(ctx context.Context, session *model.Session) error {
	return s.save(ctx, session)
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	data, err := s.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Update does a read-modify-write of the stored JSON. Writers for a
// session are either the single pipeline goroutine or a short-lived
// control request touching disjoint fields, so no CAS loop is needed.
func (s *RedisStore) Update(ctx context.Context, sessionID string, update SessionUpdate) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	apply(session, update)
	return s.save(ctx, session)
}

func (s *RedisStore) save(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.redis.Set(ctx, sessionKey(session.ID), data, sessionRetention).Err()
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
