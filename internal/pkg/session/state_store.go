// internal/pkg/session/state_store.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore holds the per-request session state.
type StateStore interface {
	// Load returns (nil, nil) when no state exists for sessionID.
	Load(ctx context.Context, sessionID string) (*SessionData, error)
	Save(ctx context.Context, sess *SessionData) error
	// Replace stores sess under its new ID and removes oldID in one step.
	Replace(ctx context.Context, oldID string, sess *SessionData) error
	Delete(ctx context.Context, sessionID string, userID int64) error
	// PurgeUser drops every state of a user and returns the removed IDs.
	PurgeUser(ctx context.Context, userID int64) ([]string, error)
	// MarkRevoked records that every session of userID created at or before at is dead.
	MarkRevoked(ctx context.Context, userID int64, at time.Time) error
	// RevokedAt returns the latest revocation mark of userID, or the zero time.
	RevokedAt(ctx context.Context, userID int64) (time.Time, error)
}

// RedisStateStore keeps state at sess:{sid} plus a per-user index set.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, ttl: ttl}
}

func (s *RedisStateStore) Load(ctx context.Context, sessionID string) (*SessionData, error) {
	data, err := s.client.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess SessionData
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	sess.ID = sessionID
	return &sess, nil
}

func (s *RedisStateStore) Save(ctx context.Context, sess *SessionData) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	s.put(ctx, pipe, sess, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Replace(ctx context.Context, oldID string, sess *SessionData) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, stateKey(oldID))
	pipe.SRem(ctx, userIndexKey(sess.UserID), oldID)
	s.put(ctx, pipe, sess, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to regenerate session in redis: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Delete(ctx context.Context, sessionID string, userID int64) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, stateKey(sessionID))
	if userID > 0 {
		pipe.SRem(ctx, userIndexKey(userID), sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (s *RedisStateStore) PurgeUser(ctx context.Context, userID int64) ([]string, error) {
	idx := userIndexKey(userID)
	ids, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, stateKey(id))
	}
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to purge user sessions: %w", err)
	}
	return ids, nil
}

func (s *RedisStateStore) MarkRevoked(ctx context.Context, userID int64, at time.Time) error {
	if err := s.client.Set(ctx, revokedKey(userID), at.UnixNano(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark sessions revoked: %w", err)
	}
	return nil
}

func (s *RedisStateStore) RevokedAt(ctx context.Context, userID int64) (time.Time, error) {
	n, err := s.client.Get(ctx, revokedKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load revocation mark: %w", err)
	}
	return time.Unix(0, n), nil
}

func (s *RedisStateStore) put(ctx context.Context, pipe redis.Pipeliner, sess *SessionData, data []byte) {
	idx := userIndexKey(sess.UserID)
	pipe.Set(ctx, stateKey(sess.ID), data, s.ttl)
	pipe.SAdd(ctx, idx, sess.ID)
	pipe.Expire(ctx, idx, s.ttl)
}

func stateKey(sessionID string) string {
	return "sess:" + sessionID
}

func revokedKey(userID int64) string {
	return "sess:revoked:" + strconv.FormatInt(userID, 10)
}

func userIndexKey(userID int64) string {
	return "sess:user:" + strconv.FormatInt(userID, 10)
}
