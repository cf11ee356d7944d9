package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is one stored token.
type Record struct {
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Store keeps tokens per (session, scope).
type Store interface {
	Put(ctx context.Context, sessionID string, scope Scope, rec Record, ttl time.Duration) error
	// Get returns the record and its raw encoding, or (nil, "", nil) when absent.
	Get(ctx context.Context, sessionID string, scope Scope) (*Record, string, error)
	// ConsumeIfUnchanged deletes the record only if it still has the raw
	// encoding observed by Get. It reports whether this caller deleted it.
	ConsumeIfUnchanged(ctx context.Context, sessionID string, scope Scope, raw string) (bool, error)
	Delete(ctx context.Context, sessionID string, scope Scope) error
	All(ctx context.Context, sessionID string) (map[Scope]Record, error)
	Forget(ctx context.Context, sessionID string) error
	Move(ctx context.Context, fromSessionID, toSessionID string) error
}

// RedisStore keeps every token of a session in the hash csrf:{sid}.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var consumeScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if v == ARGV[2] then
	return redis.call('HDEL', KEYS[1], ARGV[1])
end
return 0
`)

var moveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('RENAME', KEYS[1], KEYS[2])
	return 1
end
return 0
`)

// Put writes rec and resets the hash expiry to ttl. The hash therefore lives
// as long as its newest token; older fields are pruned by the Service.
func (s *RedisStore) Put(ctx context.Context, sessionID string, scope Scope, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal csrf token: %w", err)
	}

	key := tokenKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, string(scope), data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store csrf token: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string, scope Scope) (*Record, string, error) {
	raw, err := s.client.HGet(ctx, tokenKey(sessionID), string(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read csrf token: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal csrf token: %w", err)
	}
	return &rec, raw, nil
}

func (s *RedisStore) ConsumeIfUnchanged(ctx context.Context, sessionID string, scope Scope, raw string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{tokenKey(sessionID)}, string(scope), raw).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to consume csrf token: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string, scope Scope) error {
	return s.client.HDel(ctx, tokenKey(sessionID), string(scope)).Err()
}

func (s *RedisStore) All(ctx context.Context, sessionID string) (map[Scope]Record, error) {
	fields, err := s.client.HGetAll(ctx, tokenKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list csrf tokens: %w", err)
	}

	out := make(map[Scope]Record, len(fields))
	for field, raw := range fields {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// undecodable entries are reported as zero records so they age out
			out[Scope(field)] = Record{}
			continue
		}
		out[Scope(field)] = rec
	}
	return out, nil
}

func (s *RedisStore) Forget(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, tokenKey(sessionID)).Err()
}

func (s *RedisStore) Move(ctx context.Context, fromSessionID, toSessionID string) error {
	if err := moveScript.Run(ctx, s.client, []string{tokenKey(fromSessionID), tokenKey(toSessionID)}).Err(); err != nil {
		return fmt.Errorf("failed to move csrf tokens: %w", err)
	}
	return nil
}

func tokenKey(sessionID string) string {
	return "csrf:" + sessionID
}
