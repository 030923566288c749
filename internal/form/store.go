package form

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const fieldsKeyPrefix = "form:fields:"

// Store keeps per-session form-field state in a Redis hash. Each write
// refreshes the session TTL so an active form never expires mid-session.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func fieldsKey(sessionID string) string {
	return fieldsKeyPrefix + sessionID
}

// SetField writes one field value and refreshes the session TTL.
func (s *Store) SetField(ctx context.Context, sessionID, field, value string) error {
	key := fieldsKey(sessionID)
	if err := s.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, s.ttl).Err()
}

// Field returns a single field value. Missing fields read as "" with ok=false.
func (s *Store) Field(ctx context.Context, sessionID, field string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, fieldsKey(sessionID), field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Fields returns the whole field map for a session. An unknown session reads
// as an empty map.
func (s *Store) Fields(ctx context.Context, sessionID string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, fieldsKey(sessionID)).Result()
}

// Clear removes all state for a session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, fieldsKey(sessionID)).Err()
}
