package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "oauth:pkce:"

// RedisStore keeps PKCE sessions in a shared cache so multiple API processes
// can serve the callback for a connect started elsewhere.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Put(ctx context.Context, id string, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+id, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Take(ctx context.Context, id string) (Session, bool, error) {
	data, err := r.client.GetDel(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("take session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return s, true, nil
}

// SweepExpired is a no-op: Redis expires entries server-side via the key TTL.
func (r *RedisStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
