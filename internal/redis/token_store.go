package redis

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"im-sync/internal/auth"
)

// redisTokenStore is the Redis implementation of auth.TokenStore. It lets
// several client processes on one host share a login.
type redisTokenStore struct {
	client *redis.Client
	prefix string
	sealer *auth.Sealer
}

// NewRedisTokenStore creates a token store on client. Keys are prefixed with
// prefix. The store owns client and closes it on Close.
func NewRedisTokenStore(client *redis.Client, prefix string, sealer *auth.Sealer) auth.TokenStore {
	return &redisTokenStore{client: client, prefix: prefix, sealer: sealer}
}

// Save stores the sealed token. A JWT expiry, if present, becomes the key TTL.
func (r *redisTokenStore) Save(ctx context.Context, key string, token string) error {
	box, err := r.sealer.Seal([]byte(token))
	if err != nil {
		return err
	}
	var ttl time.Duration
	if id, err := auth.ParseIdentity(token); err == nil && !id.ExpiresAt.IsZero() {
		ttl = time.Until(id.ExpiresAt)
		if ttl <= 0 {
			return auth.ErrTokenExpired
		}
	}
	if err := r.client.Set(ctx, r.prefix+key, base64.StdEncoding.EncodeToString(box), ttl).Err(); err != nil {
		return fmt.Errorf("save token %s to redis: %w", key, err)
	}
	return nil
}

// Load returns auth.ErrTokenNotFound when the key does not exist.
func (r *redisTokenStore) Load(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", auth.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load token %s from redis: %w", key, err)
	}
	box, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return "", fmt.Errorf("decode token %s: %w", key, err)
	}
	out, err := r.sealer.Open(box)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (r *redisTokenStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("delete token %s from redis: %w", key, err)
	}
	return nil
}

func (r *redisTokenStore) Close() error {
	return r.client.Close()
}
