package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"im-sync/internal/auth"
)

func newStore(t *testing.T) (*miniredis.Miniredis, auth.TokenStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisTokenStore(client, "im-sync:token:", auth.NewSealer("secret"))
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func jwtExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": 7, "exp": exp.Unix()}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestRedisTokenStore(t *testing.T) {
	ctx := context.Background()
	mr, store := newStore(t)

	_, err := store.Load(ctx, "default")
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)

	token := jwtExpiringAt(t, time.Now().Add(time.Hour))
	require.NoError(t, store.Save(ctx, "default", token))

	// sealed at rest, with the JWT expiry as TTL
	raw, err := mr.Get("im-sync:token:default")
	require.NoError(t, err)
	assert.NotContains(t, raw, token)
	ttl := mr.TTL("im-sync:token:default")
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "ttl %s", ttl)

	got, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, token, got)

	mr.FastForward(time.Hour + time.Second)
	_, err = store.Load(ctx, "default")
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)

	require.NoError(t, store.Save(ctx, "default", "opaque-token"))
	require.NoError(t, store.Delete(ctx, "default"))
	_, err = store.Load(ctx, "default")
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)
}

func TestRedisTokenStoreRefusesExpiredToken(t *testing.T) {
	ctx := context.Background()
	mr, store := newStore(t)

	err := store.Save(ctx, "default", jwtExpiringAt(t, time.Now().Add(-time.Minute)))
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.False(t, mr.Exists("im-sync:token:default"))
}
