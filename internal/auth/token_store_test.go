package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookbase/internal/cache"
)

func TestTokenStore_WithoutRedis(t *testing.T) {
	store := NewTokenStore(nil)
	ctx := context.Background()

	require.NoError(t, store.RevokeAccessToken(ctx, "jti", time.Minute))
	revoked, err := store.IsAccessTokenRevoked(ctx, "jti")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenStore_ExpiredTokenIsNotStored(t *testing.T) {
	store := NewTokenStore(nil)
	assert.NoError(t, store.RevokeAccessToken(context.Background(), "jti", -time.Second))
}

func TestTokenStore_RevokeReportsRedisOutage(t *testing.T) {
	client := cache.New("127.0.0.1:1", "", 0)
	t.Cleanup(func() { _ = client.Close() })
	store := NewTokenStore(client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := store.RevokeAccessToken(ctx, "jti", time.Minute)
	assert.ErrorContains(t, err, "revoke token")
}
