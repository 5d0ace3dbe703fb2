//go:build integration_test || all_tests

package auth

import (
	"testing"
	"time"

	pkgtesting "github.com/2beens/fittrack/pkg/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_RedisRoundtrip(t *testing.T) {
	ctx, rdb := pkgtesting.GetRedisClientAndCtx(t)
	defer func() {
		require.NoError(t, rdb.Close())
	}()

	store := NewSessionStore(time.Hour, rdb)
	identity := Identity{
		ID:       1,
		Username: "mila",
		Role:     RoleUser,
	}

	token, err := store.Add(ctx, identity, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, token)
	defer func() {
		// in case the test fails before the explicit Remove
		_, _ = store.Remove(ctx, token)
	}()

	gotIdentity, err := store.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, identity, *gotIdentity)

	removed, err := store.Remove(ctx, token)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = store.Get(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_RedisScanAndClean(t *testing.T) {
	ctx, rdb := pkgtesting.GetRedisClientAndCtx(t)
	defer func() {
		require.NoError(t, rdb.Close())
	}()

	store := NewSessionStore(time.Minute, rdb)
	identity := Identity{
		ID:       2,
		Username: "serj",
		Role:     RoleAdmin,
	}

	// expired session, created before the store TTL window
	expiredToken, err := store.Add(ctx, identity, time.Now().Add(-2*time.Minute))
	require.NoError(t, err)
	freshToken, err := store.Add(ctx, identity, time.Now())
	require.NoError(t, err)
	defer func() {
		_, _ = store.Remove(ctx, expiredToken)
		_, _ = store.Remove(ctx, freshToken)
	}()

	store.ScanAndClean(ctx)

	_, err = store.Get(ctx, expiredToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	gotIdentity, err := store.Get(ctx, freshToken)
	require.NoError(t, err)
	assert.Equal(t, identity, *gotIdentity)
}
