package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memoryStore{revoked: make(map[string]time.Time), now: func() time.Time { return now }}
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "a", time.Hour))
	require.NoError(t, store.Revoke(ctx, "b", 0)) // already expired

	revoked, _ = store.IsRevoked(ctx, "a")
	assert.True(t, revoked)
	revoked, _ = store.IsRevoked(ctx, "b")
	assert.False(t, revoked)

	now = now.Add(time.Hour)
	revoked, _ = store.IsRevoked(ctx, "a")
	assert.False(t, revoked)

	// expired ids are dropped on the next revoke
	require.NoError(t, store.Revoke(ctx, "c", time.Minute))
	assert.Len(t, store.revoked, 1)
}
