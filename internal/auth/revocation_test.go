package auth

import (
	"context"
	"testing"
	"time"

	"github.com/carechat/server/internal/ephemeral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevocationList_BlacklistUntilExpiry(t *testing.T) {
	ctx := context.Background()
	clock := ephemeral.NewManualClock(time.Now())
	list := NewRevocationList(ephemeral.NewMemoryStore(clock.Now))

	require.NoError(t, list.Blacklist(ctx, "tok", 90*time.Second))

	revoked, err := list.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = list.IsBlacklisted(ctx, "other")
	require.NoError(t, err)
	assert.False(t, revoked)

	clock.Advance(90 * time.Second)
	revoked, err = list.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocationList_NonPositiveTTLIsNoop(t *testing.T) {
	ctx := context.Background()
	store := ephemeral.NewMemoryStore(nil)
	list := NewRevocationList(store)

	require.NoError(t, list.Blacklist(ctx, "expired", 0))
	require.NoError(t, list.Blacklist(ctx, "long-expired", -time.Minute))

	assert.Zero(t, store.Len())
}
