package api

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserRateLimiter_RefillsOverTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newUserRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	require.True(t, rl.allow("u1"))
	require.False(t, rl.allow("u1"))
	require.True(t, rl.allow("u2"))

	now = now.Add(time.Second)

	require.True(t, rl.allow("u1"))
}

func TestUserRateLimiter_PrunesIdleKeys(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newUserRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	for i := range maxLimiterKeys {
		rl.allow(fmt.Sprintf("user-%d", i))
	}

	require.Len(t, rl.limiters, maxLimiterKeys)

	now = now.Add(limiterIdleTTL + time.Second)
	rl.allow("fresh")

	require.Len(t, rl.limiters, 1)
}

func TestUserRateLimiter_EvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newUserRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	for i := range maxLimiterKeys {
		rl.allow(fmt.Sprintf("user-%d", i))
		now = now.Add(time.Millisecond)
	}

	for i := range 50 {
		rl.allow(fmt.Sprintf("flood-%d", i))
		require.LessOrEqual(t, len(rl.limiters), maxLimiterKeys)
	}

	require.Len(t, rl.limiters, maxLimiterKeys)
	require.NotContains(t, rl.limiters, "user-0")
	require.Contains(t, rl.limiters, "flood-49")
	require.Contains(t, rl.limiters, fmt.Sprintf("user-%d", maxLimiterKeys-1))
}
