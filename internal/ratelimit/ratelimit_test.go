package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapflag/mapflag-client/internal/errors"
)

func countAllowed(rl *KeyedRateLimiter, key string, calls int) int {
	n := 0
	for range calls {
		if rl.Allow(key) {
			n++
		}
	}
	return n
}

func TestAllow_Burst(t *testing.T) {
	tests := []struct {
		name  string
		rps   float64
		burst int
		calls int
		want  int
	}{
		{"within burst", 1, 3, 3, 3},
		{"beyond burst", 1, 2, 5, 2},
		{"zero rps is unlimited", 0, 1, 50, 50},
		{"burst below one is raised", 1, 0, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst)
			t.Cleanup(rl.Stop)
			assert.Equal(t, tt.want, countAllowed(rl, "query", tt.calls))
		})
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	rl := New(1, 1)
	t.Cleanup(rl.Stop)

	require.True(t, rl.Allow("mutation"))
	assert.False(t, rl.Allow("mutation"))
	assert.True(t, rl.Allow("query"))
	assert.True(t, rl.Allow("127.0.0.1"))
	assert.Equal(t, 3, rl.Len())
}

func TestWait_ImmediateWithinBurst(t *testing.T) {
	rl := New(1, 2)
	t.Cleanup(rl.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, rl.Wait(ctx, "query"))
	require.NoError(t, rl.Wait(ctx, "query"))
}

func TestWait_DeadlineTooShortIsRateLimited(t *testing.T) {
	rl := New(0.1, 1)
	t.Cleanup(rl.Stop)
	require.True(t, rl.Allow("mutation"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx, "mutation")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRateLimited)
}

func TestWait_CanceledContext(t *testing.T) {
	rl := New(1, 1)
	t.Cleanup(rl.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, rl.Wait(ctx, "query"), context.Canceled)
}

func TestEvictIdle(t *testing.T) {
	rl := New(1, 1)
	t.Cleanup(rl.Stop)

	rl.Allow("127.0.0.1")
	rl.Allow("subscription")
	require.Equal(t, 2, rl.Len())

	rl.evictIdle(time.Now().Add(idleTTL / 2))
	assert.Equal(t, 2, rl.Len())

	rl.evictIdle(time.Now().Add(idleTTL + time.Second))
	assert.Zero(t, rl.Len())
}

func TestStop_Idempotent(t *testing.T) {
	rl := New(1, 1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
