package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i)
	}
	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	res, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "keys are independent")
}

func TestMemoryLimiterRefills(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(2, 40*time.Millisecond)

	for i := 0; i < 2; i++ {
		res, _ := l.Allow(ctx, "k")
		require.True(t, res.Allowed)
	}
	res, _ := l.Allow(ctx, "k")
	assert.False(t, res.Allowed)

	time.Sleep(60 * time.Millisecond)
	res, _ = l.Allow(ctx, "k")
	assert.True(t, res.Allowed)
}
