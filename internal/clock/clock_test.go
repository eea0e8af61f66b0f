package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonotonicNow_NonDecreasing(t *testing.T) {
	prev := MonotonicNow()
	for i := 0; i < 1000; i++ {
		now := MonotonicNow()
		require.GreaterOrEqual(t, now, prev)
		prev = now
	}
}

func TestSystem_SleepUntil(t *testing.T) {
	c := System{}

	start := c.NowNs()
	require.NoError(t, c.SleepUntil(context.Background(), start+int64(5*time.Millisecond)))
	assert.GreaterOrEqual(t, c.NowNs()-start, int64(5*time.Millisecond))

	// 已过期的截止时间立即返回
	assert.NoError(t, c.SleepUntil(context.Background(), start))
}

func TestSystem_SleepUntilCancelled(t *testing.T) {
	c := System{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.SleepUntil(ctx, c.NowNs()+int64(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}
