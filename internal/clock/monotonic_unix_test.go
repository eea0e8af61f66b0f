//go:build linux || darwin || freebsd

package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMonotonicNow_MatchesClockMonotonic(t *testing.T) {
	var before, after unix.Timespec
	require.NoError(t, unix.ClockGettime(unix.CLOCK_MONOTONIC, &before))
	now := MonotonicNow()
	require.NoError(t, unix.ClockGettime(unix.CLOCK_MONOTONIC, &after))

	assert.GreaterOrEqual(t, now, before.Nano())
	assert.LessOrEqual(t, now, after.Nano())
}
