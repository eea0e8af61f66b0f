//go:build linux || darwin || freebsd

package clock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MonotonicNow 返回 CLOCK_MONOTONIC 时间（纳秒）
// 读取失败时 panic，不与其他时钟源混用。
func MonotonicNow() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic(fmt.Sprintf("clock: CLOCK_MONOTONIC unavailable: %v", err))
	}
	return ts.Nano()
}
