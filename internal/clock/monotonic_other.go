//go:build !linux && !darwin && !freebsd

package clock

import "time"

var processStart = time.Now()

// MonotonicNow 返回进程启动以来的单调时间（纳秒）
func MonotonicNow() int64 {
	return int64(time.Since(processStart))
}
