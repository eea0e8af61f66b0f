package clock

import (
	"context"
	"time"
)

// Clock 单调时钟接口（纳秒）
type Clock interface {
	// NowNs 当前单调时间
	NowNs() int64

	// SleepUntil 休眠到指定单调时间，ctx 取消时提前返回
	SleepUntil(ctx context.Context, deadlineNs int64) error
}

// System 基于系统单调时钟的实现
type System struct{}

// NowNs 实现 Clock
func (System) NowNs() int64 {
	return MonotonicNow()
}

// SleepUntil 实现 Clock
func (System) SleepUntil(ctx context.Context, deadlineNs int64) error {
	wait := time.Duration(deadlineNs - MonotonicNow())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
