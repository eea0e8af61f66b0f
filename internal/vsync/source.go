package vsync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/open-beagle/bdwind-framerelease/internal/clock"
)

// ErrInvalidRefreshRate 软件 vsync 源的刷新率无效
var ErrInvalidRefreshRate = errors.New("vsync: invalid refresh rate")

// SoftwareSource 软件 vsync 源
// 以固定刷新率生成与单调时钟相位对齐的 vsync 时间戳，用于没有平台帧回调的环境。
type SoftwareSource struct {
	periodNs int64
	epochNs  int64
	now      func() int64
}

// NewSoftwareSource 创建软件 vsync 源
func NewSoftwareSource(refreshRateHz float64) (*SoftwareSource, error) {
	if math.IsNaN(refreshRateHz) || math.IsInf(refreshRateHz, 0) || refreshRateHz <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshRate, refreshRateHz)
	}

	periodNs := int64(float64(time.Second) / refreshRateHz)
	if periodNs <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshRate, refreshRateHz)
	}

	return &SoftwareSource{
		periodNs: periodNs,
		epochNs:  clock.MonotonicNow(),
		now:      clock.MonotonicNow,
	}, nil
}

// Period vsync 间隔
func (s *SoftwareSource) Period() time.Duration {
	return time.Duration(s.periodNs)
}

// next 严格晚于 nowNs 的下一个 vsync
func (s *SoftwareSource) next(nowNs int64) int64 {
	elapsed := nowNs - s.epochNs
	if elapsed < 0 {
		return s.epochNs
	}
	return s.epochNs + (elapsed/s.periodNs+1)*s.periodNs
}

// WaitVsync 实现 Source
func (s *SoftwareSource) WaitVsync(ctx context.Context) (int64, error) {
	nowNs := s.now()
	nextNs := s.next(nowNs)

	timer := time.NewTimer(time.Duration(nextNs - nowNs))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return nextNs, nil
	}
}
