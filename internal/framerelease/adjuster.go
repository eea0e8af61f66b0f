package framerelease

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
)

const (
	// RefreshRateUnknown 显示刷新率未知，调整器以非对齐模式运行
	RefreshRateUnknown = -1.0

	maxAllowedDriftNs      = 20_000_000
	vsyncOffsetPercentage  = 80
	minFramesForAdjustment = 6
	nanosPerSecond         = 1_000_000_000
)

var (
	// ErrInvalidRefreshRate 无效刷新率（零、负数、NaN 或 Inf）
	ErrInvalidRefreshRate = errors.New("framerelease: invalid refresh rate")

	// ErrNilSampler 对齐模式缺少 vsync 采样器
	ErrNilSampler = errors.New("framerelease: vsync sampler is required in aligned mode")
)

// VsyncSampler 共享 vsync 采样器接口
type VsyncSampler interface {
	// AddObserver 注册观察者
	AddObserver()

	// RemoveObserver 注销观察者
	RemoveObserver()

	// SampledVsyncTimeNs 最近一次采样的 vsync 时间戳，未采样时为 0
	SampledVsyncTimeNs() int64
}

// SyncReason 重新同步原因
type SyncReason string

const (
	// SyncReasonInitial 启用后的首次同步
	SyncReasonInitial SyncReason = "initial"

	// SyncReasonDrift 漂移过大导致的重新同步
	SyncReasonDrift SyncReason = "drift"
)

// SyncEvent 同步事件
type SyncEvent struct {
	FramePresentationTimeNs int64
	UnadjustedReleaseTimeNs int64
	Reason                  SyncReason
}

// SyncListener 同步事件监听器
type SyncListener func(SyncEvent)

// Recorder 调整结果记录接口（由监控层实现）
type Recorder interface {
	// ObserveAdjustment 记录一次调整
	ObserveAdjustment(unadjustedReleaseTimeNs, adjustedReleaseTimeNs int64, snapped bool)

	// ObserveResync 记录一次重新同步
	ObserveResync(reason SyncReason)
}

// Stats 调整器统计信息
type Stats struct {
	HaveSync      bool  `json:"have_sync"`
	FrameCount    int64 `json:"frame_count"`
	Resyncs       int64 `json:"resyncs"`
	Adjustments   int64 `json:"adjustments"`
	SnappedFrames int64 `json:"snapped_frames"`
}

// Option 调整器选项
type Option func(*Adjuster)

// WithSyncListener 设置同步事件监听器
func WithSyncListener(listener SyncListener) Option {
	return func(a *Adjuster) {
		a.onSynced = listener
	}
}

// WithLogger 设置日志器
func WithLogger(logger *logrus.Entry) Option {
	return func(a *Adjuster) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRecorder 设置结果记录器
func WithRecorder(recorder Recorder) Option {
	return func(a *Adjuster) {
		a.recorder = recorder
	}
}

// Adjuster 帧释放时间调整器
// 平滑帧呈现时间戳并将释放时间对齐到显示器 vsync。每个视频流一个实例，非并发安全。
type Adjuster struct {
	sampler         VsyncSampler
	vsyncEnabled    bool
	vsyncDurationNs int64
	vsyncOffsetNs   int64

	lastFramePresentationTimeUs int64
	adjustedLastFrameTimeNs     int64
	pendingAdjustedFrameTimeNs  int64

	haveSync                    bool
	syncedOnce                  bool
	syncUnadjustedReleaseTimeNs int64
	syncFramePresentationTimeNs int64
	frameCount                  int64

	resyncs       int64
	adjustments   int64
	snappedFrames int64

	onSynced SyncListener
	recorder Recorder
	logger   *logrus.Entry
}

// New 创建调整器
// refreshRateHz 为 RefreshRateUnknown 时只做平滑，不做 vsync 对齐。
func New(refreshRateHz float64, sampler VsyncSampler, opts ...Option) (*Adjuster, error) {
	a := newAdjuster(opts)
	if refreshRateHz == RefreshRateUnknown {
		return a, nil
	}

	if math.IsNaN(refreshRateHz) || math.IsInf(refreshRateHz, 0) || refreshRateHz <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshRate, refreshRateHz)
	}
	if sampler == nil {
		return nil, ErrNilSampler
	}

	vsyncDurationNs := int64(nanosPerSecond / refreshRateHz)
	if vsyncDurationNs <= 0 {
		return nil, fmt.Errorf("%w: %v (vsync interval rounds to zero)", ErrInvalidRefreshRate, refreshRateHz)
	}

	a.sampler = sampler
	a.vsyncEnabled = true
	a.vsyncDurationNs = vsyncDurationNs
	a.vsyncOffsetNs = vsyncDurationNs * vsyncOffsetPercentage / 100
	return a, nil
}

// NewUnaligned 创建只做平滑的调整器
func NewUnaligned(opts ...Option) *Adjuster {
	return newAdjuster(opts)
}

func newAdjuster(opts []Option) *Adjuster {
	a := &Adjuster{
		logger: config.GetLoggerWithPrefix("frame-release"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enable 启用调整器
func (a *Adjuster) Enable() {
	a.haveSync = false
	a.syncedOnce = false
	if a.vsyncEnabled {
		a.sampler.AddObserver()
	}
	a.logger.Debugf("Frame release adjuster enabled (vsync aligned: %v)", a.vsyncEnabled)
}

// Disable 停用调整器
func (a *Adjuster) Disable() {
	if a.vsyncEnabled {
		a.sampler.RemoveObserver()
	}
	a.logger.Debug("Frame release adjuster disabled")
}

// AdjustReleaseTime 调整一帧的释放时间
// framePresentationTimeUs 为帧呈现时间（微秒），unadjustedReleaseTimeNs 为未调整的释放时间
// （纳秒，单调时钟）。返回调整后的释放时间（纳秒，同一时钟）。
func (a *Adjuster) AdjustReleaseTime(framePresentationTimeUs, unadjustedReleaseTimeNs int64) int64 {
	framePresentationTimeNs := framePresentationTimeUs * 1000

	// 在有足够信息之前不做调整
	adjustedFrameTimeNs := framePresentationTimeNs
	adjustedReleaseTimeNs := unadjustedReleaseTimeNs

	if a.haveSync {
		// 是否进入下一帧
		if framePresentationTimeUs != a.lastFramePresentationTimeUs {
			a.frameCount++
			a.adjustedLastFrameTimeNs = a.pendingAdjustedFrameTimeNs
		}

		if a.frameCount >= minFramesForAdjustment {
			// 自上次同步以来的平均帧间隔，精度高于毫秒级的原始时间戳
			averageFrameDurationNs := (framePresentationTimeNs - a.syncFramePresentationTimeNs) / a.frameCount
			candidateAdjustedFrameTimeNs := a.adjustedLastFrameTimeNs + averageFrameDurationNs

			if a.isDriftTooLarge(candidateAdjustedFrameTimeNs, unadjustedReleaseTimeNs) {
				a.haveSync = false
			} else {
				adjustedFrameTimeNs = candidateAdjustedFrameTimeNs
				adjustedReleaseTimeNs = a.syncUnadjustedReleaseTimeNs + adjustedFrameTimeNs - a.syncFramePresentationTimeNs
				a.adjustments++
			}
		} else if a.isDriftTooLarge(framePresentationTimeNs, unadjustedReleaseTimeNs) {
			a.haveSync = false
		}
	}

	if !a.haveSync {
		a.resync(framePresentationTimeNs, unadjustedReleaseTimeNs)
	}

	a.lastFramePresentationTimeUs = framePresentationTimeUs
	a.pendingAdjustedFrameTimeNs = adjustedFrameTimeNs

	if !a.vsyncEnabled {
		a.record(unadjustedReleaseTimeNs, adjustedReleaseTimeNs, false)
		return adjustedReleaseTimeNs
	}
	sampledVsyncTimeNs := a.sampler.SampledVsyncTimeNs()
	if sampledVsyncTimeNs == 0 {
		a.record(unadjustedReleaseTimeNs, adjustedReleaseTimeNs, false)
		return adjustedReleaseTimeNs
	}

	// 目标 vsync，提前一个偏移量释放，保证落在前一个 vsync 之后
	snappedTimeNs := closestVsync(adjustedReleaseTimeNs, sampledVsyncTimeNs, a.vsyncDurationNs)
	releaseTimeNs := snappedTimeNs - a.vsyncOffsetNs
	a.snappedFrames++
	a.record(unadjustedReleaseTimeNs, releaseTimeNs, true)

	a.logger.Tracef("Adjusted release time: pts=%dus unadjusted=%dns adjusted=%dns vsync=%dns",
		framePresentationTimeUs, unadjustedReleaseTimeNs, releaseTimeNs, snappedTimeNs)
	return releaseTimeNs
}

func (a *Adjuster) resync(framePresentationTimeNs, unadjustedReleaseTimeNs int64) {
	reason := SyncReasonDrift
	if !a.syncedOnce {
		reason = SyncReasonInitial
	}

	a.syncFramePresentationTimeNs = framePresentationTimeNs
	a.syncUnadjustedReleaseTimeNs = unadjustedReleaseTimeNs
	a.frameCount = 0
	a.haveSync = true
	a.syncedOnce = true
	a.resyncs++

	if reason == SyncReasonDrift {
		a.logger.Debugf("Frame release resynced after drift: pts=%dns release=%dns",
			framePresentationTimeNs, unadjustedReleaseTimeNs)
	}
	if a.recorder != nil {
		a.recorder.ObserveResync(reason)
	}
	if a.onSynced != nil {
		a.onSynced(SyncEvent{
			FramePresentationTimeNs: framePresentationTimeNs,
			UnadjustedReleaseTimeNs: unadjustedReleaseTimeNs,
			Reason:                  reason,
		})
	}
}

func (a *Adjuster) record(unadjustedReleaseTimeNs, adjustedReleaseTimeNs int64, snapped bool) {
	if a.recorder != nil {
		a.recorder.ObserveAdjustment(unadjustedReleaseTimeNs, adjustedReleaseTimeNs, snapped)
	}
}

// isDriftTooLarge 呈现时间与释放时间自同步点以来的推进差是否超过阈值
func (a *Adjuster) isDriftTooLarge(frameTimeNs, releaseTimeNs int64) bool {
	elapsedFrameTimeNs := frameTimeNs - a.syncFramePresentationTimeNs
	elapsedReleaseTimeNs := releaseTimeNs - a.syncUnadjustedReleaseTimeNs
	drift := elapsedReleaseTimeNs - elapsedFrameTimeNs
	if drift < 0 {
		drift = -drift
	}
	return drift > maxAllowedDriftNs
}

// closestVsync 返回离 releaseTime 最近的 vsync 时间，距离相等时取较早的一个
func closestVsync(releaseTime, sampledVsyncTime, vsyncDuration int64) int64 {
	vsyncCount := (releaseTime - sampledVsyncTime) / vsyncDuration
	snappedTimeNs := sampledVsyncTime + vsyncDuration*vsyncCount

	var snappedBeforeNs, snappedAfterNs int64
	if releaseTime <= snappedTimeNs {
		snappedBeforeNs = snappedTimeNs - vsyncDuration
		snappedAfterNs = snappedTimeNs
	} else {
		snappedBeforeNs = snappedTimeNs
		snappedAfterNs = snappedTimeNs + vsyncDuration
	}

	snappedAfterDiff := snappedAfterNs - releaseTime
	snappedBeforeDiff := releaseTime - snappedBeforeNs
	if snappedAfterDiff < snappedBeforeDiff {
		return snappedAfterNs
	}
	return snappedBeforeNs
}

// VsyncEnabled 是否启用 vsync 对齐
func (a *Adjuster) VsyncEnabled() bool {
	return a.vsyncEnabled
}

// VsyncDurationNs vsync 间隔（纳秒），非对齐模式为 0
func (a *Adjuster) VsyncDurationNs() int64 {
	return a.vsyncDurationNs
}

// VsyncOffsetNs 释放偏移（纳秒），非对齐模式为 0
func (a *Adjuster) VsyncOffsetNs() int64 {
	return a.vsyncOffsetNs
}

// Stats 获取统计信息
func (a *Adjuster) Stats() Stats {
	return Stats{
		HaveSync:      a.haveSync,
		FrameCount:    a.frameCount,
		Resyncs:       a.resyncs,
		Adjustments:   a.adjustments,
		SnappedFrames: a.snappedFrames,
	}
}
