package metrics

import (
	"fmt"
	"strconv"

	"github.com/open-beagle/bdwind-framerelease/internal/framerelease"
)

// FrameReleaseMetrics 帧释放相关指标
type FrameReleaseMetrics struct {
	frames     Counter
	resyncs    Counter
	adjustment Histogram
	observers  Gauge
	released   Counter
	dropped    Counter
	lateness   Histogram
}

// NewFrameReleaseMetrics 在 Metrics 上注册帧释放指标
func NewFrameReleaseMetrics(m Metrics) (*FrameReleaseMetrics, error) {
	frames, err := m.RegisterCounter("frame_release_frames_total",
		"Frames passed through the release time adjuster", []string{"stream", "snapped"})
	if err != nil {
		return nil, fmt.Errorf("failed to register frames counter: %w", err)
	}

	resyncs, err := m.RegisterCounter("frame_release_resyncs_total",
		"Adjuster synchronization points by reason", []string{"stream", "reason"})
	if err != nil {
		return nil, fmt.Errorf("failed to register resyncs counter: %w", err)
	}

	adjustment, err := m.RegisterHistogram("frame_release_adjustment_ms",
		"Absolute difference between adjusted and unadjusted release time",
		[]string{"stream"}, []float64{0.1, 0.5, 1, 2, 4, 8, 16, 33, 66})
	if err != nil {
		return nil, fmt.Errorf("failed to register adjustment histogram: %w", err)
	}

	observers, err := m.RegisterGauge("vsync_observers",
		"Current vsync sampler observer count", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register observers gauge: %w", err)
	}

	released, err := m.RegisterCounter("scheduler_frames_released_total",
		"Frames written to the sink", []string{"stream"})
	if err != nil {
		return nil, fmt.Errorf("failed to register released counter: %w", err)
	}

	dropped, err := m.RegisterCounter("scheduler_frames_dropped_total",
		"Frames dropped for being late", []string{"stream"})
	if err != nil {
		return nil, fmt.Errorf("failed to register dropped counter: %w", err)
	}

	lateness, err := m.RegisterHistogram("scheduler_lateness_ms",
		"Time between the adjusted release time and the actual release decision",
		[]string{"stream"}, []float64{-16, -8, -4, -1, 0, 1, 4, 8, 16, 30, 60})
	if err != nil {
		return nil, fmt.Errorf("failed to register lateness histogram: %w", err)
	}

	return &FrameReleaseMetrics{
		frames:     frames,
		resyncs:    resyncs,
		adjustment: adjustment,
		observers:  observers,
		released:   released,
		dropped:    dropped,
		lateness:   lateness,
	}, nil
}

// ObserverGauge vsync 采样器观察者数量
func (m *FrameReleaseMetrics) ObserverGauge() Gauge {
	return m.observers
}

// Stream 返回指定流的记录器
func (m *FrameReleaseMetrics) Stream(stream string) *StreamRecorder {
	return &StreamRecorder{metrics: m, stream: stream}
}

// StreamRecorder 单个流的指标记录器
// 同时满足 framerelease.Recorder 与调度器的记录接口。
type StreamRecorder struct {
	metrics *FrameReleaseMetrics
	stream  string
}

var _ framerelease.Recorder = (*StreamRecorder)(nil)

// ObserveAdjustment 实现 framerelease.Recorder
func (r *StreamRecorder) ObserveAdjustment(unadjustedNs, adjustedNs int64, snapped bool) {
	r.metrics.frames.Inc(r.stream, strconv.FormatBool(snapped))

	delta := adjustedNs - unadjustedNs
	if delta < 0 {
		delta = -delta
	}
	r.metrics.adjustment.Observe(nsToMs(delta), r.stream)
}

// ObserveResync 实现 framerelease.Recorder
func (r *StreamRecorder) ObserveResync(reason framerelease.SyncReason) {
	r.metrics.resyncs.Inc(r.stream, string(reason))
}

// ObserveRelease 记录已写出的帧，latenessNs 为负表示提前
func (r *StreamRecorder) ObserveRelease(latenessNs int64) {
	r.metrics.released.Inc(r.stream)
	r.metrics.lateness.Observe(nsToMs(latenessNs), r.stream)
}

// ObserveDrop 记录被丢弃的帧
func (r *StreamRecorder) ObserveDrop(latenessNs int64) {
	r.metrics.dropped.Inc(r.stream)
	r.metrics.lateness.Observe(nsToMs(latenessNs), r.stream)
}

func nsToMs(ns int64) float64 {
	return float64(ns) / 1e6
}
