package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/clock"
	"github.com/open-beagle/bdwind-framerelease/internal/config"
	"github.com/open-beagle/bdwind-framerelease/internal/framerelease"
)

var (
	// ErrNotStarted 调度器尚未锚定播放时钟
	ErrNotStarted = errors.New("scheduler: not started")

	// ErrNilSink 未提供输出
	ErrNilSink = errors.New("scheduler: sink is required")
)

// Frame 待释放的已解码帧
type Frame struct {
	PresentationTimeUs int64
	Data               []byte
}

// Sink 帧输出
type Sink interface {
	WriteFrame(frame Frame, duration time.Duration) error
}

// Recorder 释放结果记录接口
type Recorder interface {
	ObserveRelease(latenessNs int64)
	ObserveDrop(latenessNs int64)
}

// Result 单帧释放结果
type Result struct {
	UnadjustedReleaseNs int64
	AdjustedReleaseNs   int64
	// LatenessNs 决策时刻相对调整后释放时间的延迟，负值表示提前
	LatenessNs int64
	Dropped    bool
}

// Stats 调度统计
type Stats struct {
	StreamID    string
	Started     bool
	Released    int64
	Dropped     int64
	LastEarlyNs int64
	LastLateNs  int64
	Reanchors   int64
	Adjuster    framerelease.Stats
}

// Option 调度器选项
type Option func(*Scheduler)

// WithClock 设置时钟
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithRecorder 设置结果记录器
func WithRecorder(recorder Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = recorder
	}
}

// WithStreamID 指定流 ID
func WithStreamID(id string) Option {
	return func(s *Scheduler) {
		s.streamID = id
	}
}

// WithLogger 设置日志
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Scheduler 帧释放调度器
// 根据播放时钟计算每帧的释放时间，经 Adjuster 平滑和 vsync 对齐后等待并写出，过晚的帧被丢弃。
// Release 需按帧顺序串行调用。
type Scheduler struct {
	streamID string
	cfg      config.SchedulerConfig
	adjuster *framerelease.Adjuster
	sink     Sink
	clock    clock.Clock
	recorder Recorder
	logger   *logrus.Entry

	mu          sync.Mutex
	started     bool
	anchorNowNs int64
	anchorPtsUs int64
	havePrev    bool
	prevPtsUs   int64
	haveLast    bool
	lastPtsUs   int64
	reanchors   int64
	released    int64
	dropped     int64
	lastEarlyNs int64
	lastLateNs  int64
}

// New 创建调度器
func New(cfg *config.SchedulerConfig, adjuster *framerelease.Adjuster, sink Sink, opts ...Option) (*Scheduler, error) {
	if cfg == nil {
		cfg = config.DefaultSchedulerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if adjuster == nil {
		return nil, errors.New("scheduler: adjuster is required")
	}
	if sink == nil {
		return nil, ErrNilSink
	}

	s := &Scheduler{
		cfg:      *cfg,
		adjuster: adjuster,
		sink:     sink,
		clock:    clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streamID == "" {
		s.streamID = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = config.GetLoggerWithPrefix("scheduler").WithField("stream", s.streamID)
	}
	return s, nil
}

// StreamID 流 ID
func (s *Scheduler) StreamID() string {
	return s.streamID
}

// Start 以当前时刻锚定媒体时间并启用调整器
func (s *Scheduler) Start(mediaTimeUs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.adjuster.Enable()
	}
	s.started = true
	s.anchor(mediaTimeUs)

	s.logger.Infof("Playback anchored at media time %dus", mediaTimeUs)
}

func (s *Scheduler) anchor(mediaTimeUs int64) {
	s.anchorNowNs = s.clock.NowNs()
	s.anchorPtsUs = mediaTimeUs
	s.havePrev = false
	s.haveLast = false
}

// discontinuous 时间戳回退，或前跳超过可等待范围
func (s *Scheduler) discontinuous(ptsUs int64) bool {
	if !s.haveLast {
		return false
	}
	jump := time.Duration(ptsUs-s.lastPtsUs) * time.Microsecond
	return jump < 0 || jump > s.cfg.LateThreshold+s.cfg.MaxWait
}

// Stop 停止调度并停用调整器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.adjuster.Disable()
	s.logger.Infof("Playback stopped (released=%d dropped=%d)", s.released, s.dropped)
}

// Release 释放一帧
func (s *Scheduler) Release(ctx context.Context, frame Frame) (Result, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return Result{}, ErrNotStarted
	}

	if s.discontinuous(frame.PresentationTimeUs) {
		s.logger.Infof("Media time jumped from %dus to %dus, re-anchoring playback",
			s.lastPtsUs, frame.PresentationTimeUs)
		s.anchor(frame.PresentationTimeUs)
		s.reanchors++
	}
	s.haveLast = true
	s.lastPtsUs = frame.PresentationTimeUs

	unadjustedNs := s.anchorNowNs + (frame.PresentationTimeUs-s.anchorPtsUs)*1000
	adjustedNs := s.adjuster.AdjustReleaseTime(frame.PresentationTimeUs, unadjustedNs)
	nowNs := s.clock.NowNs()

	result := Result{
		UnadjustedReleaseNs: unadjustedNs,
		AdjustedReleaseNs:   adjustedNs,
		LatenessNs:          nowNs - adjustedNs,
	}

	if result.LatenessNs > s.cfg.LateThreshold.Nanoseconds() {
		result.Dropped = true
		s.dropped++
		s.lastLateNs = result.LatenessNs
		s.mu.Unlock()

		if s.recorder != nil {
			s.recorder.ObserveDrop(result.LatenessNs)
		}
		s.logger.Debugf("Dropped late frame pts=%dus late=%v", frame.PresentationTimeUs, time.Duration(result.LatenessNs))
		return result, nil
	}

	var duration time.Duration
	if s.havePrev && frame.PresentationTimeUs > s.prevPtsUs {
		duration = time.Duration(frame.PresentationTimeUs-s.prevPtsUs) * time.Microsecond
	}
	s.havePrev = true
	s.prevPtsUs = frame.PresentationTimeUs
	s.mu.Unlock()

	deadlineNs := adjustedNs
	if maxNs := nowNs + s.cfg.MaxWait.Nanoseconds(); deadlineNs > maxNs {
		s.logger.Warnf("Release time of frame pts=%dus is %v ahead, clamping wait to %v",
			frame.PresentationTimeUs, time.Duration(adjustedNs-nowNs), s.cfg.MaxWait)
		deadlineNs = maxNs
	}
	if err := s.clock.SleepUntil(ctx, deadlineNs); err != nil {
		return result, err
	}

	if err := s.sink.WriteFrame(frame, duration); err != nil {
		return result, fmt.Errorf("failed to write frame pts=%dus: %w", frame.PresentationTimeUs, err)
	}

	s.mu.Lock()
	s.released++
	if result.LatenessNs < 0 {
		s.lastEarlyNs = -result.LatenessNs
	} else {
		s.lastLateNs = result.LatenessNs
	}
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.ObserveRelease(result.LatenessNs)
	}
	s.logger.Tracef("Released frame pts=%dus at %dns", frame.PresentationTimeUs, adjustedNs)
	return result, nil
}

// Stats 获取统计
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		StreamID:    s.streamID,
		Started:     s.started,
		Released:    s.released,
		Dropped:     s.dropped,
		LastEarlyNs: s.lastEarlyNs,
		LastLateNs:  s.lastLateNs,
		Reanchors:   s.reanchors,
		Adjuster:    s.adjuster.Stats(),
	}
}
