package service

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
	"github.com/open-beagle/bdwind-framerelease/internal/framerelease"
	"github.com/open-beagle/bdwind-framerelease/internal/scheduler"
	"github.com/open-beagle/bdwind-framerelease/internal/webrtc"
)

// ReleaseServiceName 帧释放服务
const ReleaseServiceName = "release"

// frameHeaderSize 帧消息头：大端 int64 呈现时间（微秒）
const frameHeaderSize = 8

// ReleaseRecorder 帧释放服务的指标记录
type ReleaseRecorder interface {
	framerelease.Recorder
	scheduler.Recorder
}

// ReleaseOptions 帧释放服务参数
type ReleaseOptions struct {
	FrameRelease *config.FrameReleaseConfig
	Scheduler    *config.SchedulerConfig
	Sampler      framerelease.VsyncSampler

	// Recorder 按流创建指标记录器，可为空
	Recorder func(streamID string) ReleaseRecorder
}

// releaseService 每个会话一条视频流
// 客户端发送 [8 字节 PTS][编码数据]，服务按调整后的释放时间写入 WebRTC 轨道并返回 JSON 结果。
// 少于 8 字节的消息返回统计信息。
type releaseService struct {
	scheduler *scheduler.Scheduler
	sink      *webrtc.TrackSink
	logger    *logrus.Entry
	sctx      ServiceContext
	ctx       context.Context
	cancel    context.CancelFunc

	mu          sync.Mutex
	inflight    context.CancelFunc
	interrupted bool
}

// releaseResponse 单帧释放结果
type releaseResponse struct {
	PresentationTimeUs  int64  `json:"presentation_time_us"`
	UnadjustedReleaseNs int64  `json:"unadjusted_release_ns"`
	AdjustedReleaseNs   int64  `json:"adjusted_release_ns"`
	LatenessNs          int64  `json:"lateness_ns"`
	Dropped             bool   `json:"dropped"`
	Error               string `json:"error,omitempty"`
}

// NewReleaseFactory 帧释放服务工厂
func NewReleaseFactory(opts ReleaseOptions) (Factory, error) {
	if opts.FrameRelease == nil {
		opts.FrameRelease = config.DefaultFrameReleaseConfig()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = config.DefaultSchedulerConfig()
	}
	if opts.FrameRelease.AlignVsync && opts.Sampler == nil {
		return nil, framerelease.ErrNilSampler
	}

	return func(ctx ServiceContext) Service {
		svc, err := newReleaseService(ctx, opts)
		if err != nil {
			config.GetLoggerWithPrefix("release-service").Errorf("Failed to create release service: %v", err)
			return nil
		}
		return svc
	}, nil
}

func newReleaseService(sctx ServiceContext, opts ReleaseOptions) (*releaseService, error) {
	logger := config.GetLoggerWithPrefix("release-service").WithField("stream", sctx.SessionID)

	adjusterOpts := []framerelease.Option{framerelease.WithLogger(logger)}
	schedulerOpts := []scheduler.Option{
		scheduler.WithStreamID(sctx.SessionID),
		scheduler.WithLogger(logger),
	}
	if opts.Recorder != nil {
		recorder := opts.Recorder(sctx.SessionID)
		adjusterOpts = append(adjusterOpts, framerelease.WithRecorder(recorder))
		schedulerOpts = append(schedulerOpts, scheduler.WithRecorder(recorder))
	}
	if opts.FrameRelease.LogResyncs {
		adjusterOpts = append(adjusterOpts, framerelease.WithSyncListener(func(e framerelease.SyncEvent) {
			logger.Infof("Resync (%s) at pts=%dns release=%dns",
				e.Reason, e.FramePresentationTimeNs, e.UnadjustedReleaseTimeNs)
		}))
	}

	adjuster, err := framerelease.NewFromProvider(
		framerelease.StaticRefreshRate(opts.FrameRelease.RefreshRateHz()), opts.Sampler, adjusterOpts...)
	if err != nil {
		return nil, err
	}

	sink, err := webrtc.NewTrackSink(opts.Scheduler.Codec, opts.Scheduler.TrackID, sctx.SessionID)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(opts.Scheduler, adjuster, sink, schedulerOpts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &releaseService{
		scheduler: sched,
		sink:      sink,
		logger:    logger,
		sctx:      sctx,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (s *releaseService) BeforeStartOrResume() { s.clearInterrupt() }

func (s *releaseService) BeforeSuspend() {
	s.clearInterrupt()
	s.scheduler.Stop()
}

func (s *releaseService) AfterStopped() {
	s.clearInterrupt()
	s.scheduler.Stop()
}

func (s *releaseService) Close() {
	s.cancel()
	s.scheduler.Stop()
}

// Interrupt 取消等待中的帧
func (s *releaseService) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interrupted = true
	if s.inflight != nil {
		s.inflight()
	}
}

func (s *releaseService) clearInterrupt() {
	s.mu.Lock()
	s.interrupted = false
	s.mu.Unlock()
}

func (s *releaseService) begin() (context.Context, func()) {
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interrupted {
		cancel()
	}
	s.inflight = cancel
	return ctx, func() {
		s.mu.Lock()
		s.inflight = nil
		s.mu.Unlock()
		cancel()
	}
}

func (s *releaseService) ReceiveFromClient(data []byte) []byte {
	if len(data) < frameHeaderSize {
		return s.marshal(s.scheduler.Stats())
	}

	frame := scheduler.Frame{
		PresentationTimeUs: int64(binary.BigEndian.Uint64(data[:frameHeaderSize])),
		Data:               data[frameHeaderSize:],
	}
	if s.sctx.suspended() {
		return s.marshal(releaseResponse{
			PresentationTimeUs: frame.PresentationTimeUs,
			Error:              ErrSuspended.Error(),
		})
	}
	if !s.scheduler.Stats().Started {
		s.scheduler.Start(frame.PresentationTimeUs)
	}

	ctx, done := s.begin()
	defer done()

	result, err := s.scheduler.Release(ctx, frame)
	resp := releaseResponse{
		PresentationTimeUs:  frame.PresentationTimeUs,
		UnadjustedReleaseNs: result.UnadjustedReleaseNs,
		AdjustedReleaseNs:   result.AdjustedReleaseNs,
		LatenessNs:          result.LatenessNs,
		Dropped:             result.Dropped,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return s.marshal(resp)
}

func (s *releaseService) marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warnf("Failed to marshal response: %v", err)
		return []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return data
}

// EncodeFrame 编码帧消息
func EncodeFrame(presentationTimeUs int64, payload []byte) []byte {
	msg := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint64(msg, uint64(presentationTimeUs))
	copy(msg[frameHeaderSize:], payload)
	return msg
}
