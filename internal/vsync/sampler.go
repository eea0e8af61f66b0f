package vsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
)

// DefaultSampleInterval 两次采样之间的间隔
const DefaultSampleInterval = 500 * time.Millisecond

// Source 平台 vsync 时钟接口
type Source interface {
	// WaitVsync 阻塞到下一个 vsync，返回其时间戳（纳秒，单调时钟）
	WaitVsync(ctx context.Context) (int64, error)
}

// Gauge 观察者数量指标
type Gauge interface {
	Set(value float64, labels ...string)
}

// Status 采样器状态快照
type Status struct {
	ObserverCount      int   `json:"observer_count"`
	Subscribed         bool  `json:"subscribed"`
	SampledVsyncTimeNs int64 `json:"sampled_vsync_time_ns"`
	Samples            int64 `json:"samples"`
	Closed             bool  `json:"closed"`
}

// Option 采样器选项
type Option func(*Sampler)

// WithSampleInterval 设置采样间隔
func WithSampleInterval(interval time.Duration) Option {
	return func(s *Sampler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger 设置日志器
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Sampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserverGauge 设置观察者数量指标
func WithObserverGauge(gauge Gauge) Option {
	return func(s *Sampler) {
		s.gauge = gauge
	}
}

type commandKind int

const (
	cmdAddObserver commandKind = iota
	cmdRemoveObserver
	cmdStatus
)

type command struct {
	kind  commandKind
	reply chan Status
}

type sampleResult struct {
	generation uint64
	timeNs     int64
	err        error
}

// Sampler 共享 vsync 采样器
// 所有帧释放调整器共用一个实例。观察者计数、订阅与采样写入都在同一个 owner goroutine 上串行执行，
// SampledVsyncTimeNs 可从任意 goroutine 无锁读取。
type Sampler struct {
	source   Source
	interval time.Duration
	logger   *logrus.Entry
	gauge    Gauge

	sampledVsyncTimeNs atomic.Int64
	samples            atomic.Int64

	commands  chan command
	results   chan sampleResult
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// owner goroutine 状态
	observerCount int
	generation    uint64
	cancelRequest context.CancelFunc
	timer         *time.Timer
	timerC        <-chan time.Time
}

// NewSampler 创建采样器并启动 owner goroutine
func NewSampler(source Source, opts ...Option) *Sampler {
	s := &Sampler{
		source:   source,
		interval: DefaultSampleInterval,
		logger:   config.GetLoggerWithPrefix("vsync-sampler"),
		commands: make(chan command),
		results:  make(chan sampleResult),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// AddObserver 通知采样器有一个调整器开始读取采样值
func (s *Sampler) AddObserver() {
	if _, ok := s.send(cmdAddObserver); !ok {
		s.logger.Debug("Vsync sampler closed, ignoring AddObserver")
	}
}

// RemoveObserver 通知采样器有一个调整器不再读取采样值
func (s *Sampler) RemoveObserver() {
	if _, ok := s.send(cmdRemoveObserver); !ok {
		s.logger.Debug("Vsync sampler closed, ignoring RemoveObserver")
	}
}

// SampledVsyncTimeNs 最近一次采样的 vsync 时间戳，没有观察者时为 0
func (s *Sampler) SampledVsyncTimeNs() int64 {
	return s.sampledVsyncTimeNs.Load()
}

// Status 获取状态快照
func (s *Sampler) Status() Status {
	status, _ := s.send(cmdStatus)
	return status
}

// ObserverCount 当前观察者数量
func (s *Sampler) ObserverCount() int {
	return s.Status().ObserverCount
}

// Close 停止采样器，之后的 AddObserver/RemoveObserver 不再生效
func (s *Sampler) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	s.wg.Wait()
}

// send 把命令交给 owner goroutine 并等待处理完成
func (s *Sampler) send(kind commandKind) (Status, bool) {
	cmd := command{kind: kind, reply: make(chan Status, 1)}
	select {
	case s.commands <- cmd:
	case <-s.closed:
		return Status{Closed: true}, false
	}
	return <-cmd.reply, true
}

func (s *Sampler) run() {
	defer s.wg.Done()

	for {
		select {
		case cmd := <-s.commands:
			s.handleCommand(cmd)

		case res := <-s.results:
			s.handleResult(res)

		case <-s.timerC:
			s.timerC = nil
			s.requestSample()

		case <-s.closed:
			if s.observerCount > 0 {
				s.unsubscribe()
			}
			return
		}
	}
}

func (s *Sampler) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdAddObserver:
		s.observerCount++
		if s.observerCount == 1 {
			s.subscribe()
		}
		s.setGauge()
	case cmdRemoveObserver:
		if s.observerCount == 0 {
			s.logger.Warn("RemoveObserver called with no active observers")
			break
		}
		s.observerCount--
		if s.observerCount == 0 {
			s.unsubscribe()
		}
		s.setGauge()
	}

	cmd.reply <- Status{
		ObserverCount:      s.observerCount,
		Subscribed:         s.observerCount > 0,
		SampledVsyncTimeNs: s.sampledVsyncTimeNs.Load(),
		Samples:            s.samples.Load(),
	}
}

func (s *Sampler) handleResult(res sampleResult) {
	if res.generation != s.generation || s.observerCount == 0 {
		// 已取消订阅的请求结果
		return
	}
	s.cancelRequest = nil

	if res.err != nil {
		s.logger.Warnf("Vsync sample failed, retrying in %v: %v", s.interval, res.err)
	} else {
		s.sampledVsyncTimeNs.Store(res.timeNs)
		s.samples.Add(1)
		s.logger.Tracef("Sampled vsync at %dns", res.timeNs)
	}
	s.armTimer()
}

// subscribe 开始采样：立即请求一次，之后每次采样后间隔 interval 再请求
func (s *Sampler) subscribe() {
	s.logger.Debug("Vsync sampling started")
	s.requestSample()
}

// unsubscribe 停止采样并清零采样值
func (s *Sampler) unsubscribe() {
	s.generation++
	if s.cancelRequest != nil {
		s.cancelRequest()
		s.cancelRequest = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerC = nil
	s.sampledVsyncTimeNs.Store(0)
	s.logger.Debug("Vsync sampling stopped")
}

func (s *Sampler) requestSample() {
	s.generation++
	generation := s.generation

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRequest = cancel

	go func() {
		defer cancel()
		timeNs, err := s.source.WaitVsync(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		select {
		case s.results <- sampleResult{generation: generation, timeNs: timeNs, err: err}:
		case <-s.closed:
		}
	}()
}

func (s *Sampler) armTimer() {
	if s.timer == nil {
		s.timer = time.NewTimer(s.interval)
	} else {
		s.timer.Reset(s.interval)
	}
	s.timerC = s.timer.C
}

func (s *Sampler) setGauge() {
	if s.gauge != nil {
		s.gauge.Set(float64(s.observerCount))
	}
}
