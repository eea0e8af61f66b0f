package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控接口
type Metrics interface {
	// RegisterGauge 注册仪表盘指标
	RegisterGauge(name, help string, labels []string) (Gauge, error)

	// RegisterCounter 注册计数器指标
	RegisterCounter(name, help string, labels []string) (Counter, error)

	// RegisterHistogram 注册直方图指标
	RegisterHistogram(name, help string, labels []string, buckets []float64) (Histogram, error)

	// GetRegistry 获取 Prometheus 注册表
	GetRegistry() *prometheus.Registry

	// Handler Prometheus 文本格式的 HTTP 处理器
	Handler() http.Handler

	// SetupRoutes 在路由器上注册指标路径
	SetupRoutes(router *mux.Router, path string)
}

// Gauge 仪表盘接口
type Gauge interface {
	// Set 设置值
	Set(value float64, labels ...string)

	// Inc 增加1
	Inc(labels ...string)

	// Dec 减少1
	Dec(labels ...string)
}

// Counter 计数器接口
type Counter interface {
	// Inc 增加1
	Inc(labels ...string)

	// Add 增加值
	Add(value float64, labels ...string)
}

// Histogram 直方图接口
type Histogram interface {
	// Observe 观察值
	Observe(value float64, labels ...string)
}

// metricsImpl Metrics接口的实现
type metricsImpl struct {
	namespace string
	registry  *prometheus.Registry
	mu        sync.Mutex

	// 存储已注册的指标
	gauges     map[string]*prometheus.GaugeVec
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewMetrics 创建新的监控实例
// namespace 作为所有指标名的前缀，同时注册 Go 运行时与进程指标。
func NewMetrics(namespace string) (Metrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(prometheus.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	return &metricsImpl{
		namespace:  namespace,
		registry:   registry,
		gauges:     make(map[string]*prometheus.GaugeVec),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}, nil
}

// RegisterGauge 注册仪表盘指标
func (m *metricsImpl) RegisterGauge(name, help string, labels []string) (Gauge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return nil, ErrInvalidMetricName
	}
	if _, exists := m.gauges[name]; exists {
		return nil, ErrMetricAlreadyRegistered
	}

	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)

	if err := m.registry.Register(gauge); err != nil {
		return nil, err
	}

	m.gauges[name] = gauge
	return &gaugeImpl{gauge: gauge}, nil
}

// RegisterCounter 注册计数器指标
func (m *metricsImpl) RegisterCounter(name, help string, labels []string) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return nil, ErrInvalidMetricName
	}
	if _, exists := m.counters[name]; exists {
		return nil, ErrMetricAlreadyRegistered
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)

	if err := m.registry.Register(counter); err != nil {
		return nil, err
	}

	m.counters[name] = counter
	return &counterImpl{counter: counter}, nil
}

// RegisterHistogram 注册直方图指标
func (m *metricsImpl) RegisterHistogram(name, help string, labels []string, buckets []float64) (Histogram, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return nil, ErrInvalidMetricName
	}
	if _, exists := m.histograms[name]; exists {
		return nil, ErrMetricAlreadyRegistered
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)

	if err := m.registry.Register(histogram); err != nil {
		return nil, err
	}

	m.histograms[name] = histogram
	return &histogramImpl{histogram: histogram}, nil
}

// GetRegistry 获取 Prometheus 注册表
func (m *metricsImpl) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler 获取指标处理器
func (m *metricsImpl) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetupRoutes 注册指标路由
func (m *metricsImpl) SetupRoutes(router *mux.Router, path string) {
	router.Handle(path, m.Handler()).Methods(http.MethodGet)
}

// gaugeImpl Gauge接口的实现
type gaugeImpl struct {
	gauge *prometheus.GaugeVec
}

// Set 设置值
func (g *gaugeImpl) Set(value float64, labels ...string) {
	g.gauge.WithLabelValues(labels...).Set(value)
}

// Inc 增加1
func (g *gaugeImpl) Inc(labels ...string) {
	g.gauge.WithLabelValues(labels...).Inc()
}

// Dec 减少1
func (g *gaugeImpl) Dec(labels ...string) {
	g.gauge.WithLabelValues(labels...).Dec()
}

// counterImpl Counter接口的实现
type counterImpl struct {
	counter *prometheus.CounterVec
}

// Inc 增加1
func (c *counterImpl) Inc(labels ...string) {
	c.counter.WithLabelValues(labels...).Inc()
}

// Add 增加值
func (c *counterImpl) Add(value float64, labels ...string) {
	c.counter.WithLabelValues(labels...).Add(value)
}

// histogramImpl Histogram接口的实现
type histogramImpl struct {
	histogram *prometheus.HistogramVec
}

// Observe 观察值
func (h *histogramImpl) Observe(value float64, labels ...string) {
	h.histogram.WithLabelValues(labels...).Observe(value)
}
