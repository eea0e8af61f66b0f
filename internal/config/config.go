package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 帧释放服务配置聚合器
type Config struct {
	// 帧释放时间调整
	FrameRelease *FrameReleaseConfig `yaml:"frame_release" json:"frame_release"`

	// vsync 采样
	Vsync *VsyncConfig `yaml:"vsync" json:"vsync"`

	// 帧释放调度
	Scheduler *SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// 平台服务桥接
	Service *ServiceConfig `yaml:"service" json:"service"`

	// 原生测试引导
	NativeTest *NativeTestConfig `yaml:"native_test" json:"native_test"`

	// Web服务器
	WebServer *WebServerConfig `yaml:"webserver" json:"webserver"`

	// Metrics
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`

	// 日志
	Logging *LoggingConfig `yaml:"logging" json:"logging"`

	// 生命周期管理配置
	Lifecycle LifecycleConfig `yaml:"lifecycle" json:"lifecycle"`
}

// LifecycleConfig 生命周期管理配置
type LifecycleConfig struct {
	// 优雅关闭超时时间
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// 组件启动超时时间
	StartupTimeout time.Duration `yaml:"startup_timeout" json:"startup_timeout"`

	// 是否监听配置文件变化
	WatchConfig bool `yaml:"watch_config" json:"watch_config"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		FrameRelease: DefaultFrameReleaseConfig(),
		Vsync:        DefaultVsyncConfig(),
		Scheduler:    DefaultSchedulerConfig(),
		Service:      DefaultServiceConfig(),
		NativeTest:   DefaultNativeTestConfig(),
		WebServer:    DefaultWebServerConfig(),
		Metrics:      DefaultMetricsConfig(),
		Logging:      DefaultLoggingConfig(),
		Lifecycle: LifecycleConfig{
			ShutdownTimeout: 30 * time.Second,
			StartupTimeout:  60 * time.Second,
			WatchConfig:     false,
		},
	}
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig 解析 YAML 配置，未出现的字段保留默认值
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.fillMissingModules()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// fillMissingModules YAML 中显式置空的模块恢复为默认值
func (c *Config) fillMissingModules() {
	if c.FrameRelease == nil {
		c.FrameRelease = DefaultFrameReleaseConfig()
	}
	if c.Vsync == nil {
		c.Vsync = DefaultVsyncConfig()
	}
	if c.Scheduler == nil {
		c.Scheduler = DefaultSchedulerConfig()
	}
	if c.Service == nil {
		c.Service = DefaultServiceConfig()
	}
	if c.NativeTest == nil {
		c.NativeTest = DefaultNativeTestConfig()
	}
	if c.WebServer == nil {
		c.WebServer = DefaultWebServerConfig()
	}
	if c.Metrics == nil {
		c.Metrics = DefaultMetricsConfig()
	}
	if c.Logging == nil {
		c.Logging = DefaultLoggingConfig()
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	c.fillMissingModules()

	if err := c.FrameRelease.Validate(); err != nil {
		return fmt.Errorf("invalid frame_release config: %w", err)
	}
	if err := c.Vsync.Validate(); err != nil {
		return fmt.Errorf("invalid vsync config: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("invalid scheduler config: %w", err)
	}
	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("invalid service config: %w", err)
	}
	if err := c.NativeTest.Validate(); err != nil {
		return fmt.Errorf("invalid native_test config: %w", err)
	}
	if err := c.WebServer.Validate(); err != nil {
		return fmt.Errorf("invalid webserver config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	if err := c.validateLifecycleConfig(); err != nil {
		return fmt.Errorf("invalid lifecycle config: %w", err)
	}
	return nil
}

// validateLifecycleConfig 验证生命周期配置
func (c *Config) validateLifecycleConfig() error {
	if c.Lifecycle.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got: %v", c.Lifecycle.ShutdownTimeout)
	}
	if c.Lifecycle.StartupTimeout <= 0 {
		return fmt.Errorf("startup timeout must be positive, got: %v", c.Lifecycle.StartupTimeout)
	}
	return nil
}

// Merge 合并其他配置
func (c *Config) Merge(other *Config) error {
	if other == nil {
		return nil
	}
	c.fillMissingModules()

	if err := c.FrameRelease.Merge(other.FrameRelease); err != nil {
		return fmt.Errorf("failed to merge frame_release config: %w", err)
	}
	if err := c.Vsync.Merge(other.Vsync); err != nil {
		return fmt.Errorf("failed to merge vsync config: %w", err)
	}
	if err := c.Scheduler.Merge(other.Scheduler); err != nil {
		return fmt.Errorf("failed to merge scheduler config: %w", err)
	}
	if err := c.Service.Merge(other.Service); err != nil {
		return fmt.Errorf("failed to merge service config: %w", err)
	}
	if err := c.NativeTest.Merge(other.NativeTest); err != nil {
		return fmt.Errorf("failed to merge native_test config: %w", err)
	}
	if err := c.WebServer.Merge(other.WebServer); err != nil {
		return fmt.Errorf("failed to merge webserver config: %w", err)
	}
	if err := c.Metrics.Merge(other.Metrics); err != nil {
		return fmt.Errorf("failed to merge metrics config: %w", err)
	}
	if err := c.Logging.Merge(other.Logging); err != nil {
		return fmt.Errorf("failed to merge logging config: %w", err)
	}

	if other.Lifecycle.ShutdownTimeout != 0 {
		c.Lifecycle.ShutdownTimeout = other.Lifecycle.ShutdownTimeout
	}
	if other.Lifecycle.StartupTimeout != 0 {
		c.Lifecycle.StartupTimeout = other.Lifecycle.StartupTimeout
	}
	c.Lifecycle.WatchConfig = other.Lifecycle.WatchConfig

	return nil
}

// String 返回配置的字符串表示
func (c *Config) String() string {
	alignInfo := "unaligned"
	if c.FrameRelease != nil && c.FrameRelease.AlignVsync {
		alignInfo = fmt.Sprintf("%.2fHz", c.FrameRelease.RefreshRate)
	}

	webInfo := "disabled"
	if c.WebServer != nil {
		webInfo = c.WebServer.Address()
	}

	sampleInfo := "default"
	if c.Vsync != nil {
		sampleInfo = c.Vsync.SampleInterval.String()
	}

	return fmt.Sprintf("Config{FrameRelease: %s, VsyncSample: %s, WebServer: %s}",
		alignInfo, sampleInfo, webInfo)
}

// SaveToFile 保存配置到文件
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfigFromEnv 从环境变量加载配置
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv 用环境变量覆盖配置
func (c *Config) ApplyEnv() {
	c.fillMissingModules()

	if rate := os.Getenv("BDWIND_REFRESH_RATE"); rate != "" {
		if strings.EqualFold(rate, "unknown") {
			c.FrameRelease.AlignVsync = false
		} else if value, err := strconv.ParseFloat(rate, 64); err == nil {
			c.FrameRelease.AlignVsync = true
			c.FrameRelease.RefreshRate = value
		}
	}

	if interval := os.Getenv("BDWIND_VSYNC_SAMPLE_INTERVAL"); interval != "" {
		if value, err := time.ParseDuration(interval); err == nil {
			c.Vsync.SampleInterval = value
		}
	}

	if host := os.Getenv("BDWIND_HOST"); host != "" {
		c.WebServer.Host = host
	}
	if port := os.Getenv("BDWIND_PORT"); port != "" {
		if value, err := strconv.Atoi(port); err == nil {
			c.WebServer.Port = value
		}
	}

	if library := os.Getenv("BDWIND_NATIVE_TEST_LIBRARY"); library != "" {
		c.NativeTest.Library = library
	}

	c.Logging = mergeEnvLogging(c.Logging)
}
