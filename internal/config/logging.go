package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const logTimestampFormat = "2006-01-02 15:04:05.000"

// LoggingConfig 日志配置
type LoggingConfig struct {
	// Level 全局日志等级 (trace, debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Format 日志格式 (text, json)
	Format string `yaml:"format" json:"format"`

	// Output 输出目标 (stdout, stderr, file)
	Output string `yaml:"output" json:"output"`

	// File 日志文件路径 (当Output为file时使用)
	File string `yaml:"file" json:"file"`

	// EnableCaller 是否记录调用位置
	EnableCaller bool `yaml:"enable_caller" json:"enable_caller"`

	// EnableColors 文本格式是否强制颜色
	EnableColors bool `yaml:"enable_colors" json:"enable_colors"`

	// Components 按组件覆盖日志等级，例如 frame-release: trace
	Components map[string]string `yaml:"components,omitempty" json:"components,omitempty"`
}

// DefaultLoggingConfig 返回默认日志配置
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:        "info",
		Format:       "text",
		Output:       "stdout",
		EnableColors: true,
	}
}

// Validate 验证日志配置
func (c *LoggingConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s, must be 'text' or 'json'", c.Format)
	}

	switch c.Output {
	case "stdout", "stderr":
	case "file":
		if c.File == "" {
			return fmt.Errorf("log file path is required when output is 'file'")
		}
	default:
		return fmt.Errorf("invalid log output: %s, must be 'stdout', 'stderr', or 'file'", c.Output)
	}

	for component, level := range c.Components {
		if component == "" {
			return fmt.Errorf("component log level without component name")
		}
		if _, err := logrus.ParseLevel(level); err != nil {
			return fmt.Errorf("invalid log level %q for component %s", level, component)
		}
	}
	return nil
}

// Merge 合并日志配置，组件等级按名称覆盖
func (c *LoggingConfig) Merge(other *LoggingConfig) error {
	if other == nil {
		return nil
	}

	for _, f := range []struct {
		dst *string
		src string
	}{
		{&c.Level, other.Level},
		{&c.Format, other.Format},
		{&c.Output, other.Output},
		{&c.File, other.File},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	c.EnableCaller = other.EnableCaller
	c.EnableColors = other.EnableColors

	if len(other.Components) > 0 && c.Components == nil {
		c.Components = make(map[string]string, len(other.Components))
	}
	for component, level := range other.Components {
		c.Components[component] = level
	}

	return c.Validate()
}

// mergeEnvLogging 用 BDWIND_LOG_* 环境变量覆盖日志配置
// BDWIND_LOG_COMPONENTS 格式为 "frame-release=trace,vsync-sampler=debug"。
func mergeEnvLogging(base *LoggingConfig) *LoggingConfig {
	if base == nil {
		base = DefaultLoggingConfig()
	}

	strs := map[string]*string{
		"BDWIND_LOG_LEVEL":  &base.Level,
		"BDWIND_LOG_FORMAT": &base.Format,
		"BDWIND_LOG_OUTPUT": &base.Output,
		"BDWIND_LOG_FILE":   &base.File,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	base.Level = strings.ToLower(base.Level)

	bools := map[string]*bool{
		"BDWIND_LOG_CALLER": &base.EnableCaller,
		"BDWIND_LOG_COLORS": &base.EnableColors,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			*dst = strings.EqualFold(v, "true")
		}
	}

	if v := os.Getenv("BDWIND_LOG_COMPONENTS"); v != "" {
		components, err := ParseComponentLevels(v)
		if err != nil {
			logrus.Warnf("Ignoring BDWIND_LOG_COMPONENTS: %v", err)
		} else {
			base.Components = components
		}
	}
	return base
}

// ParseComponentLevels 解析 "component=level,..." 形式的组件日志等级
func ParseComponentLevels(s string) (map[string]string, error) {
	levels := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		component, level, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected component=level, got %q", pair)
		}
		normalized, err := ParseLogLevel(level)
		if err != nil {
			return nil, err
		}
		levels[strings.TrimSpace(component)] = normalized
	}
	return levels, nil
}

// componentLoggers 每个组件一个 logrus.Logger，共享输出和格式
type componentLoggers struct {
	mu        sync.Mutex
	loggers   map[string]*logrus.Logger
	overrides map[string]logrus.Level
}

var loggers = &componentLoggers{
	loggers:   make(map[string]*logrus.Logger),
	overrides: make(map[string]logrus.Level),
}

func (l *componentLoggers) get(component string) *logrus.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	if logger, ok := l.loggers[component]; ok {
		return logger
	}

	std := logrus.StandardLogger()
	logger := logrus.New()
	logger.SetOutput(std.Out)
	logger.SetFormatter(std.Formatter)
	logger.SetReportCaller(std.ReportCaller)
	logger.SetLevel(l.levelLocked(component))
	l.loggers[component] = logger
	return logger
}

func (l *componentLoggers) levelLocked(component string) logrus.Level {
	if level, ok := l.overrides[component]; ok {
		return level
	}
	return logrus.GetLevel()
}

// configure 把标准 logger 的输出设置同步到所有组件
func (l *componentLoggers) configure(out io.Writer, formatter logrus.Formatter, caller bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	logrus.SetOutput(out)
	logrus.SetFormatter(formatter)
	logrus.SetReportCaller(caller)
	for _, logger := range l.loggers {
		logger.SetOutput(out)
		logger.SetFormatter(formatter)
		logger.SetReportCaller(caller)
	}
}

// setLevels 设置全局等级并替换组件覆盖，overrides 为 nil 时保留现有覆盖
func (l *componentLoggers) setLevels(global logrus.Level, overrides map[string]logrus.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	logrus.SetLevel(global)
	if overrides != nil {
		l.overrides = overrides
	}
	for component, logger := range l.loggers {
		logger.SetLevel(l.levelLocked(component))
	}
}

func (l *componentLoggers) setOverride(component string, level *logrus.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level == nil {
		delete(l.overrides, component)
	} else {
		l.overrides[component] = *level
	}
	if logger, ok := l.loggers[component]; ok {
		logger.SetLevel(l.levelLocked(component))
	}
}

// SetupLogger 根据配置设置全局和组件 logger
func SetupLogger(config *LoggingConfig) error {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	var out io.Writer
	switch config.Output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case "file":
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.File, err)
		}
		out = file
	}

	var formatter logrus.Formatter = &logrus.TextFormatter{
		TimestampFormat: logTimestampFormat,
		FullTimestamp:   true,
		ForceColors:     config.EnableColors,
	}
	if config.Format == "json" {
		formatter = &logrus.JSONFormatter{TimestampFormat: logTimestampFormat}
	}

	loggers.configure(out, formatter, config.EnableCaller)
	return ApplyLogLevels(config)
}

// ApplyLogLevels 应用全局和组件日志等级，配置热更新时只调用这一步
func ApplyLogLevels(config *LoggingConfig) error {
	global, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	overrides := make(map[string]logrus.Level, len(config.Components))
	for component, name := range config.Components {
		level, err := logrus.ParseLevel(name)
		if err != nil {
			return fmt.Errorf("invalid log level for component %s: %w", component, err)
		}
		overrides[component] = level
	}

	loggers.setLevels(global, overrides)
	return nil
}

// ParseLogLevel 解析日志等级字符串
func ParseLogLevel(level string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if _, err := logrus.ParseLevel(normalized); err != nil {
		return "info", fmt.Errorf("invalid log level: %s", level)
	}
	return normalized, nil
}

// GetLoggerWithPrefix 获取组件 logger，等级可按组件单独设置
func GetLoggerWithPrefix(component string) *logrus.Entry {
	return loggers.get(component).WithField("component", component)
}

// SetGlobalLogLevel 动态设置全局日志等级，保留组件覆盖
func SetGlobalLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	loggers.setLevels(logLevel, nil)
	return nil
}

// GetGlobalLogLevel 获取当前全局日志等级
func GetGlobalLogLevel() string {
	return logrus.GetLevel().String()
}

// SetComponentLogLevel 设置单个组件的日志等级，level 为空时恢复全局等级
func SetComponentLogLevel(component, level string) error {
	if level == "" {
		loggers.setOverride(component, nil)
		return nil
	}
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	loggers.setOverride(component, &logLevel)
	return nil
}

// GetComponentLogLevel 组件当前生效的日志等级
func GetComponentLogLevel(component string) string {
	return loggers.get(component).GetLevel().String()
}

// ComponentLogLevels 已创建组件的生效等级
func ComponentLogLevels() map[string]string {
	loggers.mu.Lock()
	defer loggers.mu.Unlock()

	levels := make(map[string]string, len(loggers.loggers))
	for name, logger := range loggers.loggers {
		levels[name] = logger.GetLevel().String()
	}
	return levels
}

// GetStandardLoggerWithPrefix 获取写入组件 logger 的标准库 logger（用于 http.Server.ErrorLog）
func GetStandardLoggerWithPrefix(component string) *log.Logger {
	entry := GetLoggerWithPrefix(component)
	return log.New(entry.WriterLevel(logrus.WarnLevel), "", 0)
}
