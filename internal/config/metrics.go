package config

import (
	"fmt"
	"strings"
)

// MetricsConfig Metrics配置
type MetricsConfig struct {
	// Enabled 是否在 Web 服务器上暴露 Prometheus 指标
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path 指标路径
	Path string `yaml:"path" json:"path"`

	// Namespace 指标名前缀
	Namespace string `yaml:"namespace" json:"namespace"`
}

// DefaultMetricsConfig 返回默认的Metrics配置
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "bdwind",
	}
}

// Validate 验证配置
func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("metrics path must start with '/', got: %q", c.Path)
	}
	if c.Namespace == "" {
		return fmt.Errorf("metrics namespace cannot be empty")
	}
	return nil
}

// Merge 合并配置
func (c *MetricsConfig) Merge(other *MetricsConfig) error {
	if other == nil {
		return nil
	}
	c.Enabled = other.Enabled
	if other.Path != "" {
		c.Path = other.Path
	}
	if other.Namespace != "" {
		c.Namespace = other.Namespace
	}
	return c.Validate()
}
