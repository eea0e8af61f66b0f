package config

import (
	"fmt"
	"time"
)

// VsyncSourceSoftware 软件 vsync 源
const VsyncSourceSoftware = "software"

// VsyncConfig vsync 采样配置
type VsyncConfig struct {
	// Source vsync 源类型
	Source string `yaml:"source" json:"source"`

	// RefreshRate 软件 vsync 源的刷新率，0 表示沿用 frame_release.refresh_rate
	RefreshRate float64 `yaml:"refresh_rate" json:"refresh_rate"`

	// SampleInterval 两次采样的间隔
	SampleInterval time.Duration `yaml:"sample_interval" json:"sample_interval"`
}

// DefaultVsyncConfig 返回默认 vsync 配置
func DefaultVsyncConfig() *VsyncConfig {
	return &VsyncConfig{
		Source:         VsyncSourceSoftware,
		RefreshRate:    0,
		SampleInterval: 500 * time.Millisecond,
	}
}

// Validate 验证配置
func (c *VsyncConfig) Validate() error {
	if c.Source != VsyncSourceSoftware {
		return fmt.Errorf("unsupported vsync source: %s", c.Source)
	}
	if c.RefreshRate < 0 {
		return fmt.Errorf("vsync refresh rate cannot be negative, got: %v", c.RefreshRate)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sample interval must be positive, got: %v", c.SampleInterval)
	}
	if c.SampleInterval > 10*time.Second {
		return fmt.Errorf("sample interval too long: %v (maximum: 10s)", c.SampleInterval)
	}
	return nil
}

// Merge 合并配置
func (c *VsyncConfig) Merge(other *VsyncConfig) error {
	if other == nil {
		return nil
	}
	if other.Source != "" {
		c.Source = other.Source
	}
	if other.RefreshRate != 0 {
		c.RefreshRate = other.RefreshRate
	}
	if other.SampleInterval != 0 {
		c.SampleInterval = other.SampleInterval
	}
	return c.Validate()
}
