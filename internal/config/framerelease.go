package config

import (
	"fmt"
	"math"
	"time"
)

// RefreshRateUnknown 刷新率未知（非对齐模式）
const RefreshRateUnknown = -1.0

// FrameReleaseConfig 帧释放时间调整配置
type FrameReleaseConfig struct {
	// AlignVsync 是否将释放时间对齐到显示器 vsync
	AlignVsync bool `yaml:"align_vsync" json:"align_vsync"`

	// RefreshRate 显示刷新率 (Hz)
	RefreshRate float64 `yaml:"refresh_rate" json:"refresh_rate"`

	// LogResyncs 是否在 Info 级别记录重新同步事件
	LogResyncs bool `yaml:"log_resyncs" json:"log_resyncs"`
}

// DefaultFrameReleaseConfig 返回默认帧释放配置
func DefaultFrameReleaseConfig() *FrameReleaseConfig {
	return &FrameReleaseConfig{
		AlignVsync:  true,
		RefreshRate: 60,
		LogResyncs:  false,
	}
}

// RefreshRateHz 调整器使用的刷新率，未启用对齐时返回 RefreshRateUnknown
func (c *FrameReleaseConfig) RefreshRateHz() float64 {
	if !c.AlignVsync {
		return RefreshRateUnknown
	}
	return c.RefreshRate
}

// VsyncInterval 刷新率对应的 vsync 间隔
func (c *FrameReleaseConfig) VsyncInterval() time.Duration {
	if !c.AlignVsync || c.RefreshRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.RefreshRate)
}

// Validate 验证配置
func (c *FrameReleaseConfig) Validate() error {
	if !c.AlignVsync {
		return nil
	}
	if math.IsNaN(c.RefreshRate) || math.IsInf(c.RefreshRate, 0) || c.RefreshRate <= 0 {
		return fmt.Errorf("refresh rate must be a positive number when vsync alignment is enabled, got: %v", c.RefreshRate)
	}
	if c.RefreshRate > 1000 {
		return fmt.Errorf("refresh rate too high: %v (maximum: 1000)", c.RefreshRate)
	}
	return nil
}

// Merge 合并配置
func (c *FrameReleaseConfig) Merge(other *FrameReleaseConfig) error {
	if other == nil {
		return nil
	}
	c.AlignVsync = other.AlignVsync
	if other.RefreshRate != 0 {
		c.RefreshRate = other.RefreshRate
	}
	c.LogResyncs = other.LogResyncs
	return c.Validate()
}
