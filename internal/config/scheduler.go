package config

import (
	"fmt"
	"time"
)

// SchedulerConfig 帧释放调度配置
type SchedulerConfig struct {
	// LateThreshold 超过该延迟的帧被丢弃
	LateThreshold time.Duration `yaml:"late_threshold" json:"late_threshold"`

	// MaxWait 单帧最长等待时间（异常时间戳保护）
	MaxWait time.Duration `yaml:"max_wait" json:"max_wait"`

	// Codec 输出轨道编码 (h264, vp8, vp9, av1)
	Codec string `yaml:"codec" json:"codec"`

	// TrackID 输出轨道 ID
	TrackID string `yaml:"track_id" json:"track_id"`
}

// DefaultSchedulerConfig 返回默认调度配置
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		LateThreshold: 30 * time.Millisecond,
		MaxWait:       time.Second,
		Codec:         "h264",
		TrackID:       "video",
	}
}

// Validate 验证配置
func (c *SchedulerConfig) Validate() error {
	if c.LateThreshold <= 0 {
		return fmt.Errorf("late threshold must be positive, got: %v", c.LateThreshold)
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("max wait must be positive, got: %v", c.MaxWait)
	}
	switch c.Codec {
	case "h264", "vp8", "vp9", "av1":
	default:
		return fmt.Errorf("unsupported codec: %s", c.Codec)
	}
	if c.TrackID == "" {
		return fmt.Errorf("track id cannot be empty")
	}
	return nil
}

// Merge 合并配置
func (c *SchedulerConfig) Merge(other *SchedulerConfig) error {
	if other == nil {
		return nil
	}
	if other.LateThreshold != 0 {
		c.LateThreshold = other.LateThreshold
	}
	if other.MaxWait != 0 {
		c.MaxWait = other.MaxWait
	}
	if other.Codec != "" {
		c.Codec = other.Codec
	}
	if other.TrackID != "" {
		c.TrackID = other.TrackID
	}
	return c.Validate()
}
