package config

import (
	"fmt"
	"time"
)

// NativeTestConfig 原生测试引导配置
type NativeTestConfig struct {
	// Library 测试二进制路径，以 "replace" 开头表示未配置
	Library string `yaml:"library" json:"library"`

	// FilesDir 传给测试入口的数据目录
	FilesDir string `yaml:"files_dir" json:"files_dir"`

	// Delay 加载后到运行测试前的延迟
	Delay time.Duration `yaml:"delay" json:"delay"`

	// UsePTY 是否在伪终端中运行测试
	UsePTY bool `yaml:"use_pty" json:"use_pty"`
}

// DefaultNativeTestConfig 返回默认原生测试配置
func DefaultNativeTestConfig() *NativeTestConfig {
	return &NativeTestConfig{
		Library:  "replace_me",
		FilesDir: "",
		Delay:    300 * time.Millisecond,
		UsePTY:   true,
	}
}

// Validate 验证配置
func (c *NativeTestConfig) Validate() error {
	if c.Delay < 0 {
		return fmt.Errorf("native test delay cannot be negative, got: %v", c.Delay)
	}
	return nil
}

// Merge 合并配置
func (c *NativeTestConfig) Merge(other *NativeTestConfig) error {
	if other == nil {
		return nil
	}
	if other.Library != "" {
		c.Library = other.Library
	}
	if other.FilesDir != "" {
		c.FilesDir = other.FilesDir
	}
	if other.Delay != 0 {
		c.Delay = other.Delay
	}
	c.UsePTY = other.UsePTY
	return c.Validate()
}
