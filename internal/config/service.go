package config

import (
	"fmt"
	"time"
)

// ServiceConfig 平台服务桥接配置
type ServiceConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	Builtins       []string      `yaml:"builtins" json:"builtins"`
	SendQueueSize  int           `yaml:"send_queue_size" json:"send_queue_size"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size" json:"max_message_size"`
}

// DefaultServiceConfig 返回默认服务配置
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Enabled:        true,
		Builtins:       []string{"echo", "vsync", "release"},
		SendQueueSize:  64,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// Validate 验证配置
func (c *ServiceConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	for _, name := range c.Builtins {
		if name == "" {
			return fmt.Errorf("builtin service name cannot be empty")
		}
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("send queue size must be positive, got: %d", c.SendQueueSize)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got: %v", c.WriteTimeout)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive, got: %d", c.MaxMessageSize)
	}
	return nil
}

// Merge 合并配置
func (c *ServiceConfig) Merge(other *ServiceConfig) error {
	if other == nil {
		return nil
	}
	c.Enabled = other.Enabled
	if len(other.Builtins) > 0 {
		c.Builtins = other.Builtins
	}
	if other.SendQueueSize != 0 {
		c.SendQueueSize = other.SendQueueSize
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.MaxMessageSize != 0 {
		c.MaxMessageSize = other.MaxMessageSize
	}
	return c.Validate()
}
