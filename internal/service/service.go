package service

import "errors"

var (
	// ErrServiceNotFound 服务未注册
	ErrServiceNotFound = errors.New("service: not found")

	// ErrServiceExists 服务重复注册
	ErrServiceExists = errors.New("service: already registered")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("service: session closed")

	// ErrSendQueueFull 发送队列已满
	ErrSendQueueFull = errors.New("service: send queue full")

	// ErrSuspended 应用挂起期间拒绝处理
	ErrSuspended = errors.New("service: suspended")
)

// Service 平台服务
// 生命周期回调由 Registry 在应用启动、挂起和停止时分发。
type Service interface {
	// BeforeStartOrResume 应用启动或恢复之前
	BeforeStartOrResume()

	// BeforeSuspend 应用挂起之前
	BeforeSuspend()

	// AfterStopped 应用停止之后
	AfterStopped()

	// ReceiveFromClient 处理客户端消息，返回值非 nil 时作为同步响应
	ReceiveFromClient(data []byte) []byte

	// Close 关闭服务
	Close()
}

// Interrupter 可选接口，中断正在阻塞的 ReceiveFromClient
// 会话关闭以及挂起、停止分发之前调用，不持有会话锁。
// 之后到下一次生命周期回调之前开始的调用也应立即返回。
type Interrupter interface {
	Interrupt()
}

// Sender 向客户端异步发送消息
type Sender func(data []byte) error

// ServiceContext 创建服务时的上下文
type ServiceContext struct {
	// SessionID 会话ID
	SessionID string

	// Name 服务名
	Name string

	// SendToClient 向客户端发送消息
	SendToClient Sender

	// Lifecycle 当前应用生命周期状态
	Lifecycle func() LifecycleState
}

// Factory 服务工厂
type Factory func(ctx ServiceContext) Service

// suspended 生命周期是否处于挂起
func (c ServiceContext) suspended() bool {
	return c.Lifecycle != nil && c.Lifecycle() == LifecycleSuspended
}
