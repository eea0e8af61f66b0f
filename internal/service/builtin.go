package service

import (
	"encoding/json"
	"fmt"

	"github.com/open-beagle/bdwind-framerelease/internal/vsync"
)

const (
	// EchoServiceName 回显服务
	EchoServiceName = "echo"

	// VsyncServiceName vsync 状态服务
	VsyncServiceName = "vsync"
)

// echoService 原样返回客户端消息
type echoService struct{}

// NewEchoFactory 回显服务工厂
func NewEchoFactory() Factory {
	return func(ServiceContext) Service {
		return echoService{}
	}
}

func (echoService) BeforeStartOrResume() {}
func (echoService) BeforeSuspend()       {}
func (echoService) AfterStopped()        {}
func (echoService) Close()               {}

func (echoService) ReceiveFromClient(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// VsyncObserver vsync 服务依赖的采样器能力
type VsyncObserver interface {
	AddObserver()
	RemoveObserver()
	Status() vsync.Status
}

// vsyncService 会话打开期间作为采样器观察者，应用挂起时暂停观察
type vsyncService struct {
	sampler   VsyncObserver
	sessionID string
	observing bool
}

// NewVsyncFactory vsync 状态服务工厂
func NewVsyncFactory(sampler VsyncObserver) Factory {
	return func(ctx ServiceContext) Service {
		s := &vsyncService{sampler: sampler, sessionID: ctx.SessionID}
		if !ctx.suspended() {
			s.observe()
		}
		return s
	}
}

func (s *vsyncService) observe() {
	if !s.observing {
		s.sampler.AddObserver()
		s.observing = true
	}
}

func (s *vsyncService) release() {
	if s.observing {
		s.sampler.RemoveObserver()
		s.observing = false
	}
}

func (s *vsyncService) BeforeStartOrResume() { s.observe() }
func (s *vsyncService) BeforeSuspend()       { s.release() }
func (s *vsyncService) AfterStopped()        { s.release() }
func (s *vsyncService) Close()               { s.release() }

// vsyncResponse vsync 服务响应
type vsyncResponse struct {
	SessionID string       `json:"session_id"`
	Observing bool         `json:"observing"`
	Status    vsync.Status `json:"status"`
}

func (s *vsyncService) ReceiveFromClient([]byte) []byte {
	data, err := json.Marshal(vsyncResponse{
		SessionID: s.sessionID,
		Observing: s.observing,
		Status:    s.sampler.Status(),
	})
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return data
}

// BuiltinDeps 内置服务依赖
type BuiltinDeps struct {
	Sampler VsyncObserver
	Release *ReleaseOptions
}

// RegisterBuiltins 按名称注册内置服务
func RegisterBuiltins(registry *Registry, names []string, deps BuiltinDeps) error {
	for _, name := range names {
		var factory Factory
		switch name {
		case EchoServiceName:
			factory = NewEchoFactory()
		case VsyncServiceName:
			if deps.Sampler == nil {
				return fmt.Errorf("vsync service requires a sampler")
			}
			factory = NewVsyncFactory(deps.Sampler)
		case ReleaseServiceName:
			if deps.Release == nil {
				return fmt.Errorf("release service requires options")
			}
			f, err := NewReleaseFactory(*deps.Release)
			if err != nil {
				return fmt.Errorf("failed to create release service: %w", err)
			}
			factory = f
		default:
			return fmt.Errorf("%w: unknown builtin %s", ErrServiceNotFound, name)
		}
		if err := registry.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}
