package service

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
)

// LifecycleState 应用生命周期状态
type LifecycleState string

const (
	LifecycleStopped   LifecycleState = "stopped"
	LifecycleStarted   LifecycleState = "started"
	LifecycleSuspended LifecycleState = "suspended"
)

// SessionInfo 会话信息
type SessionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session 打开的服务实例
type Session struct {
	id       string
	name     string
	service  Service
	registry *Registry

	closing atomic.Bool

	mu     sync.Mutex
	closed bool
}

// ID 会话ID
func (s *Session) ID() string {
	return s.id
}

// Name 服务名
func (s *Session) Name() string {
	return s.name
}

// Receive 把客户端消息交给服务
func (s *Session) Receive(data []byte) ([]byte, error) {
	if s.closing.Load() {
		return nil, ErrSessionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.closing.Load() {
		return nil, ErrSessionClosed
	}
	return s.service.ReceiveFromClient(data), nil
}

// Close 关闭服务并从注册表移除，可重复调用
// 先中断进行中的 Receive，再等待会话锁。
func (s *Session) Close() {
	if s.closing.Swap(true) {
		return
	}
	s.interrupt()

	s.mu.Lock()
	s.closed = true
	s.service.Close()
	s.mu.Unlock()

	s.registry.remove(s.id)
}

func (s *Session) interrupt() {
	if i, ok := s.service.(Interrupter); ok {
		i.Interrupt()
	}
}

// dispatch 在会话锁内执行生命周期回调
func (s *Session) dispatch(fn func(Service), interrupt bool) {
	if interrupt {
		s.interrupt()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		fn(s.service)
	}
}

// Registry 服务注册表
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	sessions  map[string]*Session
	state     LifecycleState
	logger    *logrus.Entry
}

// NewRegistry 创建服务注册表
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		sessions:  make(map[string]*Session),
		state:     LifecycleStopped,
		logger:    config.GetLoggerWithPrefix("service-registry"),
	}
}

// Register 注册服务工厂
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("service name and factory are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrServiceExists, name)
	}
	r.factories[name] = factory
	r.logger.Debugf("Registered service %s", name)
	return nil
}

// Has 服务是否已注册
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[name]
	return exists
}

// Names 已注册的服务名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open 创建服务实例
func (r *Registry) Open(name string, sender Sender) (*Session, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if sender == nil {
		sender = func([]byte) error { return ErrSessionClosed }
	}

	id := uuid.NewString()
	svc := factory(ServiceContext{
		SessionID:    id,
		Name:         name,
		SendToClient: sender,
		Lifecycle:    r.State,
	})
	if svc == nil {
		return nil, fmt.Errorf("service factory %s returned nil", name)
	}

	session := &Session{
		id:       id,
		name:     name,
		service:  svc,
		registry: r,
	}

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	r.logger.Infof("Opened service %s (session %s)", name, id)
	return session, nil
}

// Sessions 当前打开的会话
func (r *Registry) Sessions() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, SessionInfo{ID: s.id, Name: s.name})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// State 当前生命周期状态
func (r *Registry) State() LifecycleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// StartOrResume 分发启动/恢复事件
func (r *Registry) StartOrResume() {
	r.transition(LifecycleStarted, Service.BeforeStartOrResume)
}

// Suspend 分发挂起事件
func (r *Registry) Suspend() {
	r.transition(LifecycleSuspended, Service.BeforeSuspend)
}

// Stop 分发停止事件
func (r *Registry) Stop() {
	r.transition(LifecycleStopped, Service.AfterStopped)
}

// CloseAll 关闭所有会话
func (r *Registry) CloseAll() {
	for _, s := range r.snapshot() {
		s.Close()
	}
}

func (r *Registry) transition(state LifecycleState, fn func(Service)) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()

	// 挂起和停止不等待阻塞中的帧
	interrupt := state != LifecycleStarted
	sessions := r.snapshot()
	for _, s := range sessions {
		s.dispatch(fn, interrupt)
	}
	r.logger.Infof("Lifecycle %s dispatched to %d services", state, len(sessions))
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	session, exists := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if exists {
		r.logger.Infof("Closed service %s (session %s)", session.name, id)
	}
}
