package webserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
)

// VersionInfo 版本信息
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

// WebServer Web服务器
type WebServer struct {
	config    *config.WebServerConfig
	server    *http.Server
	router    *mux.Router
	listener  net.Listener
	version   VersionInfo
	logger    *logrus.Entry
	mutex     sync.RWMutex
	running   bool
	startTime time.Time
	serveErr  chan error

	components     map[string]RouteSetup
	componentOrder []string
	statuses       map[string]StatusFunc
}

// NewWebServer 创建Web服务器
func NewWebServer(cfg *config.WebServerConfig, version VersionInfo) (*WebServer, error) {
	if cfg == nil {
		cfg = config.DefaultWebServerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if version.GoVersion == "" {
		version.GoVersion = runtime.Version()
	}

	ws := &WebServer{
		config:     cfg,
		router:     mux.NewRouter(),
		version:    version,
		logger:     config.GetLoggerWithPrefix("webserver"),
		startTime:  time.Now(),
		components: make(map[string]RouteSetup),
		statuses:   make(map[string]StatusFunc),
	}

	ws.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      ws.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     config.GetStandardLoggerWithPrefix("webserver-http"),
	}

	return ws, nil
}

// RegisterComponent 注册组件路由
func (ws *WebServer) RegisterComponent(name string, component RouteSetup) error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if ws.running {
		return fmt.Errorf("cannot register component %s while server is running", name)
	}
	if component == nil {
		return fmt.Errorf("component %s is nil", name)
	}
	if _, exists := ws.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}

	ws.components[name] = component
	ws.componentOrder = append(ws.componentOrder, name)
	ws.logger.Debugf("Component %s registered", name)
	return nil
}

// RegisterStatus 注册出现在 /api/status 中的组件状态
func (ws *WebServer) RegisterStatus(name string, status StatusFunc) {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()
	ws.statuses[name] = status
}

// ListComponents 列出所有已注册的组件名称
func (ws *WebServer) ListComponents() []string {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	return append([]string(nil), ws.componentOrder...)
}

// Handler 构建路由并返回HTTP处理器
func (ws *WebServer) Handler() (http.Handler, error) {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if err := ws.setupRoutes(); err != nil {
		return nil, err
	}
	return ws.router, nil
}

// Start 监听并在后台提供服务
func (ws *WebServer) Start() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if ws.running {
		return fmt.Errorf("web server already running")
	}
	if err := ws.setupRoutes(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", ws.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.server.Addr, err)
	}

	ws.listener = listener
	ws.running = true
	ws.startTime = time.Now()
	ws.serveErr = make(chan error, 1)

	go func(errCh chan<- error) {
		err := ws.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			ws.logger.Errorf("Web server stopped: %v", err)
		}
		errCh <- err
	}(ws.serveErr)

	ws.logger.Infof("Web server listening on %s", listener.Addr())
	return nil
}

// Addr 实际监听地址
func (ws *WebServer) Addr() string {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if ws.listener == nil {
		return ws.server.Addr
	}
	return ws.listener.Addr().String()
}

// Stop 停止Web服务器
func (ws *WebServer) Stop(ctx context.Context) error {
	ws.mutex.Lock()
	if !ws.running {
		ws.mutex.Unlock()
		return nil
	}
	ws.running = false
	errCh := ws.serveErr
	ws.mutex.Unlock()

	ws.logger.Info("Stopping web server...")
	if err := ws.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown web server: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning 检查服务器是否运行中
func (ws *WebServer) IsRunning() bool {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	return ws.running
}

// API处理器
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws.mutex.RLock()
	statuses := make(map[string]StatusFunc, len(ws.statuses))
	for name, fn := range ws.statuses {
		statuses[name] = fn
	}
	running := ws.running
	startTime := ws.startTime
	ws.mutex.RUnlock()

	components := make(map[string]any, len(statuses))
	for name, fn := range statuses {
		components[name] = fn()
	}

	writeJSON(w, map[string]any{
		"status":     "running",
		"running":    running,
		"timestamp":  time.Now().Unix(),
		"uptime":     time.Since(startTime).Seconds(),
		"components": components,
		"version":    ws.version.Version,
	})
}

func (ws *WebServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ws.version)
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "healthy",
	})
}
