package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
)

// Handler 服务桥接的 WebSocket 传输
// 每个连接打开一个会话，二进制帧交给 ReceiveFromClient，同步响应和 SendToClient 消息经发送队列写回。
type Handler struct {
	registry *Registry
	cfg      config.ServiceConfig
	upgrader websocket.Upgrader
	logger   *logrus.Entry

	mu    sync.Mutex
	conns map[*connection]struct{}
}

// NewHandler 创建 WebSocket 处理器
func NewHandler(registry *Registry, cfg *config.ServiceConfig) *Handler {
	if cfg == nil {
		cfg = config.DefaultServiceConfig()
	}
	return &Handler{
		registry: registry,
		cfg:      *cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: config.GetLoggerWithPrefix("service-bridge"),
		conns:  make(map[*connection]struct{}),
	}
}

// SetupRoutes 注册服务路由
func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/services", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/services/{name}", h.handleConnect).Methods(http.MethodGet)
}

// Close 断开所有连接
func (h *Handler) Close() {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
}

// ConnectionCount 当前连接数
func (h *Handler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"services": h.registry.Names(),
		"sessions": h.registry.Sessions(),
		"state":    h.registry.State(),
	}); err != nil {
		h.logger.Warnf("Failed to write service list: %v", err)
	}
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !h.registry.Has(name) {
		http.Error(w, "service not found: "+name, http.StatusNotFound)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("WebSocket upgrade failed for service %s: %v", name, err)
		return
	}

	c := &connection{
		ws:           ws,
		send:         make(chan []byte, h.cfg.SendQueueSize),
		done:         make(chan struct{}),
		writeTimeout: h.cfg.WriteTimeout,
	}

	session, err := h.registry.Open(name, c.enqueue)
	if err != nil {
		h.logger.Warnf("Failed to open service %s: %v", name, err)
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		ws.Close()
		return
	}
	c.session = session
	c.logger = h.logger.WithFields(logrus.Fields{"service": name, "session": session.ID()})

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	c.readPump(h.cfg.MaxMessageSize)

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// connection 单个 WebSocket 连接
type connection struct {
	ws           *websocket.Conn
	session      *Session
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	logger       *logrus.Entry
}

// enqueue 实现 Sender
func (c *connection) enqueue(data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump 读取客户端消息
func (c *connection) readPump(maxMessageSize int64) {
	defer func() {
		c.session.Close()
		c.shutdown()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.logger.Debug("Service connection read pump started")

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnf("Service connection closed unexpectedly: %v", err)
			} else {
				c.logger.Debugf("Service connection closed: %v", err)
			}
			return
		}

		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}

		response, err := c.session.Receive(data)
		if err != nil {
			return
		}
		if response == nil {
			continue
		}
		if err := c.enqueue(response); err != nil {
			c.logger.Warnf("Dropping service response (%d bytes): %v", len(response), err)
		}
	}
}

// writePump 向客户端发送消息
func (c *connection) writePump() {
	defer c.ws.Close()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				c.logger.Warnf("Service connection write error: %v", err)
				c.shutdown()
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			err := c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "service closed"))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Debugf("Failed to send close frame: %v", err)
			}
			return
		}
	}
}
