package webserver

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// setupRoutes 重建路由
// 注意：调用此方法的函数必须已经持有mutex锁
func (ws *WebServer) setupRoutes() error {
	ws.router = mux.NewRouter()
	if ws.server != nil {
		ws.server.Handler = ws.router
	}

	if ws.config.EnableCORS {
		ws.router.Use(ws.corsMiddleware(ws.router)...)
	}
	ws.router.Use(ws.loggingMiddleware)

	ws.router.HandleFunc("/api/status", ws.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	ws.router.HandleFunc("/api/version", ws.handleVersion).Methods(http.MethodGet, http.MethodOptions)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods(http.MethodGet)

	for _, name := range ws.componentOrder {
		if err := ws.components[name].SetupRoutes(ws.router); err != nil {
			return fmt.Errorf("failed to setup routes for component %s: %w", name, err)
		}
		ws.logger.Debugf("Routes for component %s setup successfully", name)
	}
	return nil
}
