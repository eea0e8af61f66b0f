package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// RouteSetup 路由设置接口
// 所有需要注册HTTP路由的组件都应该实现此接口
type RouteSetup interface {
	// SetupRoutes 设置组件的HTTP路由
	SetupRoutes(router *mux.Router) error
}

// RouteSetupFunc 函数形式的 RouteSetup
type RouteSetupFunc func(router *mux.Router) error

// SetupRoutes 实现 RouteSetup
func (f RouteSetupFunc) SetupRoutes(router *mux.Router) error {
	return f(router)
}

// StatusFunc 组件状态快照，结果以 JSON 输出
type StatusFunc func() any

// JSONEndpoint 以 GET 暴露一个状态快照
type JSONEndpoint struct {
	Path   string
	Status StatusFunc
}

// SetupRoutes 实现 RouteSetup
func (e JSONEndpoint) SetupRoutes(router *mux.Router) error {
	router.HandleFunc(e.Path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, e.Status())
	}).Methods(http.MethodGet)
	return nil
}

// writeJSON 写出 JSON 响应
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
