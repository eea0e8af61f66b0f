package webserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
)

func newTestServer(t *testing.T) *WebServer {
	t.Helper()
	ws, err := NewWebServer(config.DefaultWebServerConfig(), VersionInfo{Version: "1.2.3", GitCommit: "abc"})
	require.NoError(t, err)
	return ws
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewWebServer_InvalidConfig(t *testing.T) {
	cfg := config.DefaultWebServerConfig()
	cfg.Port = 0
	_, err := NewWebServer(cfg, VersionInfo{})
	assert.Error(t, err)
}

func TestWebServer_BasicRoutes(t *testing.T) {
	ws := newTestServer(t)
	ws.RegisterStatus("vsync", func() any { return map[string]int{"observers": 2} })

	handler, err := ws.Handler()
	require.NoError(t, err)

	rec := get(t, handler, "/api/version")
	require.Equal(t, http.StatusOK, rec.Code)
	var version VersionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Equal(t, "1.2.3", version.Version)
	assert.Equal(t, "abc", version.GitCommit)
	assert.NotEmpty(t, version.GoVersion)

	rec = get(t, handler, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Status     string                    `json:"status"`
		Components map[string]map[string]int `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, 2, status.Components["vsync"]["observers"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusOK, get(t, handler, "/health").Code)
	assert.Equal(t, http.StatusNotFound, get(t, handler, "/missing").Code)
}

func TestWebServer_Components(t *testing.T) {
	ws := newTestServer(t)

	require.NoError(t, ws.RegisterComponent("vsync", JSONEndpoint{
		Path:   "/api/vsync",
		Status: func() any { return map[string]bool{"subscribed": true} },
	}))
	require.NoError(t, ws.RegisterComponent("custom", RouteSetupFunc(func(router *mux.Router) error {
		router.HandleFunc("/api/custom", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
		return nil
	})))
	assert.Error(t, ws.RegisterComponent("vsync", JSONEndpoint{}))
	assert.Error(t, ws.RegisterComponent("nil", nil))
	assert.Equal(t, []string{"vsync", "custom"}, ws.ListComponents())

	handler, err := ws.Handler()
	require.NoError(t, err)

	rec := get(t, handler, "/api/vsync")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subscribed":true}`, rec.Body.String())
	assert.Equal(t, http.StatusTeapot, get(t, handler, "/api/custom").Code)
}

func TestWebServer_ComponentRouteError(t *testing.T) {
	ws := newTestServer(t)
	require.NoError(t, ws.RegisterComponent("broken", RouteSetupFunc(func(*mux.Router) error {
		return assert.AnError
	})))

	_, err := ws.Handler()
	assert.ErrorIs(t, err, assert.AnError)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestWebServer_StartStop(t *testing.T) {
	cfg := config.DefaultWebServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)

	ws, err := NewWebServer(cfg, VersionInfo{Version: "test"})
	require.NoError(t, err)
	require.NoError(t, ws.Start())
	assert.True(t, ws.IsRunning())
	assert.Error(t, ws.Start())
	assert.Error(t, ws.RegisterComponent("late", JSONEndpoint{Path: "/late"}))

	resp, err := http.Get("http://" + ws.Addr() + "/api/version")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ws.Stop(ctx))
	assert.False(t, ws.IsRunning())
	require.NoError(t, ws.Stop(ctx))
}

func TestWebServer_CORSPreflight(t *testing.T) {
	ws := newTestServer(t)
	handler, err := ws.Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/status", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodGet)
}

func TestWebServer_RequestLogging(t *testing.T) {
	ws := newTestServer(t)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	ws.logger = logrus.NewEntry(logger)

	require.NoError(t, ws.RegisterComponent("broken", RouteSetupFunc(func(router *mux.Router) error {
		router.HandleFunc("/api/broken", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "sampler closed", http.StatusInternalServerError)
		})
		return nil
	})))
	handler, err := ws.Handler()
	require.NoError(t, err)

	hook.Reset()
	get(t, handler, "/health")
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, http.StatusOK, entry.Data["status"])
	assert.Equal(t, "/health", entry.Data["path"])

	get(t, handler, "/api/broken")
	entry = hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, http.StatusInternalServerError, entry.Data["status"])
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rec.Hijack()
	assert.Error(t, err)
}
