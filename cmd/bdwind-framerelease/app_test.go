package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
	"github.com/open-beagle/bdwind-framerelease/internal/service"
)

func TestApplyFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, applyFlags(cfg, "127.0.0.1", 9000, "50", "DEBUG", "", "/tmp/app.log"))
	assert.Equal(t, "127.0.0.1", cfg.WebServer.Host)
	assert.Equal(t, 9000, cfg.WebServer.Port)
	assert.True(t, cfg.FrameRelease.AlignVsync)
	assert.Equal(t, 50.0, cfg.FrameRelease.RefreshRate)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "file", cfg.Logging.Output)
	assert.Equal(t, "/tmp/app.log", cfg.Logging.File)

	require.NoError(t, applyFlags(cfg, "", 0, "unknown", "", "", ""))
	assert.False(t, cfg.FrameRelease.AlignVsync)
	assert.Equal(t, "unknown (vsync alignment disabled)", refreshRateLabel(cfg))

	assert.Error(t, applyFlags(cfg, "", 0, "fast", "", "", ""))
	assert.Error(t, applyFlags(cfg, "", 0, "", "loud", "", ""))
}

func TestSoftwareRefreshRate(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, 60.0, softwareRefreshRate(cfg))

	cfg.FrameRelease.RefreshRate = 144
	assert.Equal(t, 144.0, softwareRefreshRate(cfg))

	cfg.Vsync.RefreshRate = 90
	assert.Equal(t, 90.0, softwareRefreshRate(cfg))

	cfg.Vsync.RefreshRate = 0
	cfg.FrameRelease.AlignVsync = false
	assert.Equal(t, 60.0, softwareRefreshRate(cfg))
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestFrameReleaseApp_StartStop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WebServer.Host = "127.0.0.1"
	cfg.WebServer.Port = freePort(t)
	cfg.Vsync.SampleInterval = 10 * time.Millisecond

	app, err := NewFrameReleaseApp(cfg, "")
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))

	base := "http://" + app.webServer.Addr()

	resp, err := http.Get(base + "/api/vsync")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"observer_count":0`)

	// a vsync session keeps the sampler subscribed
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/api/services/" + service.VsyncServiceName
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return app.sampler.SampledVsyncTimeNs() != 0 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("status")))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"observer_count":1`)
	conn.Close()

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "bdwind_vsync_observers")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Stop(ctx))
	assert.Equal(t, int64(0), app.sampler.SampledVsyncTimeNs())
}

func TestFrameReleaseApp_ApplyConfigLogLevels(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, config.ApplyLogLevels(config.DefaultLoggingConfig()))
	})

	app := &FrameReleaseApp{logger: config.GetLoggerWithPrefix("app")}
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Components = map[string]string{"frame-release": "trace"}

	app.applyConfig(cfg)
	assert.Equal(t, "warn", config.GetGlobalLogLevel())
	assert.Equal(t, "trace", config.GetComponentLogLevel("frame-release"))
	assert.Equal(t, "warn", config.GetComponentLogLevel("scheduler"))
}
