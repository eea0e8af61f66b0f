package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().SaveToFile(path))

	var latest atomic.Pointer[Config]
	w, err := NewWatcher(path, func(cfg *Config) { latest.Store(cfg) })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	require.NoError(t, w.Start(testContext(t)))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644))

	assert.Eventually(t, func() bool {
		cfg := latest.Load()
		return cfg != nil && cfg.Logging.Level == "debug"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().SaveToFile(path))

	var calls atomic.Int32
	w, err := NewWatcher(path, func(*Config) { calls.Add(1) })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	require.NoError(t, w.Start(testContext(t)))
	require.NoError(t, os.WriteFile(path, []byte("webserver:\n  port: -1\n"), 0644))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, int32(0), calls.Load())
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher("", func(*Config) {})
	assert.Error(t, err)

	_, err = NewWatcher("config.yaml", nil)
	assert.Error(t, err)
}

// testContext returns a context canceled when the test finishes
// (equivalent of testing.T.Context, which requires Go 1.24).
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
