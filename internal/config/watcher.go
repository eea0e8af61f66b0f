package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const watcherDebounce = 100 * time.Millisecond

// Watcher 配置文件监听器
// 配置文件被写入或替换后重新加载，并把通过验证的新配置交给回调。
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *logrus.Entry
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher 创建配置文件监听器
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if onChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	return &Watcher{
		path:     absPath,
		onChange: onChange,
		logger:   GetLoggerWithPrefix("config-watcher"),
		debounce: watcherDebounce,
	}, nil
}

// Start 开始监听
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return fmt.Errorf("config watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// 监听目录：编辑器通常以重命名方式替换文件
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.watcher = fsw
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(runCtx, fsw)

	w.logger.Infof("Watching config file %s", w.path)
	return nil
}

// Stop 停止监听
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fsw := w.watcher
	cancel := w.cancel
	w.watcher = nil
	w.cancel = nil
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}

	cancel()
	err := fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("Config watcher error: %v", err)

		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfigFromFile(w.path)
	if err != nil {
		w.logger.Warnf("Ignoring config change: %v", err)
		return
	}
	w.logger.Infof("Config file reloaded: %s", cfg)
	w.onChange(cfg)
}
