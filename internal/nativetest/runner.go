package nativetest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
)

// RunnerFailedMessage 测试框架识别的加载失败标记
const RunnerFailedMessage = "[ RUNNER_FAILED ] could not load native library"

const (
	outputDrainTimeout = time.Second
	maxOutputLine      = 1024 * 1024
)

var (
	// ErrLibraryNotConfigured 未配置测试库
	ErrLibraryNotConfigured = errors.New("nativetest: native library not configured")

	// ErrLibraryLoad 测试库无法加载
	ErrLibraryLoad = errors.New("nativetest: could not load native library")
)

// Option 运行器选项
type Option func(*Runner)

// WithLogger 设置日志
func WithLogger(logger *logrus.Entry) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner 原生测试引导
// 校验测试库后延迟运行，测试输出逐行写入日志。
type Runner struct {
	cfg    config.NativeTestConfig
	logger *logrus.Entry
}

// NewRunner 创建运行器
func NewRunner(cfg *config.NativeTestConfig, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.DefaultNativeTestConfig()
	}
	r := &Runner{
		cfg:    *cfg,
		logger: config.GetLoggerWithPrefix("native-test"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 加载并运行测试
func (r *Runner) Run(ctx context.Context) error {
	library := r.cfg.Library
	if library == "" || strings.HasPrefix(library, "replace") {
		r.testFailed()
		return ErrLibraryNotConfigured
	}

	path, err := r.loadLibrary(library)
	if err != nil {
		r.logger.Errorf("Unable to load %s: %v", library, err)
		r.testFailed()
		return fmt.Errorf("%w: %v", ErrLibraryLoad, err)
	}

	filesDir, err := r.filesDir()
	if err != nil {
		return err
	}

	timer := time.NewTimer(r.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	r.logger.Info(">>nativeRunTests")
	err = r.runTests(ctx, path, filesDir)
	r.logger.Info("<<nativeRunTests")

	if err != nil {
		return fmt.Errorf("native tests failed: %w", err)
	}
	return nil
}

func (r *Runner) testFailed() {
	r.logger.Error(RunnerFailedMessage)
}

func (r *Runner) loadLibrary(library string) (string, error) {
	r.logger.Infof("loading: %s", library)
	path, err := exec.LookPath(library)
	if err != nil {
		return "", err
	}
	r.logger.Infof("loaded: %s", path)
	return path, nil
}

func (r *Runner) filesDir() (string, error) {
	dir := r.cfg.FilesDir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve files dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("failed to create files dir %s: %w", abs, err)
	}
	return abs, nil
}

func (r *Runner) runTests(ctx context.Context, path, filesDir string) error {
	cmd := exec.CommandContext(ctx, path, filesDir)
	cmd.Dir = filesDir

	if r.cfg.UsePTY {
		return r.runWithPTY(cmd)
	}
	return r.runWithPipe(cmd)
}

func (r *Runner) runWithPTY(cmd *exec.Cmd) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start %s in pty: %w", cmd.Path, err)
	}
	defer ptmx.Close()

	done := r.streamOutput(ptmx)
	waitErr := cmd.Wait()

	// 子进程退出后 pty 读端返回 EIO
	select {
	case <-done:
	case <-time.After(outputDrainTimeout):
		r.logger.Warn("Timed out draining test output")
	}
	return waitErr
}

func (r *Runner) runWithPipe(cmd *exec.Cmd) error {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	done := r.streamOutput(pr)
	waitErr := cmd.Wait()
	pw.Close()
	<-done
	return waitErr
}

func (r *Runner) streamOutput(reader io.Reader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), maxOutputLine)
		for scanner.Scan() {
			r.logger.Info(strings.TrimRight(scanner.Text(), "\r"))
		}
		if err := scanner.Err(); errors.Is(err, bufio.ErrTooLong) {
			r.logger.Warnf("Test output line exceeds %d bytes, discarding the rest of the output", maxOutputLine)
		}
		// 继续读空输出，避免子进程阻塞在写上
		io.Copy(io.Discard, reader)
	}()
	return done
}
