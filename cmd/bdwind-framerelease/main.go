package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
	"github.com/open-beagle/bdwind-framerelease/internal/nativetest"
)

const AppName = "BDWind-FrameRelease"

// 构建时通过 -ldflags 注入
var (
	AppVersion = "1.0.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

func main() {
	// 解析命令行参数
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		port        = flag.Int("port", 0, "Web server port")
		host        = flag.String("host", "", "Web server host")
		refreshRate = flag.String("refresh-rate", "", "Display refresh rate in Hz, or 'unknown' to disable vsync alignment")
		logLevel    = flag.String("log-level", "", "Log level (TRACE, DEBUG, INFO, WARN, ERROR)")
		logOutput   = flag.String("log-output", "", "Log output (stdout, stderr, file)")
		logFile     = flag.String("log-file", "", "Log file path (when log-output is file)")
		nativeTest  = flag.Bool("native-test", false, "Run the native test bootstrap and exit")
		version     = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s (commit %s, built %s)\n", AppName, AppVersion, GitCommit, BuildTime)
		fmt.Println("Frame release time adjustment and vsync sampling service")
		return
	}

	// 加载配置
	var (
		cfg *config.Config
		err error
	)
	if *configFile != "" {
		cfg, err = config.LoadConfigFromFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnv()

	// 命令行参数覆盖配置
	if err := applyFlags(cfg, *host, *port, *refreshRate, *logLevel, *logOutput, *logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid flags: %v\n", err)
		os.Exit(2)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志系统
	if err := config.SetupLogger(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	logger := config.GetLoggerWithPrefix("main")
	if *configFile != "" {
		logger.Infof("Configuration loaded from %s", *configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *nativeTest {
		os.Exit(runNativeTests(ctx, cfg, logger))
	}

	app, err := NewFrameReleaseApp(cfg, *configFile)
	if err != nil {
		logger.Fatalf("Failed to create application: %v", err)
	}

	startCtx, cancelStart := context.WithTimeout(ctx, cfg.Lifecycle.StartupTimeout)
	err = app.Start(startCtx)
	cancelStart()
	if err != nil {
		logger.Fatalf("Application failed to start: %v", err)
	}

	fmt.Printf("\n%s v%s started\n", AppName, AppVersion)
	fmt.Printf("Web Interface: http://%s\n", app.webServer.Addr())
	if cfg.Metrics.Enabled {
		fmt.Printf("Metrics: http://%s%s\n", app.webServer.Addr(), cfg.Metrics.Path)
	}
	fmt.Printf("Refresh rate: %s\n", refreshRateLabel(cfg))
	fmt.Println("\nPress Ctrl+C to stop")

	// 等待信号
	<-ctx.Done()
	logger.Info("Received shutdown signal, initiating graceful shutdown")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Lifecycle.ShutdownTimeout)
	defer cancel()

	if err := app.Stop(shutdownCtx); err != nil {
		logger.Errorf("Application shutdown error: %v", err)
		os.Exit(1)
	}
	logger.Info("Application stopped gracefully")
}

// applyFlags 命令行参数覆盖配置
func applyFlags(cfg *config.Config, host string, port int, refreshRate, logLevel, logOutput, logFile string) error {
	if host != "" {
		cfg.WebServer.Host = host
	}
	if port != 0 {
		cfg.WebServer.Port = port
	}

	if refreshRate != "" {
		if refreshRate == "unknown" {
			cfg.FrameRelease.AlignVsync = false
		} else {
			hz, err := strconv.ParseFloat(refreshRate, 64)
			if err != nil {
				return fmt.Errorf("invalid refresh rate %q: %w", refreshRate, err)
			}
			cfg.FrameRelease.AlignVsync = true
			cfg.FrameRelease.RefreshRate = hz
		}
	}

	if logLevel != "" {
		level, err := config.ParseLogLevel(logLevel)
		if err != nil {
			return err
		}
		cfg.Logging.Level = level
	}
	if logOutput != "" {
		cfg.Logging.Output = logOutput
	}
	if logFile != "" {
		cfg.Logging.File = logFile
		if logOutput == "" {
			cfg.Logging.Output = "file"
		}
	}
	return nil
}

func refreshRateLabel(cfg *config.Config) string {
	if !cfg.FrameRelease.AlignVsync {
		return "unknown (vsync alignment disabled)"
	}
	return fmt.Sprintf("%.2f Hz", cfg.FrameRelease.RefreshRate)
}

// runNativeTests 运行原生测试并返回进程退出码
func runNativeTests(ctx context.Context, cfg *config.Config, logger *logrus.Entry) int {
	runner := nativetest.NewRunner(cfg.NativeTest)
	if err := runner.Run(ctx); err != nil {
		logger.Errorf("Native tests failed: %v", err)
		return 1
	}
	return 0
}
