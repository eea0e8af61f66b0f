package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
	"github.com/open-beagle/bdwind-framerelease/internal/metrics"
	"github.com/open-beagle/bdwind-framerelease/internal/service"
	"github.com/open-beagle/bdwind-framerelease/internal/vsync"
	"github.com/open-beagle/bdwind-framerelease/internal/webserver"
)

// FrameReleaseApp 帧释放服务应用
type FrameReleaseApp struct {
	config     *config.Config
	configPath string
	logger     *logrus.Entry
	startTime  time.Time

	metrics        metrics.Metrics
	releaseMetrics *metrics.FrameReleaseMetrics
	sampler        *vsync.Sampler
	registry       *service.Registry
	serviceHandler *service.Handler
	webServer      *webserver.WebServer
	watcher        *config.Watcher
}

// NewFrameReleaseApp 创建应用
func NewFrameReleaseApp(cfg *config.Config, configPath string) (*FrameReleaseApp, error) {
	app := &FrameReleaseApp{
		config:     cfg,
		configPath: configPath,
		logger:     config.GetLoggerWithPrefix("app"),
		startTime:  time.Now(),
	}

	var samplerOpts []vsync.Option
	samplerOpts = append(samplerOpts,
		vsync.WithSampleInterval(cfg.Vsync.SampleInterval),
		vsync.WithLogger(config.GetLoggerWithPrefix("vsync-sampler")),
	)

	if cfg.Metrics.Enabled {
		m, err := metrics.NewMetrics(cfg.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
		frm, err := metrics.NewFrameReleaseMetrics(m)
		if err != nil {
			return nil, fmt.Errorf("failed to create frame release metrics: %w", err)
		}
		app.metrics = m
		app.releaseMetrics = frm
		samplerOpts = append(samplerOpts, vsync.WithObserverGauge(frm.ObserverGauge()))
	}

	source, err := vsync.NewSoftwareSource(softwareRefreshRate(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create vsync source: %w", err)
	}
	app.sampler = vsync.NewSampler(source, samplerOpts...)

	webServer, err := webserver.NewWebServer(cfg.WebServer, webserver.VersionInfo{
		Version:   AppVersion,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})
	if err != nil {
		app.sampler.Close()
		return nil, fmt.Errorf("failed to create web server: %w", err)
	}
	app.webServer = webServer

	if err := app.setupServices(); err != nil {
		app.sampler.Close()
		return nil, err
	}
	if err := app.registerComponents(); err != nil {
		app.sampler.Close()
		return nil, err
	}

	return app, nil
}

// softwareRefreshRate 软件 vsync 源的刷新率
func softwareRefreshRate(cfg *config.Config) float64 {
	if cfg.Vsync.RefreshRate > 0 {
		return cfg.Vsync.RefreshRate
	}
	if cfg.FrameRelease.AlignVsync && cfg.FrameRelease.RefreshRate > 0 {
		return cfg.FrameRelease.RefreshRate
	}
	return 60
}

func (app *FrameReleaseApp) setupServices() error {
	app.registry = service.NewRegistry()
	if !app.config.Service.Enabled {
		return nil
	}

	release := &service.ReleaseOptions{
		FrameRelease: app.config.FrameRelease,
		Scheduler:    app.config.Scheduler,
		Sampler:      app.sampler,
	}
	if app.releaseMetrics != nil {
		release.Recorder = func(streamID string) service.ReleaseRecorder {
			return app.releaseMetrics.Stream(streamID)
		}
	}

	err := service.RegisterBuiltins(app.registry, app.config.Service.Builtins, service.BuiltinDeps{
		Sampler: app.sampler,
		Release: release,
	})
	if err != nil {
		return fmt.Errorf("failed to register services: %w", err)
	}

	app.serviceHandler = service.NewHandler(app.registry, app.config.Service)
	return nil
}

func (app *FrameReleaseApp) registerComponents() error {
	if app.metrics != nil {
		path := app.config.Metrics.Path
		err := app.webServer.RegisterComponent("metrics", webserver.RouteSetupFunc(func(router *mux.Router) error {
			app.metrics.SetupRoutes(router, path)
			return nil
		}))
		if err != nil {
			return err
		}
	}

	err := app.webServer.RegisterComponent("vsync", webserver.JSONEndpoint{
		Path:   "/api/vsync",
		Status: func() any { return app.sampler.Status() },
	})
	if err != nil {
		return err
	}
	app.webServer.RegisterStatus("vsync", func() any { return app.sampler.Status() })

	if app.serviceHandler != nil {
		err := app.webServer.RegisterComponent("services", webserver.RouteSetupFunc(func(router *mux.Router) error {
			app.serviceHandler.SetupRoutes(router)
			return nil
		}))
		if err != nil {
			return err
		}
		app.webServer.RegisterStatus("services", func() any {
			return map[string]any{
				"state":       app.registry.State(),
				"sessions":    len(app.registry.Sessions()),
				"connections": app.serviceHandler.ConnectionCount(),
			}
		})
	}

	app.webServer.RegisterStatus("frame_release", func() any {
		return map[string]any{
			"align_vsync":  app.config.FrameRelease.AlignVsync,
			"refresh_rate": app.config.FrameRelease.RefreshRateHz(),
			"uptime":       time.Since(app.startTime).Seconds(),
		}
	})
	app.webServer.RegisterStatus("logging", func() any {
		return map[string]any{
			"level":      config.GetGlobalLogLevel(),
			"components": config.ComponentLogLevels(),
		}
	})
	return nil
}

// Start 启动应用
func (app *FrameReleaseApp) Start(ctx context.Context) error {
	app.logger.Infof("Starting %s v%s", AppName, AppVersion)

	if app.configPath != "" && app.config.Lifecycle.WatchConfig {
		watcher, err := config.NewWatcher(app.configPath, app.applyConfig)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		app.watcher = watcher
	}

	app.registry.StartOrResume()

	if err := app.webServer.Start(); err != nil {
		app.logger.Errorf("Failed to start web server: %v", err)

		// Rollback
		app.registry.Stop()
		if app.watcher != nil {
			app.watcher.Stop()
		}
		return fmt.Errorf("failed to start web server: %w", err)
	}

	app.logger.Infof("%s started successfully (%s)", AppName, app.config)
	return nil
}

// applyConfig 配置文件变化时应用可热更新的部分
func (app *FrameReleaseApp) applyConfig(cfg *config.Config) {
	if err := config.ApplyLogLevels(cfg.Logging); err != nil {
		app.logger.Warnf("Failed to apply log levels: %v", err)
		return
	}
	app.logger.Infof("Log levels applied: global=%s components=%v",
		cfg.Logging.Level, cfg.Logging.Components)
}

// Stop 停止应用
func (app *FrameReleaseApp) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application...")

	var errs []error
	if err := app.webServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop webserver: %w", err))
	}

	if app.serviceHandler != nil {
		app.serviceHandler.Close()
	}
	app.registry.Stop()
	app.registry.CloseAll()
	app.sampler.Close()

	if app.watcher != nil {
		if err := app.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop config watcher: %w", err))
		}
	}

	if len(errs) > 0 {
		app.logger.Warnf("Application stopped with %d errors", len(errs))
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	app.logger.Info("Application stopped successfully")
	return nil
}
