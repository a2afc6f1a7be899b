// Command presentmon-service is the capture-side process: it publishes the
// introspection catalog, answers control-pipe StartStream/StopStream
// requests, and owns the per-process frame rings clients stream from.
// Frame capture itself (the ETW-equivalent producer that calls
// ring.Writer.Push) is outside this repository's scope; this binary wires
// modules A (log channel), B (introspection), and C (control pipe +
// rings).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99souls/presentmon/internal/config"
	"github.com/99souls/presentmon/internal/configx"
	"github.com/99souls/presentmon/internal/controlpipe"
	"github.com/99souls/presentmon/internal/introspection"
	"github.com/99souls/presentmon/internal/logchannel"
	"github.com/99souls/presentmon/internal/query"
	"github.com/99souls/presentmon/internal/ringregistry"
	"github.com/99souls/presentmon/internal/service"
	"github.com/99souls/presentmon/internal/telemetry/events"
	"github.com/99souls/presentmon/internal/telemetry/metrics"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a service.yaml config file (defaults applied when absent)")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presentmon-service: %v\n", err)
		os.Exit(1)
	}

	// bus is assigned below; the closure only fires after NewBus runs, so
	// capturing it by reference here is safe.
	var bus events.Bus
	metricsProvider := metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{
		OnCardinalityExceeded: func(metric string, limit int) {
			if bus == nil {
				return
			}
			_ = bus.Publish(events.Event{
				Category: events.CategoryLogChannel,
				Type:     "cardinality_exceeded",
				Severity: "warn",
				Labels:   map[string]string{"metric": metric},
			})
		},
	})

	channel := logchannel.New(logchannel.WithMetrics(metricsProvider))
	defer channel.Close()
	attachLogDrivers(channel, metricsProvider, cfg.LogLevel)
	slog.SetDefault(slog.New(logchannel.NewHandler(channel)))

	bus = events.NewBus(metricsProvider)

	logger := slog.Default()
	logger.Info("starting presentmon-service", "config", configPath, "control_pipe", cfg.ControlPipePath)

	publisher, err := publishCatalog(cfg)
	if err != nil {
		logger.Error("introspection publish failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		publisher.Close()
		_ = publisher.RemoveAll()
	}()

	registry := ringregistry.New(ringregistry.Config{
		MaxEntries:     cfg.RingMaxEntries,
		TicksPerSecond: cfg.RingTicksPerSecond,
	}, nil)

	readers := query.NewReaderSet()
	handler := service.NewStreamHandler(registry, readers, logger, bus)

	pipeServer, err := controlpipe.NewServer(cfg.ControlPipePath, handler, logger)
	if err != nil {
		logger.Error("control pipe listen failed", "err", err)
		os.Exit(1)
	}

	serveErrs := make(chan error, 1)
	go func() { serveErrs <- pipeServer.Serve() }()

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsProvider.MetricsHandler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	var watchStop chan struct{}
	if cfg.HotReload && configPath != "" {
		watchStop = watchConfig(configPath, logger, bus)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received; shutting down")
		cancel()
		<-sigCh
		logger.Warn("second signal received; forcing exit")
		os.Exit(1)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErrs:
		if err != nil {
			logger.Error("control pipe serve failed", "err", err)
		}
	}

	if watchStop != nil {
		close(watchStop)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	_ = pipeServer.Close()
	channel.FlushEntryPointExit()
	logger.Info("presentmon-service stopped")
}

// loadConfig resolves the three configx layers (defaults, the file at
// path if any, the process environment) into one validated config.
// SPEC_FULL.md §A.3 commits to this layered resolution rather than the
// flat config.Load alone.
func loadConfig(path string) (config.ServiceConfig, error) {
	return configx.Load(path, os.Environ())
}

func attachLogDrivers(channel *logchannel.Channel, provider metrics.Provider, level string) {
	threshold := logchannel.SeverityInfo
	switch level {
	case "debug":
		threshold = logchannel.SeverityDebug
	case "warn":
		threshold = logchannel.SeverityWarning
	case "error":
		threshold = logchannel.SeverityError
	}
	_ = channel.AttachComponent(&logchannel.LevelFilterPolicy{Threshold: threshold})
	_ = channel.AttachComponent(logchannel.NewTextDriver("stdout", os.Stdout))
	_ = channel.AttachComponent(logchannel.NewMetricsDriver(provider))
}

func publishCatalog(cfg config.ServiceConfig) (*introspection.Publisher, error) {
	root := introspection.BuildDefaultRoot()
	publisher, err := introspection.NewPublisher(cfg.IntrospectionSegmentName)
	if err != nil {
		return nil, fmt.Errorf("create introspection publisher: %w", err)
	}
	if err := publisher.Publish(root); err != nil {
		publisher.Close()
		return nil, fmt.Errorf("publish catalog: %w", err)
	}
	return publisher, nil
}

func watchConfig(path string, logger *slog.Logger, bus events.Bus) chan struct{} {
	stop := make(chan struct{})
	w, err := config.NewWatcher(path)
	if err != nil {
		logger.Warn("config watcher unavailable", "err", err)
		return stop
	}
	changes, errs := w.Watch(stop)
	go func() {
		for {
			select {
			case cfg, ok := <-changes:
				if !ok {
					return
				}
				logger.Info("config reloaded", "log_level", cfg.LogLevel)
				_ = bus.Publish(events.Event{Category: events.CategoryConfig, Type: "reloaded"})
			case err, ok := <-errs:
				if !ok {
					return
				}
				logger.Warn("config reload failed", "err", err)
			}
		}
	}()
	return stop
}
