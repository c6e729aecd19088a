// Package main implements the entry point for the envdesk application.
// Envdesk is a desktop shell for environment and package management: it
// talks to a local daemon over NATS, assembles the main window from
// registered components, and keeps fetched environment data consistent
// with the persisted configuration.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/envdesk/envdesk/backend"
	"github.com/envdesk/envdesk/config"
	"github.com/envdesk/envdesk/featureflags"
	"github.com/envdesk/envdesk/metric"
	"github.com/envdesk/envdesk/shell"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "envdesk"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return err
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	if cliCfg.RemoveLock {
		if err := removeLock(lockPath(cliCfg.ConfigPath)); err != nil {
			return err
		}
		logger.Info("single-instance lock removed")
		return nil
	}

	release, err := acquireLock(lockPath(cliCfg.ConfigPath))
	if err != nil {
		return err
	}
	defer release()

	cfg, err := config.Load(cliCfg.ConfigPath, config.Defaults(cliCfg.RootPrefix), logger)
	if err != nil {
		return fmt.Errorf("configuration load: %w", err)
	}

	if cliCfg.Reset {
		if err := cfg.Reset(); err != nil {
			return fmt.Errorf("configuration reset: %w", err)
		}
		logger.Info("configuration reset to defaults", "path", cliCfg.ConfigPath)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := nats.Connect(cliCfg.NATSUrl,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("daemon connection: %w", err)
	}
	defer conn.Close()

	metricsRegistry := metric.NewMetricsRegistry()
	if cliCfg.MetricsPort > 0 {
		startMetricsServer(cliCfg.MetricsPort, metricsRegistry, logger)
	}

	client, err := backend.NewClient(conn, backend.DefaultConfig(cliCfg.RootPrefix), logger,
		backend.WithMetrics(metricsRegistry))
	if err != nil {
		return fmt.Errorf("backend client: %w", err)
	}

	flagManager := featureflags.NewManager(conn, 10*time.Second, logger)

	sh, err := shell.New(cfg, client, flagManager, logger,
		shell.WithMetrics(metricsRegistry),
		shell.WithDeadline(cliCfg.StartupDeadline),
	)
	if err != nil {
		return fmt.Errorf("shell construction: %w", err)
	}
	defer func() {
		if err := sh.Stop(cliCfg.ShutdownTimeout); err != nil {
			logger.Warn("shutdown reported errors", "error", err)
		}
	}()

	if err := sh.Run(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	logger.Info("window visible", "state", sh.State().String())

	// Startup is complete; stay up until a shutdown signal arrives
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

func startMetricsServer(port int, registry *metric.MetricsRegistry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry.PrometheusRegistry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}
