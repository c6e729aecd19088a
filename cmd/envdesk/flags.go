package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	NATSUrl         string
	RootPrefix      string
	LogLevel        string
	LogFormat       string
	MetricsPort     int
	StartupDeadline time.Duration
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Reset           bool
	RemoveLock      bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("ENVDESK_CONFIG", defaultConfigPath()),
		"Path to configuration file (env: ENVDESK_CONFIG)")

	flag.StringVar(&cfg.NATSUrl, "nats-url",
		getEnv("ENVDESK_NATS_URL", "nats://localhost:4222"),
		"Daemon NATS server URL (env: ENVDESK_NATS_URL)")

	flag.StringVar(&cfg.RootPrefix, "root-prefix",
		getEnv("ENVDESK_ROOT_PREFIX", defaultRootPrefix()),
		"Base environment prefix (env: ENVDESK_ROOT_PREFIX)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("ENVDESK_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: ENVDESK_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("ENVDESK_LOG_FORMAT", "text"),
		"Log format: json, text (env: ENVDESK_LOG_FORMAT)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("ENVDESK_METRICS_PORT", 0),
		"Prometheus metrics port, 0 to disable (env: ENVDESK_METRICS_PORT)")

	flag.DurationVar(&cfg.StartupDeadline, "startup-deadline",
		getEnvDuration("ENVDESK_STARTUP_DEADLINE", 60*time.Second),
		"Time budget for the initial data fetches (env: ENVDESK_STARTUP_DEADLINE)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("ENVDESK_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: ENVDESK_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Reset, "reset", false, "Reset configuration to defaults and exit")
	flag.BoolVar(&cfg.RemoveLock, "remove-lock", false, "Remove a stale single-instance lock and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	if cfg.RootPrefix == "" {
		return fmt.Errorf("root prefix cannot be empty")
	}

	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "envdesk.yaml"
	}
	return home + "/.envdesk/config.yaml"
}

func defaultRootPrefix() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/opt/envdesk"
	}
	return home + "/envdesk"
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Environment and package manager shell

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run against a local daemon
  %s --nats-url=nats://localhost:4222

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Reset configuration to defaults
  %s --reset

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
