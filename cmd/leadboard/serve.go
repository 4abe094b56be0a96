package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"leadboard/internal/audit"
	"leadboard/internal/auth"
	"leadboard/internal/config"
	"leadboard/internal/security"
	"leadboard/internal/server"
	"leadboard/internal/store"
	"leadboard/internal/webhook"
	"leadboard/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string
	logFile    string
	logLevel   string
	host       string
	port       int
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the API server",
	GroupID: groupServer,
	Long: `Start the HTTP server for the leads, kanban columns and kanban items
collections and the webhook relay.

Configuration is read from leadboard.yaml (searched in the current directory,
./config and /etc/leadboard unless --config is given), then from a .env file
and the environment. Flags override both.`,
	RunE: runServe,
}

func init() {
	addConfigFlags(serveCmd)
	serveCmd.Flags().StringVar(&logFile, "log", "", "Path to log file (also LEADBOARD_LOG_FILE)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&host, "host", "", "Host to bind to (also LEADBOARD_HOST)")
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (also LEADBOARD_PORT)")
}

// addConfigFlags registers the flags shared by every command that loads
// the service configuration.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configFile, "config", "c", os.Getenv("LEADBOARD_CONFIG_FILE"), "Path to leadboard.yaml")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to .env file")
}

// loadConfig resolves the configuration from the config flags.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	path := configFile
	if path == "" {
		// The YAML file is optional; env-only setups are common
		path = fileutil.FindConfigOptional(config.DefaultFileName)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flags override file and environment
	if host != "" {
		cfg.Listen.Host = host
	}
	if port != 0 {
		cfg.Listen.Port = port
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(problems, "\n"))
	}

	// Set up logging
	logger, closeLog, err := setupLogging(cfg.Log.File, cfg.LogLevel())
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting leadboard", "version", version)
	if cfg.File != "" {
		logger.Info("Loaded configuration", "config", cfg.File)
	} else {
		logger.Info("No config file found, using environment only")
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	// Open backend
	logger.Info("Opening backend", "kind", cfg.Backend.Kind)
	st, err := store.Open(cfg.StoreOptions())
	if err != nil {
		logger.Error("Failed to open backend", "error", err)
		return fmt.Errorf("failed to open backend: %w", err)
	}
	defer st.Close()

	guard := security.NewTargetGuard(cfg.Proxy.AllowedDomains, cfg.Proxy.BlockedHosts)
	fwd := webhook.NewForwarder(guard, webhook.WithTimeout(cfg.ProxyTimeout()))
	logger.Info("Webhook relay ready", "allowed_domains", guard.AllowedDomains())

	opts := server.Options{
		RequestsPerMinute:      cfg.RateLimit.RequestsPerMinute,
		ProxyRequestsPerMinute: cfg.RateLimit.ProxyRequestsPerMinute,
		Version:                version,
	}

	if cfg.AuthRequired() {
		opts.Auth = auth.NewAuthenticator(cfg.Backend.ServiceRoleKey, cfg.Backend.AnonKey)
	} else {
		logger.Warn("Authentication is disabled, every route is public")
	}

	// Initialize forward audit log
	if cfg.Proxy.AuditDB != "" {
		logger.Info("Initializing forward audit log", "db", cfg.Proxy.AuditDB)
		if err := security.CreateSecureDir(filepath.Dir(cfg.Proxy.AuditDB), security.PermDirectory); err != nil {
			return err
		}
		auditLog, err := audit.NewLog(cfg.Proxy.AuditDB)
		if err != nil {
			logger.Error("Failed to initialize audit log", "error", err)
			return fmt.Errorf("failed to initialize audit log: %w", err)
		}
		defer auditLog.Close()
		opts.Audit = auditLog
	}

	srv := server.NewServer(st, guard, fwd, logger, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx, cfg.Addr()); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// setupLogging configures slog JSON logging to stdout and, when logPath is
// set, to a file as well. The returned func closes the file.
func setupLogging(logPath string, level slog.Level) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}

	if logPath != "" {
		// Create log directory if needed
		if err := security.CreateSecureDir(filepath.Dir(logPath), security.PermDirectory); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		// Open log file with secure permissions
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}

		// Create multi-writer to log to both file and console
		w = io.MultiWriter(os.Stdout, file)
		closeFn = func() { file.Close() }
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler), closeFn, nil
}
