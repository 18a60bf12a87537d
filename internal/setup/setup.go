package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robalyx/spamguard/internal/journal"
	"github.com/robalyx/spamguard/internal/setup/config"
	"github.com/robalyx/spamguard/internal/setup/telemetry"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
)

// ServiceName identifies this program in traces.
const ServiceName = "spamguard"

// App bundles all core dependencies needed by the commands.
type App struct {
	Config      *config.Config     // Application configuration
	ConfigDir   string             // Directory the config was loaded from
	Logger      *zap.Logger        // Main application logger
	Journal     *journal.Journal   // Incident journal, nil when disabled
	Registry    *prometheus.Registry
	LogManager  *telemetry.Manager // Log management system
	debugServer *debugServer       // Debug HTTP server for pprof and metrics
	tracing     bool
}

// InitializeApp bootstraps all application dependencies in order.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	cfg, configDir, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	return initializeApp(ctx, cfg, configDir, logDir)
}

func initializeApp(ctx context.Context, cfg *config.Config, configDir, logDir string) (*App, error) {
	// Logging is initialized first to capture setup issues
	logManager := telemetry.NewManager(logDir, &cfg.Common.Debug)

	logger, err := logManager.GetLogger()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		ConfigDir:  configDir,
		Logger:     logger,
		LogManager: logManager,
		Registry:   prometheus.NewRegistry(),
	}

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Export spans when a collector is configured
	if dsn := cfg.Common.Telemetry.UptraceDSN; dsn != "" {
		opts := []uptrace.Option{
			uptrace.WithDSN(dsn),
			uptrace.WithServiceName(ServiceName),
		}
		if env := cfg.Common.Telemetry.Environment; env != "" {
			opts = append(opts, uptrace.WithDeploymentEnvironment(env))
		}

		uptrace.ConfigureOpentelemetry(opts...)

		app.tracing = true
	}

	if cfg.Common.Journal.Enabled {
		j, err := journal.Open(cfg.Common.Journal.Path)
		if err != nil {
			app.Cleanup(ctx)
			return nil, fmt.Errorf("failed to open incident journal: %w", err)
		}

		app.Journal = j
		logger.Info("Opened incident journal", zap.String("path", cfg.Common.Journal.Path))
	}

	if cfg.Common.Debug.EnableDebugServer {
		srv, err := startDebugServer(cfg.Common.Debug.DebugPort, app.Registry, logger)
		if err != nil {
			logger.Error("Failed to start debug server", zap.Error(err))
		} else {
			app.debugServer = srv

			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	return app, nil
}

// Cleanup shuts down components in reverse initialization order.
// Errors are logged so every component gets a cleanup attempt.
func (s *App) Cleanup(ctx context.Context) {
	if s.debugServer != nil {
		if err := s.debugServer.srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown debug server", zap.Error(err))
		}
	}

	if s.Journal != nil {
		if err := s.Journal.Close(); err != nil {
			s.Logger.Error("Failed to close incident journal", zap.Error(err))
		}
	}

	if s.tracing {
		if err := uptrace.Shutdown(ctx); err != nil {
			log.Printf("Failed to shutdown tracing: %v", err)
		}
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.LogManager.Close(); err != nil {
		log.Printf("Failed to close log files: %v", err)
	}
}
