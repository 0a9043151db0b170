// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	addon "github.com/nexroo-ai/anthropic-rooms-pkg"
	"github.com/nexroo-ai/anthropic-rooms-pkg/config"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/retention"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/server"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/singleton"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/store"
	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
)

var (
	address       = flag.String("address", "", "The address to bind the server to")
	port          = flag.Int("port", 0, "The port to bind the server to")
	transport     = flag.String("transport", "", "Transport mode: sse or stdio")
	logLevel      = flag.String("log-level", "", "Logging level: debug, info, warn, error, fatal")
	logFile       = flag.String("log-file", "", "Log file path (default: stdout)")
	version       = flag.Bool("version", false, "Show version information and exit")
	aiProvider    = flag.String("ai-provider", "", "AI provider: anthropic or openai (default: anthropic)")
	aiBaseURL     = flag.String("ai-base-url", "", "Custom base URL for OpenAI-compatible endpoints (e.g. Ollama, vLLM, Groq, LiteLLM)")
	aiModel       = flag.String("ai-model", "", "AI model to use for actions")
	maxTokens     = flag.Int("max-tokens", 0, "Default response token budget per round")
	temperature   = flag.Float64("temperature", -1, "Default sampling temperature (0-2)")
	dbPath        = flag.String("db-path", "", "Path to SQLite database for tool run history (default: ~/.anthropic-rooms/runs.db)")
	noDB          = flag.Bool("no-db", false, "Disable tool run history persistence")
	pruneSchedule = flag.String("retention-schedule", "", "Cron schedule for pruning aged tool runs (default: 0 3 * * *)")
	pruneMaxAge   = flag.Duration("retention-max-age", 0, "How long tool run records are kept (default: 720h)")
	noRetention   = flag.Bool("no-retention", false, "Disable pruning of aged tool runs")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg := loadConfig()

	// Show version and exit if requested
	if *version {
		log.Printf("%s version %s", cfg.Server.Name, cfg.Server.Version)
		os.Exit(0)
	}

	// Create a context that will be cancelled on interrupt signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the application
	app, err := createApp(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Start the application
	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	// Wait for termination signal or server exit (e.g. stdin closed in stdio mode)
	waitForShutdown(cancel, app)
}

// loadConfig loads configuration from environment and command line flags
func loadConfig() *config.Config {
	// Start with defaults
	cfg := config.DefaultConfig()

	// Override with environment variables
	config.FromEnv(cfg)

	// Override with command-line flags
	applyCommandLineFlagsToConfig(cfg)

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// applyCommandLineFlagsToConfig applies command line flags to the configuration
func applyCommandLineFlagsToConfig(cfg *config.Config) {
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *transport != "" {
		cfg.Server.TransportMode = *transport
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Logging.FilePath = *logFile
	}
	if *aiProvider != "" {
		cfg.AI.Provider = *aiProvider
	}
	if *aiBaseURL != "" {
		cfg.AI.BaseURL = *aiBaseURL
	}
	if *aiModel != "" {
		cfg.AI.Model = *aiModel
	}
	if *maxTokens > 0 {
		cfg.AI.MaxTokens = *maxTokens
	}
	if *temperature >= 0 {
		cfg.AI.Temperature = *temperature
	}
	if *dbPath != "" {
		cfg.DB.Path = *dbPath
	}
	if *noDB {
		cfg.DB.Path = ""
	}
	if *pruneSchedule != "" {
		cfg.Retention.Schedule = *pruneSchedule
	}
	if *pruneMaxAge > 0 {
		cfg.Retention.MaxAge = *pruneMaxAge
	}
	if *noRetention {
		cfg.Retention.Enabled = false
	}
}

// Application represents the running application
type Application struct {
	addon    *addon.Addon
	runStore model.RunStore
	lock     *singleton.Lock
	server   *server.MCPServer
	pruner   *retention.Pruner
	logger   *logging.Logger
}

// createApp creates a new application instance
func createApp(cfg *config.Config) (*Application, error) {
	// Build the addon and load credentials from the environment-derived config
	ad := addon.New()
	if err := ad.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := ad.LoadCredentials(cfg.Secrets); err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	// Open the run store when enabled and this is the primary instance
	var runStore model.RunStore
	var lock *singleton.Lock
	if cfg.DB.Path != "" {
		var isPrimary bool
		var err error
		lock, isPrimary, err = singleton.TryAcquire(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("acquire db lock: %w", err)
		}
		if isPrimary {
			runStore, err = store.NewSQLiteStore(cfg.DB.Path)
			if err != nil {
				_ = lock.Release()
				return nil, fmt.Errorf("create run store: %w", err)
			}
		} else {
			// Another instance owns the database; run without history.
			lock = nil
		}
	}

	// Create the MCP server
	mcpServer, err := server.NewMCPServer(cfg, ad, runStore)
	if err != nil {
		if runStore != nil {
			_ = runStore.Close()
		}
		if lock != nil {
			_ = lock.Release()
		}
		return nil, err
	}

	// Get the default logger that was configured by the server
	logger := logging.GetDefaultLogger()

	var pruner *retention.Pruner
	if runStore != nil {
		pruner = retention.NewPruner(runStore, &cfg.Retention, logger)
	}

	return &Application{
		addon:    ad,
		runStore: runStore,
		lock:     lock,
		server:   mcpServer,
		pruner:   pruner,
		logger:   logger,
	}, nil
}

// Start starts the application
func (a *Application) Start(ctx context.Context) error {
	if a.pruner != nil {
		if err := a.pruner.Start(ctx); err != nil {
			return err
		}
		a.logger.Infof("Retention pruner started")
	}

	if err := a.server.Start(ctx); err != nil {
		return err
	}
	a.logger.Infof("MCP server started")

	return nil
}

// Stop stops the application
func (a *Application) Stop() error {
	if a.pruner != nil {
		a.pruner.Stop()
		a.logger.Infof("Retention pruner stopped")
	}

	// The server closes the run store during shutdown.
	if err := a.server.Stop(); err != nil {
		a.logger.Errorf("Error stopping MCP server: %v", err)
		return err
	}
	a.logger.Infof("MCP server stopped")

	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			a.logger.Warnf("Error releasing db lock: %v", err)
		}
	}

	return nil
}

// waitForShutdown waits for termination signals or server exit and performs cleanup
func waitForShutdown(cancel context.CancelFunc, app *Application) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signalCh:
		app.logger.Infof("Received termination signal, shutting down...")
	case <-app.server.Done():
		app.logger.Infof("Server transport exited, shutting down...")
	}

	// Cancel the context to initiate shutdown
	cancel()

	// Stop the application with a timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		if err := app.Stop(); err != nil {
			app.logger.Errorf("Error during shutdown: %v", err)
		}
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		app.logger.Infof("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		app.logger.Warnf("Shutdown timed out")
	}
}
