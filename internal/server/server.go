// SPDX-License-Identifier: AGPL-3.0-only

// Package server exposes the addon's actions over the Model Context Protocol,
// on stdio or SSE transports.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	addon "github.com/nexroo-ai/anthropic-rooms-pkg"
	"github.com/nexroo-ai/anthropic-rooms-pkg/config"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/errors"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
)

// Make os.OpenFile mockable for testing
var osOpenFile = os.OpenFile

// MCPServer exposes the addon actions as MCP tools.
type MCPServer struct {
	addon          *addon.Addon
	runStore       model.RunStore
	server         *mcp.Server
	httpServer     *http.Server
	cancel         context.CancelFunc
	address        string
	port           int
	stopCh         chan struct{}
	transportDone  chan struct{}
	transportOnce  sync.Once
	wg             sync.WaitGroup
	config         *config.Config
	logger         *logging.Logger
	shutdownMutex  sync.Mutex
	isShuttingDown bool
}

// NewMCPServer creates an MCP server around the given addon. runStore may be
// nil, in which case tool runs are not persisted and list_tool_runs reports
// an error.
func NewMCPServer(cfg *config.Config, ad *addon.Addon, runStore model.RunStore) (*MCPServer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	var logger *logging.Logger

	if cfg.Logging.FilePath != "" {
		var err error
		logger, err = logging.FileLogger(cfg.Logging.FilePath, logging.ParseLevel(cfg.Logging.Level))
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
	} else if cfg.Server.TransportMode == "stdio" {
		// For stdio transport, all logging must go to a file to avoid
		// corrupting the JSON-RPC stream on stdout
		execPath, err := os.Executable()
		if err != nil {
			execPath = cfg.Server.Name
		}
		execDir := filepath.Dir(execPath)
		logFilename := fmt.Sprintf("%s.log", cfg.Server.Name)
		logPath := filepath.Join(execDir, logFilename)

		logFile, err := osOpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(logFile)
			logger = logging.New(logging.Options{
				Output: logFile,
				Level:  logging.ParseLevel(cfg.Logging.Level),
			})
		} else {
			// Fall back to stderr to avoid corrupting stdout
			log.SetOutput(os.Stderr)
			logger = logging.New(logging.Options{
				Output: os.Stderr,
				Level:  logging.ParseLevel(cfg.Logging.Level),
			})
		}
	} else {
		logger = logging.New(logging.Options{
			Level: logging.ParseLevel(cfg.Logging.Level),
		})
	}

	// Set as the default logger
	logging.SetDefaultLogger(logger)

	// Validate transport mode
	switch cfg.Server.TransportMode {
	case "stdio":
		logger.Infof("Using stdio transport")
	case "sse":
		logger.Infof("Using SSE transport on %s:%d", cfg.Server.Address, cfg.Server.Port)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported transport mode: %s", cfg.Server.TransportMode))
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	}, nil)

	s := &MCPServer{
		addon:         ad,
		runStore:      runStore,
		server:        mcpSrv,
		address:       cfg.Server.Address,
		port:          cfg.Server.Port,
		stopCh:        make(chan struct{}),
		transportDone: make(chan struct{}),
		config:        cfg,
		logger:        logger,
	}

	// Persist tool executions initiated through chat_completion.
	if runStore != nil {
		ad.SetObserver(NewStoreObserver(runStore, logger), cfg.Server.Name)
	}

	return s, nil
}

// Start starts the MCP server
func (s *MCPServer) Start(ctx context.Context) error {
	// Register all tools
	s.registerToolsDeclarative()

	switch s.config.Server.TransportMode {
	case "stdio":
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.signalTransportDone()
			if err := s.server.Run(runCtx, &mcp.StdioTransport{}); err != nil {
				s.logger.Errorf("Error running MCP server: %v", err)
			}
		}()
	case "sse":
		addr := fmt.Sprintf("%s:%d", s.address, s.port)
		handler := mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server {
			return s.server
		}, nil)
		s.httpServer = &http.Server{Addr: addr, Handler: handler}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.signalTransportDone()
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Errorf("Error running MCP server: %v", err)
			}
		}()
	}

	// Listen for context cancellation
	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Errorf("Error stopping MCP server: %v", err)
		}
	}()

	return nil
}

// Done returns a channel that is closed when the server transport exits,
// for example when stdin closes in stdio mode.
func (s *MCPServer) Done() <-chan struct{} {
	return s.transportDone
}

func (s *MCPServer) signalTransportDone() {
	s.transportOnce.Do(func() { close(s.transportDone) })
}

// Stop stops the MCP server
func (s *MCPServer) Stop() error {
	s.shutdownMutex.Lock()
	defer s.shutdownMutex.Unlock()

	// Return early if server is already being shut down
	if s.isShuttingDown {
		s.logger.Debugf("Stop called but server is already shutting down, ignoring")
		return nil
	}

	s.isShuttingDown = true

	if s.cancel != nil {
		s.cancel()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return errors.Internal(fmt.Errorf("error shutting down MCP server: %w", err))
		}
	}

	// Close the run store
	if s.runStore != nil {
		if err := s.runStore.Close(); err != nil {
			s.logger.Warnf("Error closing run store: %v", err)
		}
	}

	// Only close stopCh if it hasn't been closed yet
	select {
	case <-s.stopCh:
		// Channel is already closed, do nothing
	default:
		close(s.stopCh)
	}

	s.wg.Wait()
	return nil
}
