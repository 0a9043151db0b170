// SPDX-License-Identifier: AGPL-3.0-only

// Package addon exposes conversational AI actions (chat completion with tool
// calling, web search, file analysis) backed by the Anthropic API, packaged
// for embedding in a host application.
package addon

import (
	"context"
	"fmt"

	"github.com/nexroo-ai/anthropic-rooms-pkg/agent"
	"github.com/nexroo-ai/anthropic-rooms-pkg/config"
	"github.com/nexroo-ai/anthropic-rooms-pkg/credentials"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
	"github.com/nexroo-ai/anthropic-rooms-pkg/tools"
)

// Addon bundles the configuration, credentials, and tool registry behind the
// three actions. The zero value is not usable; call New.
type Addon struct {
	config      *config.Config
	credentials *credentials.Registry
	tools       *tools.Registry
	observer    agent.Observer
	addonID     string

	// client overrides the config-selected model backend when non-nil.
	// Used by the server wiring and by tests.
	client agent.ModelClient
}

// New creates an addon with default configuration and empty registries.
func New() *Addon {
	return &Addon{
		config:      config.DefaultConfig(),
		credentials: credentials.NewRegistry(),
		tools:       tools.NewRegistry(),
	}
}

// Config returns the addon's active configuration.
func (a *Addon) Config() *config.Config {
	return a.config
}

// LoadConfig replaces the addon configuration after validating it. Secrets
// already loaded are carried over so configuration and credentials can be
// loaded in either order.
func (a *Addon) LoadConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("load config: nil configuration")
	}
	if cfg.Secrets == nil {
		cfg.Secrets = map[string]string{}
	}
	for key, value := range a.config.Secrets {
		if _, exists := cfg.Secrets[key]; !exists {
			cfg.Secrets[key] = value
		}
	}
	a.config = cfg
	logging.GetDefaultLogger().Infof("Addon configuration loaded (provider %s, model %s)", cfg.AI.Provider, cfg.AI.Model)
	return nil
}

// LoadCredentials validates that all required secrets are present and stores
// them in the credentials registry and the configuration.
func (a *Addon) LoadCredentials(secrets map[string]string) error {
	required := []string{config.SecretAnthropicAPIKey}
	if a.config.AI.Provider == "openai" {
		required = append(required, config.SecretOpenAIAPIKey)
	}

	var missing []string
	for _, key := range required {
		if secrets[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %v", missing)
	}

	a.credentials.StoreMultiple(secrets)
	for key, value := range secrets {
		a.config.Secrets[key] = value
	}
	logging.GetDefaultLogger().Infof("Loaded %d credentials", len(secrets))
	return nil
}

// SetObserver registers a callback that receives tool execution events for
// this addon instance. Events are only delivered when addonID is non-empty.
func (a *Addon) SetObserver(fn agent.Observer, addonID string) {
	a.observer = fn
	a.addonID = addonID
}

// SetModelClient overrides the model backend selected by the configuration.
func (a *Addon) SetModelClient(client agent.ModelClient) {
	a.client = client
}

// LoadTools registers tool groups with their executable functions and input
// schemas. The description is attached to every registered tool.
func (a *Addon) LoadTools(groups map[string]tools.Group, fns map[string]tools.Func, schemas map[string]tools.Schema, description string) {
	logger := logging.GetDefaultLogger()
	logger.Debugf("Loading tools: %d tool groups", len(groups))
	a.tools.RegisterGroups(groups, fns, schemas, description)
	logger.Infof("Registered %d tools", a.tools.Len())
}

// Tools returns the registered tool definitions.
func (a *Addon) Tools() map[string]tools.Definition {
	return a.tools.Definitions()
}

// ClearTools removes all registered tools.
func (a *Addon) ClearTools() {
	a.tools.Clear()
}

// ChatCompletion runs a chat completion, dispatching any registered tools the
// model asks for.
func (a *Addon) ChatCompletion(ctx context.Context, req *agent.ChatRequest) *model.ChatResponse {
	if req == nil {
		req = &agent.ChatRequest{}
	}
	if req.Registry == nil && a.tools.Len() > 0 {
		req.Registry = a.tools
	}
	if req.Observer == nil {
		req.Observer = a.observer
		req.AddonID = a.addonID
	}
	return agent.ChatCompletion(ctx, a.config, a.client, req)
}

// WebSearch answers a query using the model's web access.
func (a *Addon) WebSearch(ctx context.Context, req *agent.WebSearchRequest) *model.WebSearchResponse {
	if req == nil {
		req = &agent.WebSearchRequest{}
	}
	return agent.WebSearch(ctx, a.config, a.client, req)
}

// FileAnalysis uploads a file if needed and asks the model to analyze it.
func (a *Addon) FileAnalysis(ctx context.Context, req *agent.FileAnalysisRequest) *model.FileAnalysisResponse {
	if req == nil {
		req = &agent.FileAnalysisRequest{}
	}
	fileClient, _ := a.client.(agent.FileClient)
	return agent.FileAnalysis(ctx, a.config, fileClient, req)
}

// Test runs a self-check over the addon's wiring: the configuration
// validates and the registries are operational. It does not call the remote
// API.
func (a *Addon) Test() bool {
	logger := logging.GetDefaultLogger()
	logger.Infof("Running addon self-check...")

	if a.config == nil || a.credentials == nil || a.tools == nil {
		logger.Errorf("Self-check failed: addon not initialized")
		return false
	}
	if err := a.config.Validate(); err != nil {
		logger.Errorf("Self-check failed: %v", err)
		return false
	}
	if _, ok := a.credentials.Get(config.SecretAnthropicAPIKey); !ok {
		logger.Errorf("Self-check failed: anthropic API key not loaded")
		return false
	}

	logger.Infof("Addon self-check completed successfully (%d tools registered)", a.tools.Len())
	return true
}
