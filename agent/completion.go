// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/nexroo-ai/anthropic-rooms-pkg/config"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
	"github.com/nexroo-ai/anthropic-rooms-pkg/tools"
)

// ChatRequest carries the inputs of one chat completion run.
type ChatRequest struct {
	// Message is the new user message.
	Message string
	// Messages is optional prior conversation history.
	Messages []ChatMessage
	// MaxTokens overrides the config default when positive.
	MaxTokens int
	// Temperature overrides the config default when non-nil.
	Temperature *float64
	// System is an optional system prompt.
	System string
	// Tools are the definitions advertised to the model. When nil and a
	// Registry is set, the registry's definitions are used.
	Tools map[string]tools.Definition
	// Registry resolves tool names to executables. Without a registry,
	// tool_use blocks are ignored.
	Registry *tools.Registry
	// Classifier overrides the default success/failure classification.
	Classifier Classifier
	// Observer receives tool execution events when AddonID is also set.
	Observer Observer
	// AddonID identifies this addon instance in observer events.
	AddonID string
}

// NewModelClient builds the ModelClient selected by the configuration.
func NewModelClient(cfg *config.Config) (ModelClient, error) {
	switch cfg.AI.Provider {
	case "openai":
		apiKey := cfg.Secrets[config.SecretOpenAIAPIKey]
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key not found in credentials")
		}
		return NewOpenAIClient(apiKey, cfg.AI.BaseURL), nil
	default:
		apiKey := cfg.Secrets[config.SecretAnthropicAPIKey]
		if apiKey == "" {
			return nil, fmt.Errorf("Anthropic API key not found in credentials")
		}
		return NewAnthropicClient(apiKey), nil
	}
}

// ChatCompletion runs a full completion against the remote model, dispatching
// any requested tools until the model stops asking for them. All failures are
// converted into a structured response; the function never panics and the
// envelope code is 200 on success, 500 otherwise.
func ChatCompletion(ctx context.Context, cfg *config.Config, client ModelClient, req *ChatRequest) *model.ChatResponse {
	logger := logging.GetDefaultLogger()
	logger.Debugf("Executing chat_completion with message: %s", truncate(req.Message, 100))

	if client == nil {
		var err error
		client, err = NewModelClient(cfg)
		if err != nil {
			return chatFailure(cfg, err)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.AI.MaxTokens
	}
	temperature := cfg.AI.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	defs := req.Tools
	if defs == nil && req.Registry != nil {
		defs = req.Registry.Definitions()
	}
	toolList := sortedDefinitions(defs)
	if len(toolList) > 0 {
		logger.Debugf("Advertising %d tools to the model", len(toolList))
	}

	conversation := make([]Message, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		conversation = append(conversation, TextMessage(m.Role, m.Content))
	}
	conversation = append(conversation, TextMessage("user", req.Message))

	run := newRunContext(conversation)

	classify := req.Classifier
	if classify == nil {
		classify = DefaultClassifier
	}
	exec := &executor{
		registry: req.Registry,
		defs:     defs,
		classify: classify,
		observer: req.Observer,
		addonID:  req.AddonID,
		logger:   logger,
	}

	responseText := ""
	stopReason := ""

	for {
		resp, err := client.CreateMessage(ctx, &MessageRequest{
			Model:       cfg.AI.Model,
			MaxTokens:   maxTokens,
			Messages:    run.conversation,
			Temperature: &temperature,
			System:      req.System,
			Tools:       toolList,
		})
		if err != nil {
			return chatFailure(cfg, err)
		}

		run.addUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		stopReason = resp.StopReason

		var toolResults []ContentBlock
		retryPending := false

		for _, block := range resp.Content {
			switch block.Type {
			case BlockTypeText:
				responseText += block.Text
			case BlockTypeToolUse:
				if req.Registry == nil {
					continue
				}
				logger.Debugf("Executing tool: %s", block.Name)

				out := exec.execute(ctx, block.Name, block.Input, run)
				switch out.kind {
				case outcomeSuccess:
					toolResults = append(toolResults, ContentBlock{
						Type:      BlockTypeToolResult,
						ToolUseID: block.ID,
						Content:   stringifyResult(out.result),
					})
				case outcomeTerminal:
					logger.Errorf("Tool %s execution failed: %s", block.Name, out.errMessage)
					toolResults = append(toolResults, ContentBlock{
						Type:      BlockTypeToolResult,
						ToolUseID: block.ID,
						Content:   "Error executing tool: " + out.errMessage,
					})
				case outcomeRetry:
					// Guidance is already in the conversation; resend
					// without an assistant/tool-result pair.
					retryPending = true
				}
			}
		}

		if len(toolResults) == 0 && !retryPending {
			break
		}

		// A pending retry suppresses the assistant/tool-result pair even
		// when other tools in the round resolved: echoing the assistant
		// turn would leave the retrying tool_use without a matching
		// tool_result, which the API rejects. The resend re-issues every
		// tool call in the round.
		if len(toolResults) > 0 && !retryPending {
			run.conversation = append(run.conversation,
				Message{Role: "assistant", Content: resp.Content},
				Message{Role: "user", Content: toolResults},
			)
		}

		logger.Debugf("Calling model again (round %d)", run.rounds+1)
	}

	usage := model.Usage{
		InputTokens:  run.inputTokens,
		OutputTokens: run.outputTokens,
		TotalTokens:  run.inputTokens + run.outputTokens,
	}

	logger.Infof("Chat completion successful. Used %d tokens.", usage.TotalTokens)

	return &model.ChatResponse{
		Output: model.ChatOutput{
			Response:   responseText,
			Model:      cfg.AI.Model,
			Usage:      usage,
			StopReason: stopReason,
		},
		Tokens: model.Tokens{
			StepAmount:         usage.TotalTokens,
			TotalCurrentAmount: usage.TotalTokens,
		},
		Message: "Chat completion successful",
		Code:    200,
	}
}

func chatFailure(cfg *config.Config, err error) *model.ChatResponse {
	logging.GetDefaultLogger().Errorf("Chat completion failed: %v", err)

	return &model.ChatResponse{
		Output: model.ChatOutput{
			Response:   fmt.Sprintf("Error: %v", err),
			Model:      cfg.AI.Model,
			StopReason: "error",
		},
		Message: fmt.Sprintf("Chat completion failed: %v", err),
		Code:    500,
	}
}

// sortedDefinitions flattens a definition map into a deterministic list.
func sortedDefinitions(defs map[string]tools.Definition) []tools.Definition {
	if len(defs) == 0 {
		return nil
	}
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]tools.Definition, 0, len(names))
	for _, name := range names {
		out = append(out, defs[name])
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
