// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexroo-ai/anthropic-rooms-pkg/config"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
)

// defaultSearchSystemPrompt is used when the caller supplies no system prompt.
const defaultSearchSystemPrompt = "You have access to real-time web search. " +
	"Use it to find current, accurate information to answer the user's question. " +
	"Always cite your sources."

// recencyKeywords flag queries that almost certainly needed live data even if
// no citations came back.
var recencyKeywords = []string{"current", "latest", "recent", "2024", "2025", "today", "now"}

// WebSearchRequest carries the inputs of one web search action.
type WebSearchRequest struct {
	Query       string
	MaxTokens   int
	Temperature *float64
	System      string
}

// WebSearch answers a query using the model's web access, collecting any
// citations attached to the response text.
func WebSearch(ctx context.Context, cfg *config.Config, client ModelClient, req *WebSearchRequest) *model.WebSearchResponse {
	logger := logging.GetDefaultLogger()
	logger.Debugf("Executing web_search with query: %s", truncate(req.Query, 100))

	if client == nil {
		var err error
		client, err = NewModelClient(cfg)
		if err != nil {
			return searchFailure(cfg, err)
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
	system := req.System
	if system == "" {
		system = defaultSearchSystemPrompt
	}

	resp, err := client.CreateMessage(ctx, &MessageRequest{
		Model:       cfg.AI.Model,
		MaxTokens:   maxTokens,
		Messages:    []Message{TextMessage("user", req.Query)},
		Temperature: &temperature,
		System:      system,
	})
	if err != nil {
		return searchFailure(cfg, err)
	}

	responseText := ""
	citations := []model.Citation{}
	searchPerformed := false

	for _, block := range resp.Content {
		if block.Type == BlockTypeText {
			responseText += block.Text
		}
		if len(block.Citations) > 0 {
			searchPerformed = true
			citations = append(citations, block.Citations...)
		}
	}

	if !searchPerformed && containsRecencyKeyword(req.Query) {
		searchPerformed = true
	}

	usage := model.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}

	logger.Infof("Web search successful. Found %d citations. Used %d tokens.", len(citations), usage.TotalTokens)

	return &model.WebSearchResponse{
		Output: model.WebSearchOutput{
			Response:        responseText,
			Citations:       citations,
			SearchPerformed: searchPerformed,
			Model:           cfg.AI.Model,
			Usage:           usage,
			StopReason:      resp.StopReason,
		},
		Tokens: model.Tokens{
			StepAmount:         usage.OutputTokens,
			TotalCurrentAmount: usage.TotalTokens,
		},
		Message: "Web search successful",
		Code:    200,
	}
}

func containsRecencyKeyword(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range recencyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func searchFailure(cfg *config.Config, err error) *model.WebSearchResponse {
	logging.GetDefaultLogger().Errorf("Web search failed: %v", err)

	return &model.WebSearchResponse{
		Output: model.WebSearchOutput{
			Response:   fmt.Sprintf("Error: %v", err),
			Citations:  []model.Citation{},
			Model:      cfg.AI.Model,
			StopReason: "error",
		},
		Message: fmt.Sprintf("Web search failed: %v", err),
		Code:    500,
	}
}
