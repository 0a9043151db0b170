// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nexroo-ai/anthropic-rooms-pkg/agent"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/errors"
)

// ChatParams holds parameters for the chat_completion tool
type ChatParams struct {
	Message     string              `json:"message" description:"the user message to send"`
	Messages    []agent.ChatMessage `json:"messages,omitempty" description:"prior conversation history as role/content pairs"`
	MaxTokens   int                 `json:"max_tokens,omitempty" description:"response token budget"`
	Temperature *float64            `json:"temperature,omitempty" description:"sampling temperature (0-2)"`
	System      string              `json:"system,omitempty" description:"system prompt"`
}

// WebSearchParams holds parameters for the web_search tool
type WebSearchParams struct {
	Query       string   `json:"query" description:"the search query"`
	MaxTokens   int      `json:"max_tokens,omitempty" description:"response token budget"`
	Temperature *float64 `json:"temperature,omitempty" description:"sampling temperature (0-2)"`
	System      string   `json:"system,omitempty" description:"system prompt overriding the search default"`
}

// FileAnalysisParams holds parameters for the file_analysis tool
type FileAnalysisParams struct {
	FilePath    string   `json:"file_path,omitempty" description:"local path of the file to upload and analyze"`
	Filename    string   `json:"filename,omitempty" description:"filename to use for the upload (defaults to the path's base name)"`
	Purpose     string   `json:"purpose,omitempty" description:"upload purpose (default analysis)"`
	FileID      string   `json:"file_id,omitempty" description:"ID of a previously uploaded file"`
	Prompt      string   `json:"prompt,omitempty" description:"what to analyze about the file"`
	MaxTokens   int      `json:"max_tokens,omitempty" description:"response token budget"`
	Temperature *float64 `json:"temperature,omitempty" description:"sampling temperature (0-2)"`
	System      string   `json:"system,omitempty" description:"system prompt"`
}

// ToolRunsParams holds parameters for the list_tool_runs tool
type ToolRunsParams struct {
	ToolName string `json:"tool_name,omitempty" description:"filter runs by tool name"`
	Limit    int    `json:"limit,omitempty" description:"number of recent runs to return (default 10, max 100)"`
}

// extractParams extracts parameters from a tool request
func extractParams(request *mcp.CallToolRequest, params interface{}) error {
	if len(request.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(request.Params.Arguments, params); err != nil {
		return errors.InvalidInput(fmt.Sprintf("invalid parameters: %v", err))
	}
	return nil
}

// createErrorResponse creates an error response
func createErrorResponse(err error) (*mcp.CallToolResult, error) {
	// Always return the original error as the second return value
	// This ensures MCP protocol error handling works correctly
	return nil, err
}

// createJSONResponse renders the payload as a JSON text content block.
func createJSONResponse(payload interface{}) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to marshal response: %w", err))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: string(raw),
			},
		},
	}, nil
}

// handleChatCompletion runs a chat completion through the addon
func (s *MCPServer) handleChatCompletion(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ChatParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if params.Message == "" {
		return createErrorResponse(errors.InvalidInput("message is required"))
	}

	s.logger.Debugf("Handling chat_completion request")

	resp := s.addon.ChatCompletion(ctx, &agent.ChatRequest{
		Message:     params.Message,
		Messages:    params.Messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		System:      params.System,
	})
	return createJSONResponse(resp)
}

// handleWebSearch runs a web search through the addon
func (s *MCPServer) handleWebSearch(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params WebSearchParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if params.Query == "" {
		return createErrorResponse(errors.InvalidInput("query is required"))
	}

	s.logger.Debugf("Handling web_search request")

	resp := s.addon.WebSearch(ctx, &agent.WebSearchRequest{
		Query:       params.Query,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		System:      params.System,
	})
	return createJSONResponse(resp)
}

// handleFileAnalysis runs a file analysis through the addon
func (s *MCPServer) handleFileAnalysis(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params FileAnalysisParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if (params.FilePath == "") == (params.FileID == "") {
		return createErrorResponse(errors.InvalidInput("exactly one of file_path or file_id is required"))
	}

	s.logger.Debugf("Handling file_analysis request")

	req := &agent.FileAnalysisRequest{
		FileID:      params.FileID,
		Prompt:      params.Prompt,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		System:      params.System,
	}
	if params.FilePath != "" {
		if _, err := os.Stat(params.FilePath); err != nil {
			return createErrorResponse(errors.NotFound("file", params.FilePath))
		}
		req.Upload = &agent.FileUpload{
			FilePath: params.FilePath,
			Filename: params.Filename,
			Purpose:  params.Purpose,
		}
	}

	resp := s.addon.FileAnalysis(ctx, req)
	return createJSONResponse(resp)
}

// handleListToolRuns returns recent tool execution records
func (s *MCPServer) handleListToolRuns(_ context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ToolRunsParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}

	if s.runStore == nil {
		return createErrorResponse(errors.InvalidInput("run history is not enabled on this server"))
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}

	s.logger.Debugf("Handling list_tool_runs request (tool=%q, limit=%d)", params.ToolName, limit)

	runs, err := s.runStore.ListRuns(params.ToolName, limit)
	if err != nil {
		return createErrorResponse(errors.Internal(fmt.Errorf("failed to list runs: %w", err)))
	}
	return createJSONResponse(runs)
}
