// SPDX-License-Identifier: AGPL-3.0-only

// Package model defines the shared data types of the addon: token usage,
// action response envelopes, and tool execution run records.
package model

import (
	"time"
)

// Usage holds token accounting for one or more round-trips to the model.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Tokens is the platform-facing token accounting attached to every action
// response.
type Tokens struct {
	StepAmount         int `json:"stepAmount"`
	TotalCurrentAmount int `json:"totalCurrentAmount"`
}

// Citation is a source reference attached to a web search answer.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// FileInfo describes a file uploaded for analysis.
type FileInfo struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Type      string `json:"type"`
}

// ChatOutput is the payload of a chat completion response.
type ChatOutput struct {
	Response   string `json:"response"`
	Model      string `json:"model"`
	Usage      Usage  `json:"usage"`
	StopReason string `json:"stop_reason,omitempty"`
}

// ChatResponse is the envelope returned by the chat completion action.
// Code is 200 on success and 500 on any caught failure.
type ChatResponse struct {
	Output  ChatOutput `json:"output"`
	Tokens  Tokens     `json:"tokens"`
	Message string     `json:"message"`
	Code    int        `json:"code"`
}

// WebSearchOutput is the payload of a web search response.
type WebSearchOutput struct {
	Response        string     `json:"response"`
	Citations       []Citation `json:"citations"`
	SearchPerformed bool       `json:"search_performed"`
	Model           string     `json:"model"`
	Usage           Usage      `json:"usage"`
	StopReason      string     `json:"stop_reason,omitempty"`
}

// WebSearchResponse is the envelope returned by the web search action.
type WebSearchResponse struct {
	Output  WebSearchOutput `json:"output"`
	Tokens  Tokens          `json:"tokens"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
}

// FileAnalysisOutput is the payload of a file analysis response.
type FileAnalysisOutput struct {
	Response   string    `json:"response"`
	FileInfo   *FileInfo `json:"file_info,omitempty"`
	FileID     string    `json:"file_id,omitempty"`
	Model      string    `json:"model"`
	Usage      Usage     `json:"usage"`
	StopReason string    `json:"stop_reason,omitempty"`
}

// FileAnalysisResponse is the envelope returned by the file analysis action.
type FileAnalysisResponse struct {
	Output  FileAnalysisOutput `json:"output"`
	Tokens  Tokens             `json:"tokens"`
	Message string             `json:"message"`
	Code    int                `json:"code"`
}

// ToolRun records one execution of a registered tool, as reported by the
// execution observer.
type ToolRun struct {
	ID           int64     `json:"id,omitempty"`
	ToolName     string    `json:"tool_name"`
	AddonID      string    `json:"addon_id"`
	Input        string    `json:"input,omitempty"`
	Output       string    `json:"output,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	RetryAttempt int       `json:"retry_attempt"`
	MaxRetries   int       `json:"max_retries"`
	ExecutionMS  float64   `json:"execution_ms"`
	StartTime    time.Time `json:"start_time"`
}

// RunStore persists tool run records.
type RunStore interface {
	// SaveRun persists a tool run record.
	SaveRun(run *ToolRun) error

	// ListRuns returns the most recent runs for a tool, newest first.
	// An empty toolName matches all tools.
	ListRuns(toolName string, limit int) ([]*ToolRun, error)

	// PruneRunsBefore deletes runs that started before cutoff and returns
	// the number of rows removed.
	PruneRunsBefore(cutoff time.Time) (int64, error)

	// Close closes the store.
	Close() error
}
