// SPDX-License-Identifier: AGPL-3.0-only

// Package agent drives chat completions against a remote model, including the
// tool-calling loop: it interprets content blocks, dispatches tool calls
// through the registry, feeds results back into the conversation, and retries
// failed tools within their budgets.
package agent

import (
	"context"

	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
	"github.com/nexroo-ai/anthropic-rooms-pkg/tools"
)

// Block type tags as produced by the model API.
const (
	BlockTypeText       = "text"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
)

// ContentBlock is one tagged block of message content. The populated fields
// depend on Type: text blocks carry Text (and possibly Citations), tool_use
// blocks carry ID/Name/Input, tool_result blocks carry ToolUseID/Content.
type ContentBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
	Citations []model.Citation       `json:"citations,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a message holding a single text block.
func TextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{{Type: BlockTypeText, Text: text}},
	}
}

// ChatMessage is a plain-text prior history entry as supplied by the host.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRequest is one request to the remote model.
type MessageRequest struct {
	Model       string
	MaxTokens   int
	Messages    []Message
	Temperature *float64
	System      string
	Tools       []tools.Definition
}

// MessageResponse is one response from the remote model.
type MessageResponse struct {
	Content    []ContentBlock
	Usage      model.Usage
	StopReason string
	Model      string
}

// ModelClient is the narrow contract the orchestrator needs from a remote
// model backend.
type ModelClient interface {
	CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error)
}

// FileClient extends ModelClient with the file analysis surface: uploading a
// file and sending a message that references it by ID.
type FileClient interface {
	ModelClient

	Upload(ctx context.Context, path, filename, purpose string) (*model.FileInfo, error)
	CreateFileMessage(ctx context.Context, req *MessageRequest, fileID string) (*MessageResponse, error)
}
