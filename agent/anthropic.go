// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
	"github.com/nexroo-ai/anthropic-rooms-pkg/tools"
)

// AnthropicClient implements ModelClient and FileClient using the Anthropic
// SDK for messages and a small REST client for the Files API (which needs a
// beta header the SDK chat path does not carry).
type AnthropicClient struct {
	client *anthropic.Client
	files  *filesClient
}

// NewAnthropicClient creates an Anthropic-backed client.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{
		client: &client,
		files:  newFilesClient(apiKey, nil),
	}
}

func (c *AnthropicClient) CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  toAnthropicMessages(req.Messages),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return fromAnthropicMessage(resp), nil
}

// Upload sends a file to the Files API.
func (c *AnthropicClient) Upload(ctx context.Context, path, filename, purpose string) (*model.FileInfo, error) {
	return c.files.Upload(ctx, path, filename, purpose)
}

// CreateFileMessage sends a message that references an uploaded file.
func (c *AnthropicClient) CreateFileMessage(ctx context.Context, req *MessageRequest, fileID string) (*MessageResponse, error) {
	return c.files.CreateFileMessage(ctx, req, fileID)
}

// toAnthropicTools converts tool definitions to Anthropic SDK tool params.
func toAnthropicTools(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.InputSchema.PropertiesMap(),
					Required:   def.InputSchema.Required,
				},
			},
		}
	}
	return out
}

// toAnthropicMessages converts block-based messages to Anthropic SDK message
// params.
//
// Anthropic's API requires:
//   - Only "user" and "assistant" roles
//   - Tool results inside user messages as ToolResultBlockParam content
//   - Assistant tool calls as ToolUseBlockParam content
func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case BlockTypeText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case BlockTypeToolResult:
				result := anthropic.NewToolResultBlock(b.ToolUseID)
				result.OfToolResult.Content = []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: b.Content}},
				}
				blocks = append(blocks, result)
			case BlockTypeToolUse:
				input := b.Input
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    b.ID,
						Name:  b.Name,
						Input: input,
					},
				})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// fromAnthropicMessage converts an Anthropic SDK response to the
// provider-agnostic MessageResponse.
func fromAnthropicMessage(resp *anthropic.Message) *MessageResponse {
	out := &MessageResponse{
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		StopReason: string(resp.StopReason),
		Model:      string(resp.Model),
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text := block.AsText()
			out.Content = append(out.Content, ContentBlock{
				Type:      BlockTypeText,
				Text:      text.Text,
				Citations: fromAnthropicCitations(text.Citations),
			})
		case "tool_use":
			tu := block.AsToolUse()
			var input map[string]interface{}
			// Best effort: a malformed input payload surfaces to the
			// tool as an empty parameter map.
			_ = json.Unmarshal(tu.Input, &input)
			out.Content = append(out.Content, ContentBlock{
				Type:  BlockTypeToolUse,
				ID:    tu.ID,
				Name:  tu.Name,
				Input: input,
			})
		}
	}
	return out
}

func fromAnthropicCitations(citations []anthropic.TextCitationUnion) []model.Citation {
	var out []model.Citation
	for _, c := range citations {
		if c.URL == "" && c.Title == "" {
			continue
		}
		out = append(out, model.Citation{
			Title:   c.Title,
			URL:     c.URL,
			Snippet: c.CitedText,
		})
	}
	return out
}
