// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
	"github.com/nexroo-ai/anthropic-rooms-pkg/tools"
)

// OpenAIClient implements ModelClient against any OpenAI-compatible endpoint
// (OpenAI, Ollama, vLLM, Groq, LiteLLM), mapping chat-completion tool calls
// onto the addon's content-block shape.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI-backed ModelClient. A non-empty baseURL
// overrides the default endpoint.
func NewOpenAIClient(apiKey string, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{client: &client}
}

func (c *OpenAIClient) CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		msgs = append(msgs, toOpenAIMessages(m)...)
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return fromOpenAICompletion(resp), nil
}

// toOpenAITools converts tool definitions to the OpenAI SDK representation.
func toOpenAITools(defs []tools.Definition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(defs))
	for i, def := range defs {
		out[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  shared.FunctionParameters(def.InputSchema.AsMap()),
			},
		}
	}
	return out
}

// toOpenAIMessages converts one block-based message into OpenAI message
// unions. A user message carrying tool_result blocks becomes one tool message
// per block, since the chat-completions API has a dedicated tool role.
func toOpenAIMessages(m Message) []openai.ChatCompletionMessageParamUnion {
	if m.Role == "assistant" {
		asst := openai.ChatCompletionAssistantMessageParam{}
		var text []string
		for _, b := range m.Content {
			switch b.Type {
			case BlockTypeText:
				text = append(text, b.Text)
			case BlockTypeToolUse:
				args := "{}"
				if b.Input != nil {
					if raw, err := json.Marshal(b.Input); err == nil {
						args = string(raw)
					}
				}
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: b.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      b.Name,
						Arguments: args,
					},
				})
			}
		}
		if len(text) > 0 {
			asst.Content.OfString = openai.String(strings.Join(text, "\n"))
		}
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &asst}}
	}

	var out []openai.ChatCompletionMessageParamUnion
	var text []string
	for _, b := range m.Content {
		switch b.Type {
		case BlockTypeText:
			text = append(text, b.Text)
		case BlockTypeToolResult:
			out = append(out, openai.ToolMessage(b.Content, b.ToolUseID))
		}
	}
	if len(text) > 0 {
		out = append(out, openai.UserMessage(strings.Join(text, "\n")))
	}
	return out
}

// fromOpenAICompletion converts a chat completion response to the
// provider-agnostic MessageResponse.
func fromOpenAICompletion(resp *openai.ChatCompletion) *MessageResponse {
	out := &MessageResponse{
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
		Model: resp.Model,
	}
	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.StopReason = choice.FinishReason

	if choice.Message.Content != "" {
		out.Content = append(out.Content, ContentBlock{
			Type: BlockTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, tc := range choice.Message.ToolCalls {
		var input map[string]interface{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		out.Content = append(out.Content, ContentBlock{
			Type:  BlockTypeToolUse,
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	return out
}
