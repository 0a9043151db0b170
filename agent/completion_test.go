// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nexroo-ai/anthropic-rooms-pkg/config"
	"github.com/nexroo-ai/anthropic-rooms-pkg/tools"
)

// fakeModelClient replays a scripted sequence of responses and records every
// request it receives.
type fakeModelClient struct {
	responses []*MessageResponse
	errs      []error
	requests  []*MessageRequest
}

func (f *fakeModelClient) CreateMessage(_ context.Context, req *MessageRequest) (*MessageResponse, error) {
	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx >= len(f.responses) {
		return nil, fmt.Errorf("unexpected request %d", idx)
	}
	return f.responses[idx], nil
}

func textResponse(text string, in, out int) *MessageResponse {
	resp := &MessageResponse{
		Content:    []ContentBlock{{Type: BlockTypeText, Text: text}},
		StopReason: "end_turn",
	}
	resp.Usage.InputTokens = in
	resp.Usage.OutputTokens = out
	return resp
}

func toolUseResponse(id, name string, input map[string]interface{}) *MessageResponse {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: BlockTypeToolUse, ID: id, Name: name, Input: input},
		},
		StopReason: "tool_use",
	}
	resp.Usage.InputTokens = 10
	resp.Usage.OutputTokens = 5
	return resp
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Secrets[config.SecretAnthropicAPIKey] = "test-key"
	return cfg
}

func TestChatCompletionTextOnly(t *testing.T) {
	client := &fakeModelClient{responses: []*MessageResponse{
		textResponse("Hello there", 12, 7),
	}}
	cfg := testConfig()

	resp := ChatCompletion(context.Background(), cfg, client, &ChatRequest{Message: "Hi"})

	if resp.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.Code)
	}
	if resp.Output.Response != "Hello there" {
		t.Errorf("Response = %q", resp.Output.Response)
	}
	if resp.Output.Usage.TotalTokens != 19 {
		t.Errorf("TotalTokens = %d, want 19", resp.Output.Usage.TotalTokens)
	}
	if resp.Tokens.StepAmount != 19 || resp.Tokens.TotalCurrentAmount != 19 {
		t.Errorf("Tokens = %+v, want 19/19", resp.Tokens)
	}
	if len(client.requests) != 1 {
		t.Fatalf("rounds = %d, want 1", len(client.requests))
	}
	if resp.Output.StopReason != "end_turn" {
		t.Errorf("StopReason = %q", resp.Output.StopReason)
	}
}

func TestChatCompletionHistoryAndDefaults(t *testing.T) {
	client := &fakeModelClient{responses: []*MessageResponse{
		textResponse("ok", 1, 1),
	}}
	cfg := testConfig()

	ChatCompletion(context.Background(), cfg, client, &ChatRequest{
		Message: "next",
		Messages: []ChatMessage{
			{Role: "user", Content: "earlier"},
			{Role: "assistant", Content: "noted"},
		},
	})

	req := client.requests[0]
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(req.Messages))
	}
	if req.Messages[0].Content[0].Text != "earlier" || req.Messages[2].Content[0].Text != "next" {
		t.Errorf("history order wrong: %+v", req.Messages)
	}
	if req.MaxTokens != cfg.AI.MaxTokens {
		t.Errorf("MaxTokens = %d, want config default %d", req.MaxTokens, cfg.AI.MaxTokens)
	}
	if req.Temperature == nil || *req.Temperature != cfg.AI.Temperature {
		t.Errorf("Temperature not defaulted from config")
	}
	if req.Model != cfg.AI.Model {
		t.Errorf("Model = %q, want %q", req.Model, cfg.AI.Model)
	}
}

func TestChatCompletionToolSuccess(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register("add", func(_ context.Context, input map[string]interface{}) (interface{}, error) {
		a := input["a"].(float64)
		b := input["b"].(float64)
		return fmt.Sprintf("%g", a+b), nil
	}, tools.Schema{
		Type: "object",
		Properties: map[string]tools.Property{
			"a": {Type: "number"},
			"b": {Type: "number"},
		},
		Required: []string{"a", "b"},
	}, 1)

	client := &fakeModelClient{responses: []*MessageResponse{
		toolUseResponse("tu_1", "add", map[string]interface{}{"a": float64(2), "b": float64(3)}),
		textResponse("The sum is 5", 20, 10),
	}}

	resp := ChatCompletion(context.Background(), testConfig(), client, &ChatRequest{
		Message:  "add 2 and 3",
		Registry: registry,
	})

	if resp.Code != 200 {
		t.Fatalf("Code = %d: %s", resp.Code, resp.Message)
	}
	if resp.Output.Response != "The sum is 5" {
		t.Errorf("Response = %q", resp.Output.Response)
	}
	if len(client.requests) != 2 {
		t.Fatalf("rounds = %d, want 2", len(client.requests))
	}

	// The second request must carry the assistant turn plus a tool_result.
	second := client.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != "user" || last.Content[0].Type != BlockTypeToolResult {
		t.Fatalf("last message = %+v, want user tool_result", last)
	}
	if last.Content[0].ToolUseID != "tu_1" || last.Content[0].Content != "5" {
		t.Errorf("tool_result = %+v", last.Content[0])
	}
	assistant := second[len(second)-2]
	if assistant.Role != "assistant" || assistant.Content[0].Type != BlockTypeToolUse {
		t.Errorf("assistant turn not echoed back: %+v", assistant)
	}

	// Usage is summed across both rounds.
	if resp.Output.Usage.InputTokens != 30 || resp.Output.Usage.OutputTokens != 15 {
		t.Errorf("usage = %+v, want 30/15", resp.Output.Usage)
	}
}

func TestChatCompletionToolNotFound(t *testing.T) {
	registry := tools.NewRegistry()

	client := &fakeModelClient{responses: []*MessageResponse{
		toolUseResponse("tu_1", "missing", nil),
		textResponse("done", 1, 1),
	}}

	resp := ChatCompletion(context.Background(), testConfig(), client, &ChatRequest{
		Message:  "use it",
		Registry: registry,
	})

	if resp.Code != 200 {
		t.Fatalf("Code = %d", resp.Code)
	}
	// Unknown tools are terminal immediately, no retry round.
	if len(client.requests) != 2 {
		t.Fatalf("rounds = %d, want 2", len(client.requests))
	}
	second := client.requests[1].Messages
	last := second[len(second)-1]
	want := "Error executing tool: Tool missing not found"
	if last.Content[0].Content != want {
		t.Errorf("tool_result = %q, want %q", last.Content[0].Content, want)
	}
	// No retry guidance was injected anywhere in the conversation.
	for _, m := range second {
		for _, b := range m.Content {
			if strings.Contains(b.Text, "Please try again") {
				t.Errorf("unexpected retry guidance: %q", b.Text)
			}
		}
	}
}

func TestChatCompletionRetryThenSuccess(t *testing.T) {
	calls := 0
	registry := tools.NewRegistry()
	registry.Register("lookup", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		calls++
		if calls == 1 {
			return map[string]interface{}{"code": 500, "message": "backend unavailable"}, nil
		}
		return map[string]interface{}{"code": 200, "value": "found"}, nil
	}, tools.Schema{}, 2)

	client := &fakeModelClient{responses: []*MessageResponse{
		toolUseResponse("tu_1", "lookup", nil),
		toolUseResponse("tu_2", "lookup", nil),
		textResponse("answer", 1, 1),
	}}

	resp := ChatCompletion(context.Background(), testConfig(), client, &ChatRequest{
		Message:  "look it up",
		Registry: registry,
	})

	if resp.Code != 200 {
		t.Fatalf("Code = %d", resp.Code)
	}
	if calls != 2 {
		t.Errorf("tool calls = %d, want 2", calls)
	}
	if len(client.requests) != 3 {
		t.Fatalf("rounds = %d, want 3", len(client.requests))
	}

	// Round two was a resend: guidance appended, no assistant/tool_result pair.
	second := client.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != "user" || !strings.Contains(last.Content[0].Text, "The lookup tool failed with error: backend unavailable") {
		t.Fatalf("expected retry guidance, got %+v", last)
	}
	for _, m := range second {
		if m.Role == "assistant" {
			t.Errorf("retry round carries an assistant turn: %+v", m)
		}
	}

	// Round three carries the successful tool_result.
	third := client.requests[2].Messages
	result := third[len(third)-1]
	if result.Content[0].Type != BlockTypeToolResult || !strings.Contains(result.Content[0].Content, "found") {
		t.Errorf("final tool_result = %+v", result.Content[0])
	}
}

func TestChatCompletionMixedRoundDropsPairOnRetry(t *testing.T) {
	flakyCalls := 0
	registry := tools.NewRegistry()
	registry.Register("add", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"code": 200, "value": 3}, nil
	}, tools.Schema{}, 2)
	registry.Register("flaky", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		flakyCalls++
		if flakyCalls == 1 {
			return map[string]interface{}{"code": 500, "message": "backend unavailable"}, nil
		}
		return map[string]interface{}{"code": 200, "value": "found"}, nil
	}, tools.Schema{}, 2)

	mixed := &MessageResponse{
		Content: []ContentBlock{
			{Type: BlockTypeToolUse, ID: "tu_good", Name: "add", Input: nil},
			{Type: BlockTypeToolUse, ID: "tu_bad", Name: "flaky", Input: nil},
		},
		StopReason: "tool_use",
	}
	resend := &MessageResponse{
		Content: []ContentBlock{
			{Type: BlockTypeToolUse, ID: "tu_good2", Name: "add", Input: nil},
			{Type: BlockTypeToolUse, ID: "tu_bad2", Name: "flaky", Input: nil},
		},
		StopReason: "tool_use",
	}

	client := &fakeModelClient{responses: []*MessageResponse{
		mixed,
		resend,
		textResponse("answer", 1, 1),
	}}

	resp := ChatCompletion(context.Background(), testConfig(), client, &ChatRequest{
		Message:  "do both",
		Registry: registry,
	})

	if resp.Code != 200 {
		t.Fatalf("Code = %d", resp.Code)
	}
	if len(client.requests) != 3 {
		t.Fatalf("rounds = %d, want 3", len(client.requests))
	}

	// The retry suppresses the whole assistant/tool_result pair: replaying
	// the assistant turn would leave tu_bad without a matching tool_result.
	second := client.requests[1].Messages
	for _, m := range second {
		if m.Role == "assistant" {
			t.Errorf("resend carries an assistant turn: %+v", m)
		}
		for _, b := range m.Content {
			if b.Type == BlockTypeToolResult {
				t.Errorf("resend carries a tool_result: %+v", b)
			}
		}
	}
	last := second[len(second)-1]
	if last.Role != "user" || !strings.Contains(last.Content[0].Text, "The flaky tool failed with error: backend unavailable") {
		t.Fatalf("expected retry guidance, got %+v", last)
	}

	// The resend re-issues both tools; once both resolve the pair carries a
	// tool_result for each tool_use.
	third := client.requests[2].Messages
	results := third[len(third)-1]
	if results.Role != "user" || len(results.Content) != 2 {
		t.Fatalf("final results message = %+v", results)
	}
	ids := map[string]bool{}
	for _, b := range results.Content {
		if b.Type != BlockTypeToolResult {
			t.Errorf("unexpected block %+v", b)
		}
		ids[b.ToolUseID] = true
	}
	if !ids["tu_good2"] || !ids["tu_bad2"] {
		t.Errorf("tool_result ids = %v", ids)
	}
}

func TestChatCompletionRetriesExhausted(t *testing.T) {
	calls := 0
	registry := tools.NewRegistry()
	registry.Register("flaky", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		calls++
		return nil, fmt.Errorf("boom %d", calls)
	}, tools.Schema{}, 2)

	client := &fakeModelClient{responses: []*MessageResponse{
		toolUseResponse("tu_1", "flaky", nil),
		toolUseResponse("tu_2", "flaky", nil),
		toolUseResponse("tu_3", "flaky", nil),
		textResponse("giving up", 1, 1),
	}}

	resp := ChatCompletion(context.Background(), testConfig(), client, &ChatRequest{
		Message:  "try",
		Registry: registry,
	})

	if resp.Code != 200 {
		t.Fatalf("Code = %d", resp.Code)
	}
	// With a budget of 2 retries the tool runs three times before the
	// terminal error block is produced.
	if calls != 3 {
		t.Errorf("tool calls = %d, want 3", calls)
	}
	if len(client.requests) != 4 {
		t.Fatalf("rounds = %d, want 4", len(client.requests))
	}
	final := client.requests[3].Messages
	last := final[len(final)-1]
	if last.Content[0].Type != BlockTypeToolResult || last.Content[0].Content != "Error executing tool: boom 3" {
		t.Errorf("terminal tool_result = %+v", last.Content[0])
	}
}

func TestChatCompletionUsageAcrossRounds(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register("noop", func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
		return "ok", nil
	}, tools.Schema{}, 0)

	r1 := toolUseResponse("tu_1", "noop", nil)
	r1.Usage.InputTokens, r1.Usage.OutputTokens = 100, 50
	r2 := toolUseResponse("tu_2", "noop", nil)
	r2.Usage.InputTokens, r2.Usage.OutputTokens = 200, 75
	r3 := textResponse("done", 300, 25)

	client := &fakeModelClient{responses: []*MessageResponse{r1, r2, r3}}

	resp := ChatCompletion(context.Background(), testConfig(), client, &ChatRequest{
		Message:  "go",
		Registry: registry,
	})

	if resp.Output.Usage.InputTokens != 600 {
		t.Errorf("InputTokens = %d, want 600", resp.Output.Usage.InputTokens)
	}
	if resp.Output.Usage.OutputTokens != 150 {
		t.Errorf("OutputTokens = %d, want 150", resp.Output.Usage.OutputTokens)
	}
	if resp.Output.Usage.TotalTokens != 750 {
		t.Errorf("TotalTokens = %d, want 750", resp.Output.Usage.TotalTokens)
	}
}

func TestChatCompletionClientError(t *testing.T) {
	client := &fakeModelClient{errs: []error{fmt.Errorf("connection refused")}}
	cfg := testConfig()

	resp := ChatCompletion(context.Background(), cfg, client, &ChatRequest{Message: "Hi"})

	if resp.Code != 500 {
		t.Fatalf("Code = %d, want 500", resp.Code)
	}
	if !strings.Contains(resp.Output.Response, "Error: connection refused") {
		t.Errorf("Response = %q", resp.Output.Response)
	}
	if resp.Output.StopReason != "error" {
		t.Errorf("StopReason = %q", resp.Output.StopReason)
	}
	if resp.Tokens.StepAmount != 0 || resp.Tokens.TotalCurrentAmount != 0 {
		t.Errorf("Tokens = %+v, want zero", resp.Tokens)
	}
}

func TestChatCompletionMissingCredentials(t *testing.T) {
	cfg := config.DefaultConfig()

	resp := ChatCompletion(context.Background(), cfg, nil, &ChatRequest{Message: "Hi"})

	if resp.Code != 500 {
		t.Fatalf("Code = %d, want 500", resp.Code)
	}
	if !strings.Contains(resp.Message, "API key") {
		t.Errorf("Message = %q", resp.Message)
	}
}

func TestChatCompletionObserverEvents(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register("echo", func(_ context.Context, input map[string]interface{}) (interface{}, error) {
		return input["v"], nil
	}, tools.Schema{
		Type:       "object",
		Properties: map[string]tools.Property{"v": {Type: "string"}},
	}, 0)

	var events []Event
	client := &fakeModelClient{responses: []*MessageResponse{
		toolUseResponse("tu_1", "echo", map[string]interface{}{"v": "hi"}),
		textResponse("done", 1, 1),
	}}

	ChatCompletion(context.Background(), testConfig(), client, &ChatRequest{
		Message:  "echo",
		Registry: registry,
		Observer: func(ev Event) { events = append(events, ev) },
		AddonID:  "addon-1",
	})

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.ToolName != "echo" || ev.AddonID != "addon-1" || !ev.Success {
		t.Errorf("event = %+v", ev)
	}
	if ev.InputParameters["v"] != "hi" {
		t.Errorf("InputParameters = %+v", ev.InputParameters)
	}
}

func TestChatCompletionToolsAdvertisedSorted(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register("zeta", func(_ context.Context, _ map[string]interface{}) (interface{}, error) { return nil, nil }, tools.Schema{}, 0)
	registry.Register("alpha", func(_ context.Context, _ map[string]interface{}) (interface{}, error) { return nil, nil }, tools.Schema{}, 0)

	client := &fakeModelClient{responses: []*MessageResponse{textResponse("ok", 1, 1)}}

	ChatCompletion(context.Background(), testConfig(), client, &ChatRequest{
		Message:  "hi",
		Registry: registry,
	})

	defs := client.requests[0].Tools
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("tools = %+v, want alpha then zeta", defs)
	}
}
