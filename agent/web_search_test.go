// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
)

func TestWebSearchCollectsCitations(t *testing.T) {
	resp := textResponse("The answer is 42.", 10, 5)
	resp.Content[0].Citations = []model.Citation{
		{Title: "Source A", URL: "https://a.example", Snippet: "forty-two"},
	}
	client := &fakeModelClient{responses: []*MessageResponse{resp}}

	got := WebSearch(context.Background(), testConfig(), client, &WebSearchRequest{
		Query: "what is the answer",
	})

	if got.Code != 200 {
		t.Fatalf("Code = %d", got.Code)
	}
	if got.Output.Response != "The answer is 42." {
		t.Errorf("Response = %q", got.Output.Response)
	}
	if len(got.Output.Citations) != 1 || got.Output.Citations[0].URL != "https://a.example" {
		t.Errorf("Citations = %+v", got.Output.Citations)
	}
	if !got.Output.SearchPerformed {
		t.Error("SearchPerformed = false, want true")
	}
	if got.Tokens.StepAmount != 5 || got.Tokens.TotalCurrentAmount != 15 {
		t.Errorf("Tokens = %+v, want 5/15", got.Tokens)
	}
}

func TestWebSearchRecencyHeuristic(t *testing.T) {
	client := &fakeModelClient{responses: []*MessageResponse{
		textResponse("answer", 1, 1),
	}}

	got := WebSearch(context.Background(), testConfig(), client, &WebSearchRequest{
		Query: "What is the latest Go release?",
	})

	if !got.Output.SearchPerformed {
		t.Error("recency query without citations should still report search_performed")
	}

	client = &fakeModelClient{responses: []*MessageResponse{
		textResponse("answer", 1, 1),
	}}
	got = WebSearch(context.Background(), testConfig(), client, &WebSearchRequest{
		Query: "Explain binary search",
	})
	if got.Output.SearchPerformed {
		t.Error("timeless query without citations should not report search_performed")
	}
}

func TestWebSearchDefaultSystemPrompt(t *testing.T) {
	client := &fakeModelClient{responses: []*MessageResponse{
		textResponse("answer", 1, 1),
	}}

	WebSearch(context.Background(), testConfig(), client, &WebSearchRequest{Query: "q"})

	if !strings.Contains(client.requests[0].System, "real-time web search") {
		t.Errorf("System = %q, want default search prompt", client.requests[0].System)
	}

	client = &fakeModelClient{responses: []*MessageResponse{
		textResponse("answer", 1, 1),
	}}
	WebSearch(context.Background(), testConfig(), client, &WebSearchRequest{
		Query:  "q",
		System: "custom",
	})
	if client.requests[0].System != "custom" {
		t.Errorf("System = %q, want custom override", client.requests[0].System)
	}
}

func TestWebSearchFailure(t *testing.T) {
	client := &fakeModelClient{errs: []error{fmt.Errorf("timeout")}}

	got := WebSearch(context.Background(), testConfig(), client, &WebSearchRequest{Query: "q"})

	if got.Code != 500 {
		t.Fatalf("Code = %d, want 500", got.Code)
	}
	if !strings.Contains(got.Output.Response, "Error: timeout") {
		t.Errorf("Response = %q", got.Output.Response)
	}
	if got.Output.Citations == nil || len(got.Output.Citations) != 0 {
		t.Errorf("Citations = %#v, want empty non-nil", got.Output.Citations)
	}
}
