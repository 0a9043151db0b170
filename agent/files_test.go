// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFilesClient(t *testing.T, handler http.HandlerFunc) *filesClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := newFilesClient("test-key", srv.Client())
	c.baseURL = srv.URL
	return c
}

func TestFilesClientUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello files"), 0o600); err != nil {
		t.Fatal(err)
	}

	var gotHeaders http.Header
	client := newTestFilesClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotHeaders = r.Header.Clone()

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if header.Filename != "notes.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		if got := r.FormValue("purpose"); got != "analysis" {
			t.Errorf("purpose = %q", got)
		}

		json.NewEncoder(w).Encode(fileUploadResponse{
			ID:        "file_123",
			Filename:  "notes.txt",
			SizeBytes: 11,
			MimeType:  "text/plain",
		})
	})

	info, err := client.Upload(context.Background(), path, "notes.txt", "analysis")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if info.ID != "file_123" || info.SizeBytes != 11 || info.Type != "text/plain" {
		t.Errorf("info = %+v", info)
	}

	if gotHeaders.Get("x-api-key") != "test-key" {
		t.Errorf("x-api-key = %q", gotHeaders.Get("x-api-key"))
	}
	if gotHeaders.Get("anthropic-version") != anthropicVersion {
		t.Errorf("anthropic-version = %q", gotHeaders.Get("anthropic-version"))
	}
	if gotHeaders.Get("anthropic-beta") != filesBetaFlag {
		t.Errorf("anthropic-beta = %q", gotHeaders.Get("anthropic-beta"))
	}
}

func TestFilesClientUploadMissingFile(t *testing.T) {
	client := newFilesClient("test-key", nil)

	_, err := client.Upload(context.Background(), "/nonexistent/file.txt", "file.txt", "")
	if err == nil || !strings.Contains(err.Error(), "open file") {
		t.Errorf("err = %v", err)
	}
}

func TestFilesClientCreateFileMessage(t *testing.T) {
	var gotBody apiMessageRequest
	client := newTestFilesClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(apiMessageResponse{
			Content:    []apiResponseBlock{{Type: "text", Text: "It is a text file."}},
			Usage:      apiUsage{InputTokens: 40, OutputTokens: 9},
			StopReason: "end_turn",
			Model:      "claude-3-5-sonnet-20241022",
		})
	})

	resp, err := client.CreateFileMessage(context.Background(), &MessageRequest{
		Model:     "claude-3-5-sonnet-20241022",
		MaxTokens: 1024,
		Messages:  []Message{TextMessage("user", "What is in this file?")},
	}, "file_123")
	if err != nil {
		t.Fatalf("CreateFileMessage: %v", err)
	}

	if len(gotBody.Messages) != 1 {
		t.Fatalf("messages = %d", len(gotBody.Messages))
	}
	blocks := gotBody.Messages[0].Content
	if len(blocks) != 2 {
		t.Fatalf("blocks = %+v, want document then text", blocks)
	}
	if blocks[0].Type != "document" || blocks[0].Source == nil || blocks[0].Source.FileID != "file_123" {
		t.Errorf("document block = %+v", blocks[0])
	}
	if blocks[1].Type != "text" || blocks[1].Text != "What is in this file?" {
		t.Errorf("text block = %+v", blocks[1])
	}

	if resp.Content[0].Text != "It is a text file." {
		t.Errorf("response text = %q", resp.Content[0].Text)
	}
	if resp.Usage.InputTokens != 40 || resp.Usage.OutputTokens != 9 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestFilesClientAPIError(t *testing.T) {
	client := newTestFilesClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"file too large"}}`))
	})

	_, err := client.CreateFileMessage(context.Background(), &MessageRequest{
		Messages: []Message{TextMessage("user", "hi")},
	}, "file_123")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "file too large") || !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v", err)
	}
}
