// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	filesBetaFlag    = "files-api-2025-04-14"
)

// filesClient talks to the Anthropic REST API directly for the Files surface:
// uploads and messages carrying file-id document blocks, both of which
// require the files beta header.
type filesClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newFilesClient(apiKey string, httpClient *http.Client) *filesClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &filesClient{
		apiKey:     apiKey,
		baseURL:    anthropicBaseURL,
		httpClient: httpClient,
	}
}

// --- Wire structures ---

type fileUploadResponse struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
	Type      string `json:"type"`
}

type apiFileSource struct {
	Type   string `json:"type"`
	FileID string `json:"file_id"`
}

type apiBlock struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	Source *apiFileSource `json:"source,omitempty"`
}

type apiMessage struct {
	Role    string     `json:"role"`
	Content []apiBlock `json:"content"`
}

type apiMessageRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Messages    []apiMessage `json:"messages"`
	System      string       `json:"system,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type apiResponseBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiMessageResponse struct {
	Content    []apiResponseBlock `json:"content"`
	Usage      apiUsage           `json:"usage"`
	StopReason string             `json:"stop_reason"`
	Model      string             `json:"model"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the file at path to the Files API as a multipart form.
func (c *filesClient) Upload(ctx context.Context, path, filename, purpose string) (*model.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy file contents: %w", err)
	}
	if purpose != "" {
		if err := writer.WriteField("purpose", purpose); err != nil {
			return nil, fmt.Errorf("write purpose field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAuthHeaders(req)

	var uploaded fileUploadResponse
	if err := c.do(req, &uploaded); err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	fileType := uploaded.MimeType
	if fileType == "" {
		fileType = uploaded.Type
	}
	return &model.FileInfo{
		ID:        uploaded.ID,
		Filename:  filename,
		SizeBytes: uploaded.SizeBytes,
		Type:      fileType,
	}, nil
}

// CreateFileMessage sends a message whose first content block references the
// uploaded file by ID, followed by the request's text content.
func (c *filesClient) CreateFileMessage(ctx context.Context, req *MessageRequest, fileID string) (*MessageResponse, error) {
	messages := make([]apiMessage, 0, len(req.Messages))
	for i, m := range req.Messages {
		blocks := make([]apiBlock, 0, len(m.Content)+1)
		// The document block is attached to the first user turn.
		if i == 0 && m.Role == "user" {
			blocks = append(blocks, apiBlock{
				Type:   "document",
				Source: &apiFileSource{Type: "file", FileID: fileID},
			})
		}
		for _, b := range m.Content {
			if b.Type == BlockTypeText {
				blocks = append(blocks, apiBlock{Type: "text", Text: b.Text})
			}
		}
		messages = append(messages, apiMessage{Role: m.Role, Content: blocks})
	}

	payload := apiMessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    messages,
		System:      req.System,
		Temperature: req.Temperature,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal message request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(httpReq)

	var resp apiMessageResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("file message: %w", err)
	}

	out := &MessageResponse{
		Usage: model.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		StopReason: resp.StopReason,
		Model:      resp.Model,
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.Content = append(out.Content, ContentBlock{Type: BlockTypeText, Text: block.Text})
		}
	}
	return out, nil
}

func (c *filesClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("anthropic-beta", filesBetaFlag)
}

func (c *filesClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("anthropic API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("anthropic API error (%d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
