// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nexroo-ai/anthropic-rooms-pkg/config"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/errors"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
)

const defaultFilePurpose = "analysis"

// FileUpload describes a local file to push to the provider before analysis.
type FileUpload struct {
	FilePath string
	Filename string
	Purpose  string
}

// FileAnalysisRequest carries the inputs of one file analysis action. Exactly
// one of Upload or FileID must be set.
type FileAnalysisRequest struct {
	Upload      *FileUpload
	FileID      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
	System      string
}

// FileAnalysis uploads a file if needed and asks the model to analyze it,
// attaching the file as a document block on the prompt.
func FileAnalysis(ctx context.Context, cfg *config.Config, client FileClient, req *FileAnalysisRequest) *model.FileAnalysisResponse {
	logger := logging.GetDefaultLogger()

	if (req.Upload == nil) == (req.FileID == "") {
		return analysisFailure(cfg, nil, errors.InvalidInput("exactly one of file upload or file_id must be provided"))
	}

	if client == nil {
		apiKey, ok := cfg.Secrets[config.SecretAnthropicAPIKey]
		if !ok || apiKey == "" {
			return analysisFailure(cfg, nil, errors.InvalidInput("anthropic API key is required for file analysis"))
		}
		client = NewAnthropicClient(apiKey)
	}

	var fileInfo *model.FileInfo
	fileID := req.FileID
	if req.Upload != nil {
		filename := req.Upload.Filename
		if filename == "" {
			filename = filepath.Base(req.Upload.FilePath)
		}
		purpose := req.Upload.Purpose
		if purpose == "" {
			purpose = defaultFilePurpose
		}

		logger.Debugf("Uploading file %s for analysis", filename)
		info, err := client.Upload(ctx, req.Upload.FilePath, filename, purpose)
		if err != nil {
			return analysisFailure(cfg, nil, fmt.Errorf("file upload failed: %w", err))
		}
		fileInfo = info
		fileID = info.ID
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.AI.MaxTokens
	}
	temperature := cfg.AI.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = "Please analyze this file and describe its contents."
	}

	resp, err := client.CreateFileMessage(ctx, &MessageRequest{
		Model:       cfg.AI.Model,
		MaxTokens:   maxTokens,
		Messages:    []Message{TextMessage("user", prompt)},
		Temperature: &temperature,
		System:      req.System,
	}, fileID)
	if err != nil {
		return analysisFailure(cfg, fileInfo, err)
	}

	responseText := ""
	for _, block := range resp.Content {
		if block.Type == BlockTypeText {
			responseText = block.Text
			break
		}
	}

	usage := model.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}

	logger.Infof("File analysis successful for file %s. Used %d tokens.", fileID, usage.TotalTokens)

	return &model.FileAnalysisResponse{
		Output: model.FileAnalysisOutput{
			Response:   responseText,
			FileInfo:   fileInfo,
			FileID:     fileID,
			Model:      cfg.AI.Model,
			Usage:      usage,
			StopReason: resp.StopReason,
		},
		Tokens: model.Tokens{
			StepAmount:         usage.OutputTokens,
			TotalCurrentAmount: usage.TotalTokens,
		},
		Message: "File analysis successful",
		Code:    200,
	}
}

func analysisFailure(cfg *config.Config, fileInfo *model.FileInfo, err error) *model.FileAnalysisResponse {
	logging.GetDefaultLogger().Errorf("File analysis failed: %v", err)

	return &model.FileAnalysisResponse{
		Output: model.FileAnalysisOutput{
			Response:   fmt.Sprintf("Error: %v", err),
			FileInfo:   fileInfo,
			Model:      cfg.AI.Model,
			StopReason: "error",
		},
		Message: fmt.Sprintf("File analysis failed: %v", err),
		Code:    500,
	}
}
