// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/pdiddy/research-editor/pkg/types"
)

// OpenAIBackend calls an OpenAI-compatible chat completions API through the
// official SDK. Structured requests use JSON object mode.
type OpenAIBackend struct {
	// Model is used when a request names no model.
	Model string

	client openai.Client
}

// NewOpenAIBackend builds a backend from cfg. SDK-level retries are disabled
// so that Retrying owns the retry policy.
func NewOpenAIBackend(cfg types.AIConfig, model string) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide ai.api_key or .secrets/openai-api-key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIBackend{Model: model, client: openai.NewClient(opts...)}, nil
}

// Invoke sends req as a system + user message pair.
func (o *OpenAIBackend) Invoke(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = o.Model
	}
	if model == "" {
		return Response{}, fmt.Errorf("openai: no model configured")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens(req))),
	}
	if req.Shape == ShapeStructured {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Response{}, &APIError{Provider: "openai", Status: apiErr.StatusCode, Body: apiErr.Message}
		}
		return Response{}, fmt.Errorf("calling OpenAI API: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, ErrEmptyResponse
	}

	return Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
