// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/research-editor/internal/httputil"
)

// anthropicAPIURL is the Messages API endpoint. Package-level var for test substitution.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

const anthropicVersion = "2023-06-01"

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	APIKey string

	// Model is used when a request names no model.
	Model string

	Client *http.Client

	// MaxRetries bounds retries on throttling responses (see httputil.DoWithRetry).
	// NewBackend sets httputil.NoRetry because Retrying wraps the backend.
	MaxRetries int
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string             `json:"model"`
	Content []anthropicContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Invoke sends req as a single-turn conversation.
func (a *AnthropicBackend) Invoke(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = a.Model
	}
	if model == "" {
		return Response{}, fmt.Errorf("anthropic: no model configured")
	}

	system := req.System
	if req.Shape == ShapeStructured {
		system += structuredInstruction
	}

	bodyBytes, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens(req),
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: req.User}},
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := httputil.DoWithRetry(ctx, a.Client, httpReq, a.MaxRetries)
	if err != nil {
		return Response{}, fmt.Errorf("calling Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, &APIError{Provider: "anthropic", Status: resp.StatusCode, Body: string(body)}
	}

	var aResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aResp); err != nil {
		return Response{}, fmt.Errorf("decoding Anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range aResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Response{}, ErrEmptyResponse
	}

	return Response{
		Text:         text.String(),
		Model:        aResp.Model,
		InputTokens:  aResp.Usage.InputTokens,
		OutputTokens: aResp.Usage.OutputTokens,
	}, nil
}
