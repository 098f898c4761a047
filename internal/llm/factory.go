// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/pdiddy/research-editor/internal/httputil"
	"github.com/pdiddy/research-editor/pkg/types"
)

// NewBackend returns the provider adapter selected by cfg.Provider, wrapped
// in Retrying, which owns the retry policy: the adapters send each request
// once. defaultModel is used when a request names no model.
func NewBackend(cfg types.AIConfig, client *http.Client, defaultModel string) (Invoker, error) {
	var backend Invoker
	switch cfg.Provider {
	case types.ProviderAnthropic, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic api key missing; provide ai.api_key or .secrets/anthropic-api-key")
		}
		backend = &AnthropicBackend{
			APIKey:     cfg.APIKey,
			Model:      defaultModel,
			Client:     client,
			MaxRetries: httputil.NoRetry,
		}
	case types.ProviderOpenAI:
		b, err := NewOpenAIBackend(cfg, defaultModel)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unsupported provider %q: use anthropic or openai", cfg.Provider)
	}
	return NewRetrying(backend, cfg.MaxRetries), nil
}

// Usage is a snapshot of token counts observed by a Metered invoker.
type Usage struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
}

// Metered counts calls and tokens. It is safe for concurrent use.
type Metered struct {
	Next Invoker

	calls  atomic.Int64
	input  atomic.Int64
	output atomic.Int64
}

// Invoke delegates to Next and records usage of successful calls.
func (m *Metered) Invoke(ctx context.Context, req Request) (Response, error) {
	resp, err := m.Next.Invoke(ctx, req)
	if err != nil {
		return resp, err
	}
	m.calls.Add(1)
	m.input.Add(int64(resp.InputTokens))
	m.output.Add(int64(resp.OutputTokens))
	return resp, nil
}

// Usage returns the counts recorded so far.
func (m *Metered) Usage() Usage {
	return Usage{
		Calls:        m.calls.Load(),
		InputTokens:  m.input.Load(),
		OutputTokens: m.output.Load(),
	}
}
