// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm defines the model-invocation contract used by the pipeline and
// provides adapters for the Anthropic and OpenAI APIs. Callers depend only on
// Invoker; adapters, retry, and tier routing are composed at startup.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/research-editor/pkg/types"
)

// Shape is the form a caller expects the completion to take.
type Shape string

const (
	ShapeText       Shape = "text"
	ShapeStructured Shape = "structured"
)

// DefaultMaxTokens is used when a request leaves MaxTokens at zero.
const DefaultMaxTokens = 4096

// structuredInstruction is appended to the system role of structured requests
// for providers without a native JSON mode.
const structuredInstruction = "\n\nRespond with a single JSON object and nothing else. Do not wrap it in a code block."

// Request is one completion call.
type Request struct {
	// System is the role description.
	System string

	// User is the instruction.
	User string

	// Tier selects fast or smart. Tiered resolves it to Model.
	Tier types.ModelTier

	// Model is the concrete model identifier. Adapters fall back to their
	// own default when it is empty.
	Model string

	Shape     Shape
	MaxTokens int
}

// Response is the assembled completion.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Invoker sends a request to a language model and returns its completion.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) (Response, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// ErrEmptyResponse is returned when a provider answers without text content.
var ErrEmptyResponse = errors.New("model returned empty content")

// APIError is a non-success HTTP status from a provider.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.Status, e.Body)
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}

// Tiered resolves a request's tier to a model identifier before delegating.
type Tiered struct {
	Next  Invoker
	Fast  string
	Smart string
}

// NewTiered routes tiers to the models named in task.
func NewTiered(next Invoker, task types.TaskSpec) *Tiered {
	return &Tiered{Next: next, Fast: task.FastModel, Smart: task.SmartModel}
}

// Invoke fills in the model for req.Tier when the request names none.
func (t *Tiered) Invoke(ctx context.Context, req Request) (Response, error) {
	if req.Model == "" {
		if req.Tier == types.TierFast {
			req.Model = t.Fast
		} else {
			req.Model = t.Smart
		}
	}
	return t.Next.Invoke(ctx, req)
}

// DecodeStructured unmarshals a structured completion into v. It tolerates a
// surrounding Markdown code fence and leading or trailing prose around a
// single JSON object.
func DecodeStructured(text string, v any) error {
	body := stripFence(strings.TrimSpace(text))
	if err := json.Unmarshal([]byte(body), v); err == nil {
		return nil
	}
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), v); err != nil {
		return fmt.Errorf("parsing structured response: %w", err)
	}
	return nil
}

// stripFence removes a ``` or ```json fence wrapping s.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}
