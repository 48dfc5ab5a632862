package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrRateLimited is wrapped by providers when the upstream throttled the call.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient is wrapped by providers for failures worth one retry
	// (overload, 5xx, dropped connections).
	ErrTransient = errors.New("transient upstream failure")
)

// IsTransient reports whether err was classified as retryable by a provider.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// Message is a single conversational turn sent to a model.
type Message struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Request captures the normalized model input produced by the invoker.
type Request struct {
	Instructions string    `json:"instructions"` // System prompt (persona)
	Messages     []Message `json:"messages"`
	Temperature  *float64  `json:"temperature,omitempty"` // Overrides the provider default when set
	MaxTokens    int64     `json:"max_tokens,omitempty"`
	Stream       bool      `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete drains a Generate call and returns the final, non-partial
// response. Partial chunks are concatenated when the final chunk carries no
// text.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final   *Response
		partial strings.Builder
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				partial.WriteString(r.Text)
				continue
			}
			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if final == nil {
		if partial.Len() == 0 {
			return Response{}, fmt.Errorf("model %s returned no response", m.Info().Name)
		}
		return Response{Text: partial.String(), FinishReason: "stop"}, nil
	}
	if final.Text == "" {
		final.Text = partial.String()
	}
	return *final, nil
}

// MockModel is a lightweight in‑memory Model useful for tests & examples.
// Responses are looked up by the text of the last message; Respond, when
// set, takes precedence.
type MockModel struct {
	info Info

	mu        sync.RWMutex
	responses map[string]string
	calls     []Request

	// Respond computes a reply for a request. Returning an error fails the call.
	Respond func(req Request) (string, error)
	// Delay is slept (honouring ctx) before replying.
	Delay time.Duration
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Calls returns a copy of every request received so far.
func (m *MockModel) Calls() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(m.Delay):
			}
		}

		full, err := m.reply(req)
		if err != nil {
			errCh <- err
			return
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: full, FinishReason: "stop"}:
		}
	}()
	return respCh, errCh
}

func (m *MockModel) reply(req Request) (string, error) {
	if m.Respond != nil {
		return m.Respond(req)
	}
	input := req.Messages[len(req.Messages)-1].Text
	m.mu.RLock()
	full := m.responses[input]
	m.mu.RUnlock()
	if full != "" {
		return full, nil
	}
	persona := strings.SplitN(req.Instructions, "\n", 2)[0]
	return fmt.Sprintf("Mock response (%s) to: %s", persona, firstLine(input)), nil
}

func firstLine(s string) string {
	return strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
