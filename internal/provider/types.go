// Package provider wraps calls to language-model services. The request and
// response content is opaque to the rest of the system; callers only rely on
// getting text back, or one of the sentinel conditions below.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited is returned when the service signals throttling (HTTP 429).
// Callers treat it as a signal, not a failure.
var ErrRateLimited = errors.New("provider: rate limited")

// ErrTimeout is returned when a call exceeds its deadline.
var ErrTimeout = errors.New("provider: timeout")

// CallClass selects the cache TTL applied to a call's result.
type CallClass string

const (
	// ClassState covers ephemeral state-dependent reads. Short TTL.
	ClassState CallClass = "state"
	// ClassCreative covers long-form generations. Long TTL.
	ClassCreative CallClass = "creative"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a model invocation. When Schema is non-empty the caller expects
// a JSON object conforming to it; otherwise plain text is accepted.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Schema      string    `json:"schema,omitempty"`
}

// schemaInstruction renders a Request.Schema as system-level guidance so
// every provider forwards the structured-output contract the same way.
func schemaInstruction(schema string) string {
	return "Respond with a single JSON object conforming to this schema:\n" + schema
}

// Response is a completed model invocation.
type Response struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider is a single upstream language-model service.
type Provider interface {
	ID() string
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Config holds configuration for a provider instance.
type Config struct {
	ID       string
	Type     string
	Name     string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}
