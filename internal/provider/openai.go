package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OpenAI implements Provider for OpenAI-compatible APIs.
type OpenAI struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(cfg Config, logger *zap.Logger) *OpenAI {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	return &OpenAI{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (p *OpenAI) ID() string   { return p.config.ID }
func (p *OpenAI) Name() string { return p.config.Name }

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Complete sends a non-streaming chat completion request.
func (p *OpenAI) Complete(ctx context.Context, req *Request) (*Response, error) {
	or := &openAIRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if or.Model == "" {
		or.Model = p.config.Model
	}
	if req.Schema != "" {
		or.Messages = append([]Message{
			{Role: "system", Content: schemaInstruction(req.Schema)},
		}, or.Messages...)
	}

	body, err := json.Marshal(or)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var or2 openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&or2); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(or2.Choices) == 0 {
		return nil, fmt.Errorf("empty response from provider")
	}

	choice := or2.Choices[0]
	return &Response{
		ID:           or2.ID,
		Model:        or2.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        or2.Usage,
	}, nil
}
