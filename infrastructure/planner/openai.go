package planner

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible
// chat completion APIs.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string        // Required: OpenAI API key
	BaseURL string        // Default: https://api.openai.com
	Model   string        // e.g., "gpt-4o-mini"
	Timeout time.Duration // Default: 90s
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config OpenAIConfig) *OpenAIProvider {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &OpenAIProvider{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		model:   config.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete implements the Provider interface.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	chat := openAIChatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		chat.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out openAIChatResponse
	header := http.Header{"Authorization": {"Bearer " + p.apiKey}}
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/v1/chat/completions", header, chat, &out); err != nil {
		return CompletionResponse{}, err
	}
	if out.Error != nil {
		return CompletionResponse{}, fmt.Errorf("%w: %s: %s", ErrClientError, out.Error.Type, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("no choices in response")
	}

	choice := out.Choices[0]
	return CompletionResponse{
		ID:    out.ID,
		Model: out.Model,
		Message: Message{
			Role:    choice.Message.Role,
			Content: strings.TrimSpace(choice.Message.Content),
		},
		Usage: out.Usage,
	}, nil
}
