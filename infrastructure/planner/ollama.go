package planner

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider implements the Provider interface for a local Ollama server.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	BaseURL string        // Default: http://localhost:11434
	Model   string        // e.g., "llama3.2", "qwen2.5"
	Timeout time.Duration // Default: 90s
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(config OllamaConfig) *OllamaProvider {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &OllamaProvider{
		baseURL: baseURL,
		model:   config.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// ollamaChatRequest represents the Ollama chat API request.
type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaChatResponse represents the Ollama chat API response.
type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// Complete implements the Provider interface.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	chat := ollamaChatRequest{
		Model:    model,
		Messages: req.Messages,
		Options: &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if req.JSON {
		chat.Format = "json"
	}

	var ollamaResp ollamaChatResponse
	if err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/api/chat", nil, chat, &ollamaResp); err != nil {
		return CompletionResponse{}, err
	}

	return CompletionResponse{
		Model: ollamaResp.Model,
		Message: Message{
			Role:    ollamaResp.Message.Role,
			Content: strings.TrimSpace(ollamaResp.Message.Content),
		},
		Usage: Usage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
	}, nil
}
