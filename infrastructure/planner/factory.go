package planner

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/config"
)

// New builds the decision-maker named by the configuration. The API key is
// resolved only for providers that need one.
func New(c config.LLMConfig) (DecisionMaker, error) {
	llm := LLMConfig{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxRetries:  c.MaxRetries,
	}

	switch c.Provider {
	case "openai":
		key, err := ResolveAPIKey(c)
		if err != nil {
			return nil, err
		}
		return NewLLMDecisionMaker(NewOpenAIProvider(OpenAIConfig{
			APIKey:  key,
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: time.Duration(c.Timeout),
		}), llm), nil

	case "ollama":
		return NewLLMDecisionMaker(NewOllamaProvider(OllamaConfig{
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: time.Duration(c.Timeout),
		}), llm), nil

	case "scripted":
		return NewScriptedDecisionMaker(c.Script...), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", c.Provider)
	}
}
