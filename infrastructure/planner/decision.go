package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/action"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
	"github.com/felixgeelhaar/recon-go/infrastructure/resilience"
)

// ErrNoReply is returned when a provider answers with empty content.
var ErrNoReply = errors.New("decision-maker returned no reply")

// Prompt is everything the decision-maker sees on one turn.
type Prompt struct {
	RunID    string
	Turn     int
	Goal     goal.Spec
	Menu     action.Menu
	Snapshot string

	// Definitions are the catalog entries on the menu, used to describe
	// parameters.
	Definitions []action.Definition
}

// DecisionMaker proposes the next step. The reply is untrusted free text.
type DecisionMaker interface {
	Decide(ctx context.Context, prompt Prompt) (string, error)
}

// DecisionFunc adapts a function to DecisionMaker.
type DecisionFunc func(ctx context.Context, prompt Prompt) (string, error)

// Decide calls f.
func (f DecisionFunc) Decide(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

const roleInstruction = "You are a seasoned penetration tester planning reconnaissance of a single authorized host. " +
	"You may only choose nmap-based actions from the menu below. No other help is required."

const replyRules = `Reply with exactly one line of JSON and nothing else:
{"action_id": "<one id from the menu>", "params": {...}, "reason": "<short reason>"}
- action_id must be copied exactly from the menu.
- port_scan accepts params.range like "1-1024" or "22,80,443".
- service_detect accepts params.scope "all" (open ports) or "common".
- Choose "done" when the goal is met or nothing useful remains.`

const nextStepPrompt = `Propose your next step (JSON: {"action_id": ..., "params": {...}, "reason": ...}).`

// SystemMessage renders the role, goal, reply rules and the literal menu.
func SystemMessage(p Prompt) string {
	var b strings.Builder
	b.WriteString(roleInstruction)
	b.WriteString("\n\nGoal: ")
	b.WriteString(p.Goal.Prompt())
	b.WriteString("\n\n")
	b.WriteString(replyRules)
	b.WriteString("\n\nMenu (the only legal action ids this turn): ")
	b.WriteString(p.Menu.Literal())
	if len(p.Definitions) > 0 {
		b.WriteString("\n")
		for _, d := range p.Definitions {
			if !p.Menu.Contains(string(d.ID)) {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", d.ID, d.Summary)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// UserMessage renders the state snapshot followed by the next-step prompt.
func UserMessage(p Prompt) string {
	return strings.TrimRight(p.Snapshot, "\n") + "\n\n" + nextStepPrompt
}

// LLMConfig configures an LLMDecisionMaker.
type LLMConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int

	// MaxRetries is the number of retries after the first attempt for
	// transport and 5xx failures.
	MaxRetries int

	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration
}

// LLMDecisionMaker asks a chat provider for the next step.
type LLMDecisionMaker struct {
	provider Provider
	config   LLMConfig
	guard    *resilience.Executor[CompletionResponse]
}

// NewLLMDecisionMaker creates a decision-maker backed by provider. Client
// errors (4xx) are never retried.
func NewLLMDecisionMaker(provider Provider, config LLMConfig) *LLMDecisionMaker {
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 256
	}
	return &LLMDecisionMaker{
		provider: provider,
		config:   config,
		guard: resilience.NewExecutorWithOptions[CompletionResponse](
			resilience.WithBulkhead(1),
			resilience.WithRetry(config.MaxRetries+1, config.RetryDelay, ErrClientError),
		),
	}
}

// Decide implements DecisionMaker.
func (d *LLMDecisionMaker) Decide(ctx context.Context, p Prompt) (string, error) {
	req := CompletionRequest{
		Model:       d.config.Model,
		Temperature: d.config.Temperature,
		MaxTokens:   d.config.MaxTokens,
		JSON:        true,
		Messages: []Message{
			{Role: "system", Content: SystemMessage(p)},
			{Role: "user", Content: UserMessage(p)},
		},
	}

	start := time.Now()
	resp, err := d.guard.Execute(ctx, func(ctx context.Context) (CompletionResponse, error) {
		return d.provider.Complete(ctx, req)
	})
	if err != nil {
		logging.Warn().
			Add(logging.RunID(p.RunID)).
			Add(logging.Turn(p.Turn)).
			Add(logging.Str("provider", d.provider.Name())).
			Add(logging.ErrorField(err)).
			Msg("decision request failed")
		return "", fmt.Errorf("%s: %w", d.provider.Name(), err)
	}

	logging.Debug().
		Add(logging.RunID(p.RunID)).
		Add(logging.Turn(p.Turn)).
		Add(logging.Duration(time.Since(start))).
		Add(logging.Count("tokens", resp.Usage.TotalTokens)).
		Msg("decision received")

	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", ErrNoReply
	}
	return resp.Message.Content, nil
}
