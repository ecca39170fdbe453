package config

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/recon-go/domain/scan"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the YAML path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates recon configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
// API key presence is checked separately by ValidateAPIKey, since
// commands such as goals and preflight run without one.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateTarget(config)
	v.validateBudget(config)
	v.validateNmap(config)
	v.validateLLM(config)
	v.validateLogging(config)
	v.validateStorage(config)
	v.validateTelemetry(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateTarget(config *Config) {
	if config.Target == "" {
		return
	}
	if _, err := scan.ParseTarget(config.Target); err != nil {
		v.addError("target", err.Error())
	}
}

func (v *Validator) validateBudget(config *Config) {
	b := config.Budget
	if b.MaxTurns < 0 {
		v.addError("budget.max_turns", "max_turns must be non-negative")
	}
	if b.MaxInvocations < 0 {
		v.addError("budget.max_invocations", "max_invocations must be non-negative")
	}
	if b.MaxElapsed < 0 {
		v.addError("budget.max_elapsed", "max_elapsed must be non-negative")
	}
	if b.MaxConsecutiveRejections < 0 {
		v.addError("budget.max_consecutive_rejections", "max_consecutive_rejections must be non-negative")
	}
}

func (v *Validator) validateNmap(config *Config) {
	n := config.Nmap
	if strings.TrimSpace(n.Binary) == "" {
		v.addError("nmap.binary", "binary is required")
	}
	if n.HostTimeout <= 0 {
		v.addError("nmap.host_timeout", "host_timeout must be positive")
	}
	if n.FullRangeHostTimeout <= 0 {
		v.addError("nmap.full_range_host_timeout", "full_range_host_timeout must be positive")
	}
	if n.Cooling && n.CoolingPeriod < 0 {
		v.addError("nmap.cooling_period", "cooling_period must be non-negative")
	}
	if n.Wait < 0 {
		v.addError("nmap.wait", "wait must be non-negative")
	}
	if n.Bulkhead < 0 {
		v.addError("nmap.bulkhead", "bulkhead must be non-negative")
	}
	if n.BreakerThreshold < 0 {
		v.addError("nmap.breaker_threshold", "breaker_threshold must be non-negative")
	}
}

func (v *Validator) validateLLM(config *Config) {
	l := config.LLM
	switch l.Provider {
	case "openai", "ollama":
		if l.Model == "" {
			v.addError("llm.model", "model is required")
		}
		if l.BaseURL == "" {
			v.addError("llm.base_url", "base_url is required")
		}
	case "scripted":
		if len(l.Script) == 0 {
			v.addError("llm.script", "script is required for the scripted provider")
		}
	default:
		v.addError("llm.provider", fmt.Sprintf("unknown provider: %s", l.Provider))
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		v.addError("llm.temperature", "temperature must be between 0 and 2")
	}
	if l.Timeout < 0 {
		v.addError("llm.timeout", "timeout must be non-negative")
	}
	if l.MaxRetries < 0 {
		v.addError("llm.max_retries", "max_retries must be non-negative")
	}
}

func (v *Validator) validateLogging(config *Config) {
	switch strings.ToLower(config.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", config.Logging.Level))
	}
	switch config.Logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", config.Logging.Format))
	}
}

func (v *Validator) validateStorage(config *Config) {
	r := config.Storage.Runs
	switch r.Driver {
	case "", "memory":
	case "sqlite", "postgres", "mongodb":
		if r.DSN == "" {
			v.addError("storage.runs.dsn", fmt.Sprintf("dsn is required for %s", r.Driver))
		}
	case "redis":
		if r.Address == "" {
			v.addError("storage.runs.address", "address is required for redis")
		}
	case "badger":
		if r.Dir == "" {
			v.addError("storage.runs.dir", "dir is required for badger")
		}
	case "dynamodb":
		if r.Table == "" {
			v.addError("storage.runs.table", "table is required for dynamodb")
		}
	default:
		v.addError("storage.runs.driver", fmt.Sprintf("unknown driver: %s", r.Driver))
	}

	a := config.Storage.Artifacts
	switch a.Driver {
	case "", "none":
	case "filesystem":
		if a.Dir == "" {
			v.addError("storage.artifacts.dir", "dir is required for filesystem")
		}
	case "s3", "gcs":
		if a.Bucket == "" {
			v.addError("storage.artifacts.bucket", fmt.Sprintf("bucket is required for %s", a.Driver))
		}
	case "azblob":
		if a.AccountURL == "" {
			v.addError("storage.artifacts.account_url", "account_url is required for azblob")
		}
		if a.Container == "" {
			v.addError("storage.artifacts.container", "container is required for azblob")
		}
	default:
		v.addError("storage.artifacts.driver", fmt.Sprintf("unknown driver: %s", a.Driver))
	}
}

func (v *Validator) validateTelemetry(config *Config) {
	t := config.Telemetry
	if t.Tracing.Enabled {
		switch t.Tracing.Exporter {
		case "otlp":
			if t.Tracing.Endpoint == "" {
				v.addError("telemetry.tracing.endpoint", "endpoint is required for otlp")
			}
		case "stdout", "none":
		default:
			v.addError("telemetry.tracing.exporter", fmt.Sprintf("unknown exporter: %s", t.Tracing.Exporter))
		}
		if t.Tracing.SampleRate < 0 || t.Tracing.SampleRate > 1 {
			v.addError("telemetry.tracing.sample_rate", "sample_rate must be between 0 and 1")
		}
	}
	if t.Metrics.Enabled {
		switch t.Metrics.Exporter {
		case "prometheus", "none":
		default:
			v.addError("telemetry.metrics.exporter", fmt.Sprintf("unknown exporter: %s", t.Metrics.Exporter))
		}
	}
}

var placeholderKeys = []string{"your-key", "your_api_key", "xxx", "changeme", "sk-..."}

// ValidateAPIKey rejects missing and placeholder API keys.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: llm api key is not set", ErrMissingAPIKey)
	}
	lower := strings.ToLower(key)
	for _, p := range placeholderKeys {
		if strings.Contains(lower, p) {
			return fmt.Errorf("%w: llm api key looks like a placeholder", ErrMissingAPIKey)
		}
	}
	if len(key) < 10 {
		return fmt.Errorf("%w: llm api key is too short", ErrMissingAPIKey)
	}
	return nil
}
