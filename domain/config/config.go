// Package config provides domain models for recon configuration.
package config

import (
	"time"

	"github.com/felixgeelhaar/recon-go/domain/action"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/policy"
)

// Config represents the complete recon configuration.
type Config struct {
	// Target is an optional default target used when none is supplied.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	// Goal is the default goal id.
	Goal string `json:"goal,omitempty" yaml:"goal,omitempty"`
	// DryRun disables nmap execution. It is an alias for nmap.execution=false.
	DryRun bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	// GoalsFile is an optional YAML file with extra goals, reloaded on change.
	GoalsFile string `json:"goals_file,omitempty" yaml:"goals_file,omitempty"`

	// Budget bounds every run.
	Budget BudgetConfig `json:"budget,omitempty" yaml:"budget,omitempty"`
	// Nmap configures the scanner invocation.
	Nmap NmapConfig `json:"nmap,omitempty" yaml:"nmap,omitempty"`
	// LLM configures the decision-maker transport.
	LLM LLMConfig `json:"llm,omitempty" yaml:"llm,omitempty"`
	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Storage selects run and artifact backends.
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
	// Telemetry configures tracing and metrics.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	// Server configures the REST control surface.
	Server ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`
}

// BudgetConfig contains per-run limits.
type BudgetConfig struct {
	// MaxTurns is the maximum number of decision turns.
	MaxTurns int `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
	// MaxInvocations is the maximum number of nmap invocations.
	MaxInvocations int `json:"max_invocations,omitempty" yaml:"max_invocations,omitempty"`
	// MaxElapsed is the wall-clock limit for a run.
	MaxElapsed Duration `json:"max_elapsed,omitempty" yaml:"max_elapsed,omitempty"`
	// MaxConsecutiveRejections stops a run after this many rejected replies in a row.
	MaxConsecutiveRejections int `json:"max_consecutive_rejections,omitempty" yaml:"max_consecutive_rejections,omitempty"`
}

// Limits converts the budget to run limits.
func (b BudgetConfig) Limits() policy.Limits {
	return policy.Limits{
		MaxTurns:                 b.MaxTurns,
		MaxInvocations:           b.MaxInvocations,
		MaxElapsed:               b.MaxElapsed.Duration(),
		MaxConsecutiveRejections: b.MaxConsecutiveRejections,
	}
}

// NmapConfig configures the scanner.
type NmapConfig struct {
	// Binary is the nmap executable name or path.
	Binary string `json:"binary,omitempty" yaml:"binary,omitempty"`
	// Sudo prefixes invocations with "sudo -n".
	Sudo bool `json:"sudo" yaml:"sudo"`
	// Execution runs nmap; false simulates every invocation.
	Execution bool `json:"execution" yaml:"execution"`
	// HostTimeout is nmap's --host-timeout for most scans.
	HostTimeout Duration `json:"host_timeout,omitempty" yaml:"host_timeout,omitempty"`
	// FullRangeHostTimeout is used for scans of 1-65535.
	FullRangeHostTimeout Duration `json:"full_range_host_timeout,omitempty" yaml:"full_range_host_timeout,omitempty"`
	// Cooling pauses between consecutive invocations.
	Cooling bool `json:"cooling" yaml:"cooling"`
	// CoolingPeriod is the pause length.
	CoolingPeriod Duration `json:"cooling_period,omitempty" yaml:"cooling_period,omitempty"`
	// Wait is how long the wait action sleeps (capped at 30s).
	Wait Duration `json:"wait,omitempty" yaml:"wait,omitempty"`
	// NarrowRanges hides fixed scan variants already covered by a wider scan.
	NarrowRanges bool `json:"narrow_ranges" yaml:"narrow_ranges"`
	// ResolveTarget requires hostnames to resolve before a run starts.
	ResolveTarget bool `json:"resolve_target" yaml:"resolve_target"`
	// Bulkhead is the maximum number of concurrent invocations process-wide.
	Bulkhead int `json:"bulkhead,omitempty" yaml:"bulkhead,omitempty"`
	// BreakerThreshold is consecutive failures before invocations are refused.
	BreakerThreshold int `json:"breaker_threshold,omitempty" yaml:"breaker_threshold,omitempty"`
	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout Duration `json:"breaker_timeout,omitempty" yaml:"breaker_timeout,omitempty"`
}

// CatalogConfig converts the nmap settings to catalog settings.
func (n NmapConfig) CatalogConfig() action.CatalogConfig {
	return action.CatalogConfig{
		Binary:               n.Binary,
		Sudo:                 n.Sudo,
		HostTimeout:          n.HostTimeout.Duration(),
		FullRangeHostTimeout: n.FullRangeHostTimeout.Duration(),
		Wait:                 n.Wait.Duration(),
	}
}

// LLMConfig configures the decision-maker.
type LLMConfig struct {
	// Provider is the provider name (openai, ollama, scripted).
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// BaseURL is the API base URL.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Model is the chat model.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// APIKey is the API key. Prefer ${OPENAI_API_KEY}.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// APIKeyFile is a file holding the key as KEY=value or a bare line.
	APIKeyFile string `json:"api_key_file,omitempty" yaml:"api_key_file,omitempty"`
	// Temperature is the sampling temperature.
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	// Timeout bounds one request.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxRetries is retry attempts for transport and 5xx errors.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	// Script is the ordered reply list for the scripted provider.
	Script []string `json:"script,omitempty" yaml:"script,omitempty"`
}

// NeedsAPIKey reports whether the provider authenticates with an API key.
func (c LLMConfig) NeedsAPIKey() bool {
	return c.Provider == "openai"
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is json or console.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	// NoColor disables console colors.
	NoColor bool `json:"no_color,omitempty" yaml:"no_color,omitempty"`
}

// StorageConfig selects persistence backends.
type StorageConfig struct {
	// Runs configures the run record store.
	Runs RunStoreConfig `json:"runs,omitempty" yaml:"runs,omitempty"`
	// Artifacts configures raw scan output storage.
	Artifacts ArtifactStoreConfig `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// RunStoreConfig configures the run store.
type RunStoreConfig struct {
	// Driver is memory, sqlite, postgres, redis, badger, mongodb or dynamodb.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	// DSN is the connection string for sqlite, postgres and mongodb.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Address is the redis address.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Password is the redis password.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// Dir is the badger data directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Database is the mongodb database.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	// Table is the table, collection or key prefix name.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
	// Region is the AWS region for dynamodb.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint overrides the AWS endpoint, for local dynamodb.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// ArtifactStoreConfig configures artifact storage.
type ArtifactStoreConfig struct {
	// Driver is none, filesystem, s3, gcs or azblob.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	// Dir is the filesystem root.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Bucket is the s3 or gcs bucket.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	// Prefix is prepended to object keys.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// Region is the AWS region for s3.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint overrides the s3 endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// AccountURL is the Azure storage account URL.
	AccountURL string `json:"account_url,omitempty" yaml:"account_url,omitempty"`
	// Container is the Azure blob container.
	Container string `json:"container,omitempty" yaml:"container,omitempty"`
	// CredentialsFile is a GCS service account file.
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// ServiceName is the resource service name.
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	// Tracing configures spans.
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	// Metrics configures instruments.
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// TracingConfig configures tracing.
type TracingConfig struct {
	Enabled    bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Exporter   string  `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	Endpoint   string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure   bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// MetricsConfig configures metrics.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	limits := policy.DefaultLimits()
	catalog := action.DefaultCatalogConfig()
	return &Config{
		Goal: goal.DefaultID,
		Budget: BudgetConfig{
			MaxTurns:                 limits.MaxTurns,
			MaxInvocations:           limits.MaxInvocations,
			MaxElapsed:               Duration(limits.MaxElapsed),
			MaxConsecutiveRejections: limits.MaxConsecutiveRejections,
		},
		Nmap: NmapConfig{
			Binary:               catalog.Binary,
			Sudo:                 catalog.Sudo,
			Execution:            true,
			HostTimeout:          Duration(catalog.HostTimeout),
			FullRangeHostTimeout: Duration(catalog.FullRangeHostTimeout),
			Cooling:              true,
			CoolingPeriod:        Duration(4 * time.Second),
			Wait:                 Duration(catalog.Wait),
			NarrowRanges:         true,
			ResolveTarget:        true,
			Bulkhead:             4,
			BreakerThreshold:     5,
			BreakerTimeout:       Duration(time.Minute),
		},
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			Timeout:     Duration(90 * time.Second),
			MaxRetries:  3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Runs:      RunStoreConfig{Driver: "memory"},
			Artifacts: ArtifactStoreConfig{Driver: "none"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "recon",
			Tracing:     TracingConfig{Exporter: "none", SampleRate: 1},
			Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
		},
		Server: ServerConfig{Addr: ":12001"},
	}
}

// ExecutionEnabled reports whether nmap actually runs.
func (c *Config) ExecutionEnabled() bool {
	return c.Nmap.Execution && !c.DryRun
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Bare integers are seconds.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var secs int64
	if err := unmarshal(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
