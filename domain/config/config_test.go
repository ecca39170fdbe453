package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"duration string", "d: 90s", 90 * time.Second, false},
		{"hours", "d: 1h", time.Hour, false},
		{"bare seconds", "d: 300", 300 * time.Second, false},
		{"invalid", "d: soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out struct {
				D Duration `yaml:"d"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && out.D.Duration() != tt.want {
				t.Errorf("Duration() = %v, want %v", out.D.Duration(), tt.want)
			}
		})
	}
}

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Duration(4 * time.Second))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"4s"` {
		t.Errorf("Marshal() = %s, want \"4s\"", data)
	}

	var d Duration
	if err := json.Unmarshal([]byte(`"2m"`), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if d.Duration() != 2*time.Minute {
		t.Errorf("Unmarshal() = %v, want 2m", d.Duration())
	}
	if err := json.Unmarshal([]byte(`null`), &d); err != nil {
		t.Errorf("Unmarshal(null) error = %v", err)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Goal != "simple_recon" {
		t.Errorf("Goal = %q, want simple_recon", cfg.Goal)
	}
	limits := cfg.Budget.Limits()
	if limits.MaxTurns != 30 || limits.MaxInvocations != 25 || limits.MaxElapsed != time.Hour || limits.MaxConsecutiveRejections != 5 {
		t.Errorf("Limits() = %+v", limits)
	}
	cat := cfg.Nmap.CatalogConfig()
	if cat.Binary != "nmap" || !cat.Sudo || cat.HostTimeout != 300*time.Second || cat.FullRangeHostTimeout != time.Hour {
		t.Errorf("CatalogConfig() = %+v", cat)
	}
	if !cfg.ExecutionEnabled() {
		t.Error("ExecutionEnabled() = false, want true")
	}
	if errs := NewValidator().Validate(cfg); errs.HasErrors() {
		t.Errorf("Validate(Default()) = %v", errs)
	}
}

func TestConfig_DryRunAlias(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := yaml.Unmarshal([]byte("dry_run: true\n"), cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.ExecutionEnabled() {
		t.Error("ExecutionEnabled() = true with dry_run, want false")
	}
	if !cfg.Nmap.Sudo {
		t.Error("unrelated defaults were reset by a partial document")
	}
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPath string
	}{
		{"bad target", func(c *Config) { c.Target = "10.0.0.1; rm -rf /" }, "target"},
		{"negative turns", func(c *Config) { c.Budget.MaxTurns = -1 }, "budget.max_turns"},
		{"empty binary", func(c *Config) { c.Nmap.Binary = " " }, "nmap.binary"},
		{"zero host timeout", func(c *Config) { c.Nmap.HostTimeout = 0 }, "nmap.host_timeout"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "pigeon" }, "llm.provider"},
		{"scripted without script", func(c *Config) { c.LLM.Provider = "scripted" }, "llm.script"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"sqlite dsn", func(c *Config) { c.Storage.Runs.Driver = "sqlite" }, "storage.runs.dsn"},
		{"redis address", func(c *Config) { c.Storage.Runs.Driver = "redis" }, "storage.runs.address"},
		{"unknown run driver", func(c *Config) { c.Storage.Runs.Driver = "tape" }, "storage.runs.driver"},
		{"s3 bucket", func(c *Config) { c.Storage.Artifacts.Driver = "s3" }, "storage.artifacts.bucket"},
		{"azblob container", func(c *Config) {
			c.Storage.Artifacts.Driver = "azblob"
			c.Storage.Artifacts.AccountURL = "https://acct.blob.core.windows.net"
		}, "storage.artifacts.container"},
		{"otlp endpoint", func(c *Config) {
			c.Telemetry.Tracing.Enabled = true
			c.Telemetry.Tracing.Exporter = "otlp"
		}, "telemetry.tracing.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			errs := NewValidator().Validate(cfg)
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v, want exactly one error", errs)
			}
			if errs[0].Path != tt.wantPath {
				t.Errorf("Validate()[0].Path = %s, want %s", errs[0].Path, tt.wantPath)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	var none ValidationErrors
	if none.Error() != "no validation errors" {
		t.Errorf("Error() = %q", none.Error())
	}
	one := ValidationErrors{{Path: "nmap.binary", Message: "binary is required"}}
	if one.Error() != "nmap.binary: binary is required" {
		t.Errorf("Error() = %q", one.Error())
	}
	two := append(one, ValidationError{Message: "other"})
	if !strings.HasPrefix(two.Error(), "2 validation errors:") {
		t.Errorf("Error() = %q", two.Error())
	}
}

func TestValidateAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key     string
		wantErr bool
	}{
		{"", true},
		{"your-key-here-please", true},
		{"xxxxxxxxxxxxxxxx", true},
		{"sk-short", true},
		{"sk-proj-0123456789abcdef", false},
	}
	for _, tt := range tests {
		err := ValidateAPIKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("ValidateAPIKey(%q) error = %v, want ErrMissingAPIKey", tt.key, err)
		}
	}
}
