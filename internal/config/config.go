// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Sections map one-to-one
// onto the keys of stitch.yaml and the STITCH_* environment variables.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Review    ReviewConfig    `mapstructure:"review" yaml:"review"`
	Autofix   AutofixConfig   `mapstructure:"autofix" yaml:"autofix"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	GitHub    GitHubConfig    `mapstructure:"github" yaml:"github"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderOpenAI    LLMProvider = "openai"
	ProviderGemini    LLMProvider = "gemini"
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMConfig defines the connection to the model that backs both the
// reviewer and the fix generator. The API key never round-trips through
// YAML; it is bound to STITCH_LLM_API_KEY.
type LLMConfig struct {
	Provider       LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model          string        `mapstructure:"model" yaml:"model"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey         string        `mapstructure:"api_key" yaml:"-"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxTokens      int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// ReviewConfig tunes diff collection and the reviewer call.
type ReviewConfig struct {
	Base         string `mapstructure:"base" yaml:"base"`
	Head         string `mapstructure:"head" yaml:"head"`
	MaxFindings  int    `mapstructure:"max_findings" yaml:"max_findings"`
	MaxDiffBytes int    `mapstructure:"max_diff_bytes" yaml:"max_diff_bytes"`
}

// AutofixConfig holds settings for the fix-generation stage.
type AutofixConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxFixes       int           `mapstructure:"max_fixes" yaml:"max_fixes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ChangedFiles   string        `mapstructure:"changed_files" yaml:"changed_files"`
	AllowUnlisted  bool          `mapstructure:"allow_unlisted" yaml:"allow_unlisted"`
	Output         string        `mapstructure:"output" yaml:"output"`
}

// ArtifactsConfig locates the run artifact directory.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ReportConfig selects the report renderers for a run.
type ReportConfig struct {
	Formats []string `mapstructure:"formats" yaml:"formats"`
	Output  string   `mapstructure:"output" yaml:"output"`
}

// NotifyConfig defines the agent-session webhook. The token is bound to
// STITCH_NOTIFY_AGENT_TOKEN and never written to YAML.
type NotifyConfig struct {
	AgentURL   string `mapstructure:"agent_url" yaml:"agent_url"`
	AgentToken string `mapstructure:"agent_token" yaml:"-"`
}

// GitHubConfig defines the configuration for posting the report as a PR
// comment. All three fields come from the CI environment in practice.
type GitHubConfig struct {
	Token      string `mapstructure:"token" yaml:"-"`
	Repository string `mapstructure:"repository" yaml:"repository"`
	PRNumber   int    `mapstructure:"pr_number" yaml:"pr_number"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "stitch")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.request_timeout", "60s")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.rate_limit", 2.0)

	// -- Review --
	v.SetDefault("review.base", "origin/main")
	v.SetDefault("review.head", "HEAD")
	v.SetDefault("review.max_findings", 20)
	v.SetDefault("review.max_diff_bytes", 262144)

	// -- Autofix --
	v.SetDefault("autofix.enabled", true)
	v.SetDefault("autofix.max_fixes", 5)
	v.SetDefault("autofix.request_timeout", "60s")
	v.SetDefault("autofix.changed_files", "")
	v.SetDefault("autofix.allow_unlisted", false)
	v.SetDefault("autofix.output", "artifacts/fixes.json")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "artifacts")

	// -- Report --
	v.SetDefault("report.formats", []string{"markdown"})
	v.SetDefault("report.output", "artifacts")

	// -- Notify --
	v.SetDefault("notify.agent_url", "")

	// -- GitHub --
	v.SetDefault("github.repository", "")
	v.SetDefault("github.pr_number", 0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data. GITHUB_TOKEN and
	// GITHUB_REPOSITORY match what CI runners already export.
	v.BindEnv("llm.api_key", "STITCH_LLM_API_KEY")
	v.BindEnv("notify.agent_token", "STITCH_NOTIFY_AGENT_TOKEN")
	v.BindEnv("github.token", "GITHUB_TOKEN")
	v.BindEnv("github.repository", "GITHUB_REPOSITORY")
	v.BindEnv("github.pr_number", "STITCH_GITHUB_PR_NUMBER")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for structurally sane values. It does
// not require the LLM credential; commands that talk to the model call
// LLMConfig.Require before constructing a client, so report-only runs work
// without one.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.Review.Validate(); err != nil {
		return fmt.Errorf("review configuration invalid: %w", err)
	}
	if err := c.Autofix.Validate(); err != nil {
		return fmt.Errorf("autofix configuration invalid: %w", err)
	}
	if err := c.Report.Validate(); err != nil {
		return fmt.Errorf("report configuration invalid: %w", err)
	}
	return nil
}

// Validate checks provider naming and numeric sanity.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q", l.Provider)
	}
	if l.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be a positive duration")
	}
	if l.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be a positive integer")
	}
	if l.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	return nil
}

// Require verifies the fields a live model call needs. Endpoint is only
// mandatory for the openai provider; the SDK providers carry their own.
func (l *LLMConfig) Require() error {
	var missing []string
	if l.Model == "" {
		missing = append(missing, "llm.model")
	}
	if l.APIKey == "" {
		missing = append(missing, "llm.api_key (STITCH_LLM_API_KEY)")
	}
	if l.Provider == ProviderOpenAI && l.Endpoint == "" {
		missing = append(missing, "llm.endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks the review section.
func (r *ReviewConfig) Validate() error {
	if r.MaxFindings <= 0 {
		return fmt.Errorf("max_findings must be a positive integer")
	}
	if r.MaxDiffBytes <= 0 {
		return fmt.Errorf("max_diff_bytes must be a positive integer")
	}
	return nil
}

// Validate checks the autofix section. The hard cap on max_fixes is
// enforced by the pipeline at construction time, not here, so an oversized
// value clamps with a warning instead of failing the run.
func (a *AutofixConfig) Validate() error {
	if a.MaxFixes <= 0 {
		return fmt.Errorf("max_fixes must be a positive integer")
	}
	if a.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the report section.
func (r *ReportConfig) Validate() error {
	for _, f := range r.Formats {
		switch f {
		case "markdown", "sarif", "json":
		default:
			return fmt.Errorf("unknown report format %q", f)
		}
	}
	return nil
}
