// Package config provides configuration types and defaults for autohub.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/paths"
	"github.com/zjrosen/autohub/internal/tracing"
)

// Config holds all configuration options for autohub.
type Config struct {
	// Roots are scanned in order; the first root also receives generated
	// scripts when generation.output_dir is empty.
	Roots        []string            `mapstructure:"roots"`
	Interpreters []InterpreterConfig `mapstructure:"interpreters"`
	Loader       LoaderConfig        `mapstructure:"loader"`
	Catalog      CatalogConfig       `mapstructure:"catalog"`
	Generation   GenerationConfig    `mapstructure:"generation"`
	Scheduler    SchedulerConfig     `mapstructure:"scheduler"`
	Tracing      TracingConfig       `mapstructure:"tracing"`
	Flags        map[string]bool     `mapstructure:"flags"`
}

// InterpreterConfig maps a script extension to the command that runs it.
// Extensions are configured as a list because viper splits map keys on ".".
type InterpreterConfig struct {
	Extension string   `mapstructure:"extension"` // ".py"
	Command   []string `mapstructure:"command"`   // ["python3"]
}

// LoaderConfig holds module loader settings.
type LoaderConfig struct {
	VerifyOnLoad     bool          `mapstructure:"verify_on_load"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	CloseTimeout     time.Duration `mapstructure:"close_timeout"`
	StderrLines      int           `mapstructure:"stderr_lines"`
	Env              []string      `mapstructure:"env"` // KEY=VALUE pairs added to every script process
}

// CatalogConfig holds discovery settings.
type CatalogConfig struct {
	// Extensions limits discovery to these file extensions.
	// Default: every extension with a configured interpreter.
	Extensions    []string      `mapstructure:"extensions"`
	ParseCacheTTL time.Duration `mapstructure:"parse_cache_ttl"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// GenerationConfig holds code generation settings.
type GenerationConfig struct {
	// APIKey enables the remote model strategy. ANTHROPIC_API_KEY is used
	// when empty.
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// MaxRetries bounds retries of failed model calls; negative disables them.
	MaxRetries int `mapstructure:"max_retries"`
	// DisableAI skips the remote model even when a key is available.
	DisableAI bool   `mapstructure:"disable_ai"`
	OutputDir string `mapstructure:"output_dir"`
}

// SchedulerConfig holds scheduler settings.
type SchedulerConfig struct {
	DatabasePath   string        `mapstructure:"database_path"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// Timezone is an IANA name used for cron expressions. Empty means local.
	Timezone string `mapstructure:"timezone"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.autohub/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// ProviderConfig converts the section into a tracing.Config.
func (t TracingConfig) ProviderConfig() tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = t.Enabled
	if t.Exporter != "" {
		cfg.Exporter = t.Exporter
	}
	cfg.FilePath = paths.ExpandHome(t.FilePath)
	if cfg.FilePath == "" {
		cfg.FilePath = paths.TracesPath()
	}
	if t.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = t.OTLPEndpoint
	}
	cfg.SampleRate = t.SampleRate
	return cfg
}

// InterpreterMap returns the interpreters keyed by lower-case extension.
// Returns nil when none are configured.
func (c Config) InterpreterMap() map[string][]string {
	if len(c.Interpreters) == 0 {
		return nil
	}
	m := make(map[string][]string, len(c.Interpreters))
	for _, in := range c.Interpreters {
		m[normalizeExt(in.Extension)] = in.Command
	}
	return m
}

// ResolvedRoots returns the configured roots with "~" expanded, or the
// default workflows directory when none are configured.
func (c Config) ResolvedRoots() []string {
	roots := paths.ExpandAll(c.Roots)
	if len(roots) == 0 {
		return []string{paths.WorkflowsDir()}
	}
	return roots
}

// OutputDir returns where generated scripts are written.
func (c Config) OutputDir() string {
	if c.Generation.OutputDir != "" {
		return paths.ExpandHome(c.Generation.OutputDir)
	}
	return paths.GeneratedDir()
}

// DatabasePath returns the scheduler database path.
func (c Config) DatabasePath() string {
	if c.Scheduler.DatabasePath != "" {
		return paths.ExpandHome(c.Scheduler.DatabasePath)
	}
	return paths.DatabasePath()
}

// Location returns the scheduler time zone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Validate runs every section validator.
func Validate(c Config) error {
	if err := ValidateInterpreters(c.Interpreters); err != nil {
		return err
	}
	if err := ValidateLoader(c.Loader); err != nil {
		return err
	}
	if err := ValidateCatalog(c.Catalog); err != nil {
		return err
	}
	if err := ValidateGeneration(c.Generation); err != nil {
		return err
	}
	if err := ValidateScheduler(c.Scheduler); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateInterpreters checks interpreter configuration for errors.
// Returns nil if the list is empty (defaults are used).
func ValidateInterpreters(interpreters []InterpreterConfig) error {
	seen := make(map[string]bool, len(interpreters))
	for i, in := range interpreters {
		ext := normalizeExt(in.Extension)
		if ext == "" {
			return fmt.Errorf("interpreters[%d]: extension is required", i)
		}
		if len(in.Command) == 0 || strings.TrimSpace(in.Command[0]) == "" {
			return fmt.Errorf("interpreters[%d] (%s): command is required", i, ext)
		}
		if seen[ext] {
			return fmt.Errorf("interpreters[%d]: duplicate extension %s", i, ext)
		}
		seen[ext] = true
	}
	return nil
}

// ValidateLoader checks loader configuration for errors.
func ValidateLoader(l LoaderConfig) error {
	if l.HandshakeTimeout < 0 {
		return fmt.Errorf("loader.handshake_timeout must not be negative, got %s", l.HandshakeTimeout)
	}
	if l.CloseTimeout < 0 {
		return fmt.Errorf("loader.close_timeout must not be negative, got %s", l.CloseTimeout)
	}
	if l.StderrLines < 0 {
		return fmt.Errorf("loader.stderr_lines must not be negative, got %d", l.StderrLines)
	}
	for _, kv := range l.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("loader.env entry %q must be KEY=VALUE", kv)
		}
	}
	return nil
}

// ValidateCatalog checks catalog configuration for errors.
func ValidateCatalog(c CatalogConfig) error {
	for _, ext := range c.Extensions {
		if normalizeExt(ext) == "" {
			return fmt.Errorf("catalog.extensions must not contain empty entries")
		}
	}
	if c.ParseCacheTTL < 0 {
		return fmt.Errorf("catalog.parse_cache_ttl must not be negative, got %s", c.ParseCacheTTL)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("catalog.watch_debounce must not be negative, got %s", c.WatchDebounce)
	}
	return nil
}

// ValidateGeneration checks generation configuration for errors.
func ValidateGeneration(g GenerationConfig) error {
	if g.MaxTokens < 0 {
		return fmt.Errorf("generation.max_tokens must not be negative, got %d", g.MaxTokens)
	}
	if g.Timeout < 0 {
		return fmt.Errorf("generation.timeout must not be negative, got %s", g.Timeout)
	}
	if g.BaseURL != "" && !strings.HasPrefix(g.BaseURL, "http://") && !strings.HasPrefix(g.BaseURL, "https://") {
		return fmt.Errorf("generation.base_url must be an http(s) URL, got %q", g.BaseURL)
	}
	return nil
}

// ValidateScheduler checks scheduler configuration for errors.
func ValidateScheduler(s SchedulerConfig) error {
	if s.DefaultTimeout < 0 {
		return fmt.Errorf("scheduler.default_timeout must not be negative, got %s", s.DefaultTimeout)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	// Validate SampleRate is in range [0.0, 1.0]
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// OTLPEndpoint is required when Exporter is "otlp"; file_path falls
	// back to the default traces path.
	if tracing.Enabled && tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}

	return nil
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Roots: []string{paths.WorkflowsDir()},
		Loader: LoaderConfig{
			VerifyOnLoad:     true,
			HandshakeTimeout: 10 * time.Second,
			CloseTimeout:     5 * time.Second,
			StderrLines:      50,
		},
		Catalog: CatalogConfig{
			ParseCacheTTL: 10 * time.Minute,
			WatchDebounce: 500 * time.Millisecond,
		},
		Generation: GenerationConfig{
			BaseURL:   "https://api.anthropic.com",
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens:  4000,
			Timeout:    60 * time.Second,
			MaxRetries: 2,
		},
		Scheduler: SchedulerConfig{
			DefaultTimeout: 30 * time.Minute,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from the autohub home at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# autohub configuration

# Workflow roots, scanned in order. When two roots hold the same workflow id
# the first one wins. Built-in workflows are scanned last.
roots:
  - ~/.autohub/workflows

# Interpreters per script extension (defaults shown)
# interpreters:
#   - extension: .py
#     command: [python3]
#   - extension: .sh
#     command: [sh]
#   - extension: .ps1
#     command: [pwsh, -NoProfile, -File]

# Module loader
loader:
  verify_on_load: true     # Run a describe handshake when a script is discovered
  handshake_timeout: 10s
  close_timeout: 5s        # Wait this long for a script to exit before killing it
  stderr_lines: 50         # Stderr lines kept for error messages
  # env:
  #   - PYTHONUNBUFFERED=1

# Discovery
catalog:
  # extensions: [.py]      # Default: every extension with an interpreter
  parse_cache_ttl: 10m
  watch_debounce: 500ms

# Script generation (workflow:generate)
generation:
  # api_key: ""            # Falls back to ANTHROPIC_API_KEY
  model: claude-sonnet-4-5-20250929
  max_tokens: 4000
  timeout: 60s
  max_retries: 2
  # disable_ai: true       # Always use the keyword template
  # output_dir: ~/.autohub/workflows/generated

# Scheduled runs (schedule:* and daemon)
scheduler:
  # database_path: ~/.autohub/autohub.db
  default_timeout: 30m
  # timezone: Europe/Berlin

# Distributed tracing configuration
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.autohub/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Feature flags
# flags:
#   disable-builtins: false
#   disable-parse-cache: false
#   strict-scan: false
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	// Create parent directory if needed
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write the template
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
