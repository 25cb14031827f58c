package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"gopkg.in/yaml.v3"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/message"
	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/sanitizer"
)

// validName matches alphanumeric, hyphens, and single underscores.
// Double underscores are reserved as the namespace separator.
var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Config is the top-level gateway configuration loaded from JSON or YAML.
type Config struct {
	Upstream            UpstreamConfig     `json:"upstream" yaml:"upstream"`
	Downstream          []DownstreamConfig `json:"downstream" yaml:"downstream"`
	SafeMode            SafeModeConfig     `json:"safeMode" yaml:"safeMode"`
	HealthCheckInterval string             `json:"healthCheckInterval,omitempty" yaml:"healthCheckInterval,omitempty"`

	// Enabled and Collaborator come from the environment only.
	Enabled      bool   `json:"-" yaml:"-"`
	Collaborator string `json:"-" yaml:"-"`
}

// UpstreamConfig controls how MCP clients connect to the gateway.
type UpstreamConfig struct {
	Transport string     `json:"transport" yaml:"transport"` // "stdio" or "http"
	HTTP      HTTPConfig `json:"http" yaml:"http"`
}

// HTTPConfig holds HTTP listener settings.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"` // e.g. ":8080"
	Path string `json:"path" yaml:"path"` // e.g. "/mcp"
}

// DownstreamConfig defines a single downstream MCP server.
type DownstreamConfig struct {
	Name      string          `json:"name" yaml:"name"`
	Transport string          `json:"transport" yaml:"transport"` // "stdio" or "http"
	Command   []string        `json:"command,omitempty" yaml:"command,omitempty"`
	URL       string          `json:"url,omitempty" yaml:"url,omitempty"`
	SafeMode  *SafeModeConfig `json:"safeMode,omitempty" yaml:"safeMode,omitempty"`
}

// SafeModeConfig holds the sanitizer limits and designated message fields.
// At the root level unset fields are filled from the environment; per
// downstream server, non-nil fields override the root.
type SafeModeConfig struct {
	MaxStringLength *int     `json:"maxStringLength,omitempty" yaml:"maxStringLength,omitempty"`
	MaxInteger      *int64   `json:"maxInteger,omitempty" yaml:"maxInteger,omitempty"`
	MaxDepth        *int     `json:"maxDepth,omitempty" yaml:"maxDepth,omitempty"`
	Fields          []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	DefaultHTTPAddr            = ":8080"
	DefaultHTTPPath            = "/mcp"
	DefaultHealthCheckInterval = 30 * time.Second
)

// Load reads and parses a config file, fills defaults from env, and
// validates. Files ending in .yaml or .yml are parsed as YAML, anything
// else as JSON.
func Load(path string, env Env) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyDefaults(&cfg, env)

	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config, env Env) {
	if cfg.Upstream.Transport == "" {
		cfg.Upstream.Transport = TransportStdio
	}
	if cfg.Upstream.HTTP.Addr == "" {
		cfg.Upstream.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.Upstream.HTTP.Path == "" {
		cfg.Upstream.HTTP.Path = DefaultHTTPPath
	}
	if cfg.HealthCheckInterval == "" {
		cfg.HealthCheckInterval = DefaultHealthCheckInterval.String()
	}

	cfg.Enabled = bool(env.Enabled)
	cfg.Collaborator = env.Collaborator

	defaults := env.SafeModeDefaults()
	if cfg.SafeMode.MaxStringLength == nil {
		cfg.SafeMode.MaxStringLength = defaults.MaxStringLength
	}
	if cfg.SafeMode.MaxInteger == nil {
		cfg.SafeMode.MaxInteger = defaults.MaxInteger
	}
	if cfg.SafeMode.MaxDepth == nil {
		cfg.SafeMode.MaxDepth = defaults.MaxDepth
	}
	if cfg.SafeMode.Fields == nil {
		cfg.SafeMode.Fields = defaults.Fields
	}
}

func validate(cfg Config) error {
	if cfg.Upstream.Transport != TransportStdio && cfg.Upstream.Transport != TransportHTTP {
		return fmt.Errorf("upstream transport must be %q or %q, got %q",
			TransportStdio, TransportHTTP, cfg.Upstream.Transport)
	}

	if len(cfg.Downstream) == 0 {
		return fmt.Errorf("at least one downstream server is required")
	}

	if d, err := time.ParseDuration(cfg.HealthCheckInterval); err != nil {
		return fmt.Errorf("healthCheckInterval: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("healthCheckInterval must be positive, got %s", d)
	}

	names := make(map[string]struct{}, len(cfg.Downstream))
	for i, ds := range cfg.Downstream {
		if ds.Name == "" {
			return fmt.Errorf("downstream[%d]: name is required", i)
		}
		if !validName.MatchString(ds.Name) {
			return fmt.Errorf("downstream[%d]: name %q must match %s", i, ds.Name, validName.String())
		}
		if strings.Contains(ds.Name, "__") {
			return fmt.Errorf("downstream[%d]: name %q must not contain \"__\" (reserved separator)", i, ds.Name)
		}
		if _, exists := names[ds.Name]; exists {
			return fmt.Errorf("downstream[%d]: duplicate name %q", i, ds.Name)
		}
		names[ds.Name] = struct{}{}

		if ds.Transport != TransportStdio && ds.Transport != TransportHTTP {
			return fmt.Errorf("downstream[%d] (%s): transport must be %q or %q, got %q",
				i, ds.Name, TransportStdio, TransportHTTP, ds.Transport)
		}

		if ds.Transport == TransportStdio && len(ds.Command) == 0 {
			return fmt.Errorf("downstream[%d] (%s): command is required for stdio transport", i, ds.Name)
		}

		if ds.Transport == TransportHTTP && ds.URL == "" {
			return fmt.Errorf("downstream[%d] (%s): url is required for http transport", i, ds.Name)
		}
	}

	if err := validateSafeMode(cfg.SafeMode); err != nil {
		return fmt.Errorf("safeMode: %w", err)
	}

	for i, ds := range cfg.Downstream {
		if ds.SafeMode == nil {
			continue
		}
		if err := validateSafeMode(Merge(&cfg.SafeMode, ds.SafeMode)); err != nil {
			return fmt.Errorf("downstream[%d] (%s) safeMode: %w", i, ds.Name, err)
		}
	}

	return nil
}

func validateSafeMode(c SafeModeConfig) error {
	if c.MaxStringLength != nil && *c.MaxStringLength < 0 {
		return fmt.Errorf("maxStringLength must be >= 0, got %d", *c.MaxStringLength)
	}
	if c.MaxInteger != nil && *c.MaxInteger <= 0 {
		return fmt.Errorf("maxInteger must be > 0, got %d", *c.MaxInteger)
	}
	if c.MaxDepth != nil && *c.MaxDepth < 1 {
		return fmt.Errorf("maxDepth must be >= 1, got %d", *c.MaxDepth)
	}
	for i, f := range c.Fields {
		if _, err := message.ParseField(f); err != nil {
			return fmt.Errorf("fields[%d]: %w", i, err)
		}
	}
	return nil
}

// HealthCheck returns the parsed health check interval.
func (c Config) HealthCheck() time.Duration {
	d, err := time.ParseDuration(c.HealthCheckInterval)
	if err != nil || d <= 0 {
		return DefaultHealthCheckInterval
	}
	return d
}

// Merge returns a SafeModeConfig with per-server overrides applied on
// top of global defaults. Fields that are nil in the override use the global value.
func Merge(global, override *SafeModeConfig) SafeModeConfig {
	if override == nil {
		return *global
	}

	merged := *global

	if override.MaxStringLength != nil {
		merged.MaxStringLength = override.MaxStringLength
	}
	if override.MaxInteger != nil {
		merged.MaxInteger = override.MaxInteger
	}
	if override.MaxDepth != nil {
		merged.MaxDepth = override.MaxDepth
	}
	if len(override.Fields) > 0 {
		merged.Fields = override.Fields
	}

	return merged
}

// Limits converts c into sanitizer limits. Unset fields use the
// sanitizer defaults.
func (c SafeModeConfig) Limits() sanitizer.Limits {
	l := sanitizer.DefaultLimits()
	if c.MaxStringLength != nil {
		l.MaxStringLength = *c.MaxStringLength
	}
	if c.MaxInteger != nil {
		l.MaxInteger = *c.MaxInteger
	}
	if c.MaxDepth != nil {
		l.MaxDepth = *c.MaxDepth
	}
	return l
}

// Options builds interceptor options from c. Invalid field names are
// skipped; Load has already rejected them.
func (c SafeModeConfig) Options(enabled bool) message.Options {
	fields := make([]message.Field, 0, len(c.Fields))
	for _, name := range c.Fields {
		if f, err := message.ParseField(name); err == nil {
			fields = append(fields, f)
		}
	}
	return message.Options{
		Enabled: enabled,
		Limits:  c.Limits(),
		Fields:  fields,
	}
}

func intPtr(i int) *int       { return &i }
func int64Ptr(i int64) *int64 { return &i }
