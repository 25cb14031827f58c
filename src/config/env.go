package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Flag is a lenient boolean: "1", "true", "yes" and "on" (any case) are
// true, anything else is false. It never fails to parse.
type Flag bool

func (f *Flag) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1", "true", "yes", "on":
		*f = true
	default:
		*f = false
	}
	return nil
}

// Env is the process-wide safe mode configuration read from the
// environment once at startup.
type Env struct {
	Enabled         Flag     `env:"SAFE_MODE"`
	MaxStringLength int      `env:"SAFE_MODE_MAX_STRING_LENGTH" envDefault:"200"`
	MaxInteger      int64    `env:"SAFE_MODE_MAX_INTEGER" envDefault:"2147483647"`
	MaxDepth        int      `env:"SAFE_MODE_MAX_DEPTH" envDefault:"64"`
	Fields          []string `env:"SAFE_MODE_FIELDS" envDefault:"content,metadata" envSeparator:","`
	Collaborator    string   `env:"SAFE_MODE_COLLABORATOR" envDefault:"MCP tool"`
}

// LoadEnv parses the environment. With no files, a .env in the working
// directory is loaded if present; listed files must exist. Variables that
// are already set are never overridden.
func LoadEnv(files ...string) (Env, error) {
	if len(files) == 0 {
		// The default .env file is optional.
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Env{}, fmt.Errorf("loading env files: %w", err)
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parsing environment: %w", err)
	}

	for i, f := range e.Fields {
		e.Fields[i] = strings.TrimSpace(f)
	}

	if err := validateSafeMode(e.SafeModeDefaults()); err != nil {
		return Env{}, fmt.Errorf("environment: %w", err)
	}
	return e, nil
}

// SafeModeDefaults returns the env limits as a fully populated SafeModeConfig.
func (e Env) SafeModeDefaults() SafeModeConfig {
	fields := make([]string, len(e.Fields))
	copy(fields, e.Fields)
	return SafeModeConfig{
		MaxStringLength: intPtr(e.MaxStringLength),
		MaxInteger:      int64Ptr(e.MaxInteger),
		MaxDepth:        intPtr(e.MaxDepth),
		Fields:          fields,
	}
}

// DefaultEnv returns the Env that an empty environment parses to.
func DefaultEnv() Env {
	return Env{
		MaxStringLength: 200,
		MaxInteger:      2147483647,
		MaxDepth:        64,
		Fields:          []string{"content", "metadata"},
		Collaborator:    "MCP tool",
	}
}
