// Package config loads the YAML application configuration used by the
// agentrun CLI and examples.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	// AppName scopes sessions and app state.
	AppName string        `yaml:"app_name"`
	Model   ModelConfig   `yaml:"model"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
	Agent   AgentConfig   `yaml:"agent"`
}

// ModelConfig selects the model provider and identifier.
type ModelConfig struct {
	// Provider is "openai", "anthropic" or "mock".
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
	// APIKey supports ${ENV_VAR} references so keys stay out of files.
	APIKey string `yaml:"api_key"`
}

// SessionConfig selects the session backend.
type SessionConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the sqlite database file; ignored for the memory backend.
	Path string `yaml:"path"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// AgentConfig holds the root agent's prompt settings.
type AgentConfig struct {
	Name        string `yaml:"name"`
	Instruction string `yaml:"instruction"`
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		AppName: "agentrun",
		Model: ModelConfig{
			Provider: "openai",
		},
		Session: SessionConfig{
			Backend: "memory",
			Path:    "agentrun.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Agent: AgentConfig{
			Name: "assistant",
		},
	}
}

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// Load reads the config file and returns a merged Config. A missing file
// produces defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	cfg.Model.APIKey = expandEnvVars(cfg.Model.APIKey)

	return cfg, nil
}
