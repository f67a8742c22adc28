// Package config handles configuration loading for AgentForge. It supports
// XDG config paths, a project-level override file, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/agentforge/internal/pipeline"
)

// Config holds all configuration for AgentForge.
type Config struct {
	Provider   ProviderConfig   `mapstructure:"provider"`
	Generation GenerationConfig `mapstructure:"generation"`
	Validation ValidationConfig `mapstructure:"validation"`
	Output     OutputConfig     `mapstructure:"output"`
}

// ProviderConfig selects the LLM backend.
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// GenerationConfig holds the per-call generation parameters and the retry
// budget of each stage.
type GenerationConfig struct {
	Profile         string        `mapstructure:"profile"`
	MaxSpecAttempts int           `mapstructure:"max_spec_attempts"`
	MaxImplAttempts int           `mapstructure:"max_impl_attempts"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Temperature     float64       `mapstructure:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// ValidationConfig holds the safety acceptance knobs.
type ValidationConfig struct {
	// RiskThreshold is the maximum risk score an accepted implementation may
	// carry. Zero blocks any detected risk.
	RiskThreshold int `mapstructure:"risk_threshold"`
}

// OutputConfig controls where run artifacts are written.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
}

// Load loads configuration with the following precedence, highest first:
// environment variables (AGENTFORGE_ prefix), project config
// (.agentforge.yaml in the current directory or a parent), user config
// (~/.config/agentforge/config.yaml), built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("AGENTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file, for testing and the
// --config flag.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Pipeline translates the loaded configuration into a pipeline.Config.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Provider:            c.Provider.Name,
		Model:               c.Provider.Model,
		BaseURL:             c.Provider.BaseURL,
		Profile:             c.Generation.Profile,
		MaxSpecAttempts:     c.Generation.MaxSpecAttempts,
		MaxImplAttempts:     c.Generation.MaxImplAttempts,
		MaxTokens:           c.Generation.MaxTokens,
		Temperature:         c.Generation.Temperature,
		GenerationTimeout:   c.Generation.Timeout,
		SafetyRiskThreshold: c.Validation.RiskThreshold,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.base_url", "")

	v.SetDefault("generation.profile", "general")
	v.SetDefault("generation.max_spec_attempts", 3)
	v.SetDefault("generation.max_impl_attempts", 3)
	v.SetDefault("generation.max_tokens", 8192)
	v.SetDefault("generation.temperature", 0.2)
	v.SetDefault("generation.timeout", "120s")

	v.SetDefault("validation.risk_threshold", 0)

	v.SetDefault("output.dir", "agents")
	v.SetDefault("output.format", "markdown")
}

// userConfigDir returns the XDG config directory for AgentForge.
func userConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agentforge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "agentforge")
	}
	return filepath.Join(home, ".config", "agentforge")
}

// findProjectConfig searches for .agentforge.yaml in the current directory
// and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".agentforge.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
