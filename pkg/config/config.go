// Package config loads the pipeline configuration of promoflow from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

type Config struct {
	WorkspaceDir  string              `yaml:"workspace_dir"  toml:"workspace_dir"`
	LLM           LLMConfig           `yaml:"llm"            toml:"llm"`
	Copywriting   CopywritingConfig   `yaml:"copywriting"    toml:"copywriting"`
	ImageGen      ImageGenConfig      `yaml:"image_generation" toml:"image_generation"`
	Video         VideoConfig         `yaml:"video"          toml:"video"`
	Pipeline      PipelineConfig      `yaml:"pipeline"       toml:"pipeline"`
	Notifications NotificationsConfig `yaml:"notifications"  toml:"notifications"`
	Registry      RegistryConfig      `yaml:"registry"       toml:"registry"`
}

// LLMConfig configures the OpenAI-compatible text generation endpoint used
// for product analysis.
type LLMConfig struct {
	BaseURL          string  `yaml:"base_url"            toml:"base_url"`
	APIKey           string  `yaml:"api_key"             toml:"api_key"`
	Model            string  `yaml:"model"               toml:"model"`
	Temperature      float64 `yaml:"temperature"         toml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"          toml:"max_tokens"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"     toml:"timeout_seconds"`
	MaxAttempts      int     `yaml:"max_attempts"        toml:"max_attempts"`
	RetryBaseDelayMS int     `yaml:"retry_base_delay_ms" toml:"retry_base_delay_ms"`
	RetryMaxDelayMS  int     `yaml:"retry_max_delay_ms"  toml:"retry_max_delay_ms"`
}

type CopywritingConfig struct {
	Model                string  `yaml:"model"                  toml:"model"`
	Temperature          float64 `yaml:"temperature"            toml:"temperature"`
	MaxTokens            int     `yaml:"max_tokens"             toml:"max_tokens"`
	CheckpointTTLSeconds int     `yaml:"checkpoint_ttl_seconds" toml:"checkpoint_ttl_seconds"`
}

// ImageGenConfig configures the scene image provider. Without an endpoint the
// reference image is reused for every scene.
type ImageGenConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	APIKey   string `yaml:"api_key"  toml:"api_key"`
	Model    string `yaml:"model"    toml:"model"`
}

// VideoConfig configures the primary video provider. Without a provider URL
// every request goes to the slideshow fallback.
type VideoConfig struct {
	ProviderName    string `yaml:"provider_name"    toml:"provider_name"`
	ProviderURL     string `yaml:"provider_url"     toml:"provider_url"`
	APIKey          string `yaml:"api_key"          toml:"api_key"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"  toml:"timeout_seconds"`
	DurationSeconds int    `yaml:"duration_seconds" toml:"duration_seconds"`
	Transition      string `yaml:"transition"       toml:"transition"`
}

type PipelineConfig struct {
	MaxScenes int `yaml:"max_scenes" toml:"max_scenes"`
}

type NotificationsConfig struct {
	ErrorLogCooldownSeconds int `yaml:"error_log_cooldown_seconds" toml:"error_log_cooldown_seconds"`
}

type RegistryConfig struct {
	RetentionMinutes int    `yaml:"retention_minutes" toml:"retention_minutes"`
	PruneSchedule    string `yaml:"prune_schedule"    toml:"prune_schedule"`
}

// Load reads path on top of Default and validates the result. An empty path
// yields the defaults. API keys left empty in the file are taken from the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse TOML config: %w", err)
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("PROMOFLOW_LLM_API_KEY")
	}

	if c.ImageGen.APIKey == "" {
		c.ImageGen.APIKey = os.Getenv("PROMOFLOW_IMAGE_API_KEY")
	}

	if c.Video.APIKey == "" {
		c.Video.APIKey = os.Getenv("PROMOFLOW_VIDEO_API_KEY")
	}
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c LLMConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

func (c LLMConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}

func (c CopywritingConfig) CheckpointTTL() time.Duration {
	return time.Duration(c.CheckpointTTLSeconds) * time.Second
}

func (c VideoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c NotificationsConfig) ErrorLogCooldown() time.Duration {
	return time.Duration(c.ErrorLogCooldownSeconds) * time.Second
}

func (c RegistryConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}
