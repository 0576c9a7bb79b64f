package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WorkspaceDir) == "" {
		return errors.New("workspace_dir must be set")
	}

	if err := c.validateLLM(); err != nil {
		return err
	}

	if err := c.validateVideo(); err != nil {
		return err
	}

	if c.Copywriting.MaxTokens <= 0 {
		return errors.New("copywriting.max_tokens must be positive")
	}

	if c.Copywriting.CheckpointTTLSeconds <= 0 {
		return errors.New("copywriting.checkpoint_ttl_seconds must be positive")
	}

	if c.Pipeline.MaxScenes <= 0 {
		return errors.New("pipeline.max_scenes must be positive")
	}

	if c.Notifications.ErrorLogCooldownSeconds <= 0 {
		return errors.New("notifications.error_log_cooldown_seconds must be positive")
	}

	return c.validateRegistry()
}

func (c *Config) validateLLM() error {
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}

	if c.LLM.MaxAttempts <= 0 {
		return errors.New("llm.max_attempts must be positive")
	}

	if c.LLM.RetryBaseDelayMS <= 0 || c.LLM.RetryMaxDelayMS < c.LLM.RetryBaseDelayMS {
		return errors.New("llm retry delays must be positive with retry_max_delay_ms >= retry_base_delay_ms")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}

	return nil
}

func (c *Config) validateVideo() error {
	if c.Video.TimeoutSeconds <= 0 {
		return errors.New("video.timeout_seconds must be positive")
	}

	if c.Video.DurationSeconds <= 0 {
		return errors.New("video.duration_seconds must be positive")
	}

	return nil
}

func (c *Config) validateRegistry() error {
	if c.Registry.RetentionMinutes <= 0 {
		return errors.New("registry.retention_minutes must be positive")
	}

	if _, err := cron.ParseStandard(c.Registry.PruneSchedule); err != nil {
		return fmt.Errorf("registry.prune_schedule %q is invalid: %w", c.Registry.PruneSchedule, err)
	}

	return nil
}
