package config

// Default returns a configuration usable without any file: an OpenAI
// compatible endpoint, slideshow-only video and a ten minute prune cycle.
func Default() Config {
	return Config{
		WorkspaceDir: "./data/workspace",
		LLM: LLMConfig{
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-4o-mini",
			Temperature:      0.7,
			MaxTokens:        1024,
			TimeoutSeconds:   60,
			MaxAttempts:      3,
			RetryBaseDelayMS: 500,
			RetryMaxDelayMS:  8000,
		},
		Copywriting: CopywritingConfig{
			Model:                "gpt-4o-mini",
			Temperature:          0.8,
			MaxTokens:            1024,
			CheckpointTTLSeconds: 86400,
		},
		Video: VideoConfig{
			ProviderName:    "primary",
			TimeoutSeconds:  120,
			DurationSeconds: 15,
			Transition:      "crossfade",
		},
		Pipeline: PipelineConfig{
			MaxScenes: 4,
		},
		Notifications: NotificationsConfig{
			ErrorLogCooldownSeconds: 30,
		},
		Registry: RegistryConfig{
			RetentionMinutes: 24 * 60,
			PruneSchedule:    "@every 10m",
		},
	}
}
