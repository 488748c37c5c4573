package config

import "time"

// AIConfig holds the tunables of the AI plan builder pipeline.
type AIConfig struct {
	// TopNodes / TopActions / TopVerifications cap the filtered context the
	// LLM sees per category.
	TopNodes         int `yaml:"top_nodes"`
	TopActions       int `yaml:"top_actions"`
	TopVerifications int `yaml:"top_verifications"`

	// FuzzyThreshold is the minimum normalized edit-distance similarity for
	// a node label to count as a correction candidate. A phrase with exactly
	// one candidate strictly above the threshold is auto-corrected; two or
	// more trigger disambiguation.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// MaxSuggestions caps the suggestion list per ambiguous phrase.
	MaxSuggestions int `yaml:"max_suggestions"`

	// ContextTTL bounds the plan-context cache (nodes, actions,
	// verifications per device+interface).
	ContextTTL time.Duration `yaml:"context_ttl"`

	// Provider selects and configures the LLM backend.
	Provider *LLMProviderConfig `yaml:"provider"`
}

// LLMProviderConfig configures the OpenAI-compatible completion backend.
type LLMProviderConfig struct {
	// Model is the model identifier sent with every request.
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint (OpenRouter, vLLM, ollama, ...).
	// Empty means the provider default.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// MaxTokens bounds the completion length.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds one completion round-trip.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultAIConfig returns the built-in AI pipeline defaults.
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		TopNodes:         15,
		TopActions:       10,
		TopVerifications: 8,
		FuzzyThreshold:   0.62,
		MaxSuggestions:   5,
		ContextTTL:       5 * time.Minute,
		Provider: &LLMProviderConfig{
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
	}
}
