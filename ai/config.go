package ai

import (
	"errors"

	"github.com/clipmind/clipmind/internal/profile"
)

// Config represents provider configuration for the AI boundary.
type Config struct {
	Embedding  EmbeddingConfig
	Generation GenerationConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    int     // seconds, default 30
	RateLimit  float64 // requests per second, 0 disables limiting
}

// GenerationConfig represents text-generation configuration. The same
// service backs query expansion (best effort) and answer generation
// (mandatory), so the timeout applies to both.
type GenerationConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // seconds, default 120
}

// NewConfigFromProfile creates AI config from the process profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Embedding: EmbeddingConfig{
			Provider:   p.EmbeddingProvider,
			Model:      p.EmbeddingModel,
			APIKey:     p.EmbeddingAPIKey,
			BaseURL:    p.EmbeddingBaseURL,
			Dimensions: p.EmbeddingDimensions,
			Timeout:    30,
		},
		Generation: GenerationConfig{
			Provider:    p.LLMProvider,
			Model:       p.LLMModel,
			APIKey:      p.LLMAPIKey,
			BaseURL:     p.LLMBaseURL,
			MaxTokens:   2048,
			Temperature: 0.7,
			Timeout:     p.LLMTimeout,
		},
	}

	// Embedding falls back to the generation credentials when it has none
	// of its own; most OpenAI-compatible providers serve both endpoints.
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = p.LLMAPIKey
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = p.LLMBaseURL
	}

	return cfg
}

// Validate checks that mandatory provider settings are present.
func (c *Config) Validate() error {
	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	if c.Generation.Model == "" {
		return errors.New("generation model is required")
	}
	if c.Generation.APIKey == "" {
		return errors.New("generation API key is required")
	}
	return nil
}
