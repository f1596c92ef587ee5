package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmind/clipmind/internal/profile"
)

func validProfile() *profile.Profile {
	return &profile.Profile{
		LLMProvider:         "openai",
		LLMModel:            "gpt-4o-mini",
		LLMAPIKey:           "sk-test",
		LLMBaseURL:          "https://api.openai.com/v1",
		LLMTimeout:          60,
		EmbeddingProvider:   "openai",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 1024,
	}
}

func TestNewConfigFromProfile(t *testing.T) {
	cfg := NewConfigFromProfile(validProfile())

	assert.Equal(t, "gpt-4o-mini", cfg.Generation.Model)
	assert.Equal(t, 60, cfg.Generation.Timeout)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)

	t.Run("EmbeddingFallsBackToGenerationCredentials", func(t *testing.T) {
		cfg := NewConfigFromProfile(validProfile())
		assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
		assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.BaseURL)
	})

	t.Run("OwnEmbeddingCredentialsWin", func(t *testing.T) {
		p := validProfile()
		p.EmbeddingAPIKey = "sk-embed"
		p.EmbeddingBaseURL = "https://api.siliconflow.cn/v1"
		cfg := NewConfigFromProfile(p)
		assert.Equal(t, "sk-embed", cfg.Embedding.APIKey)
		assert.Equal(t, "https://api.siliconflow.cn/v1", cfg.Embedding.BaseURL)
	})
}

func TestConfigValidate(t *testing.T) {
	cfg := NewConfigFromProfile(validProfile())
	require.NoError(t, cfg.Validate())

	t.Run("MissingEmbeddingModel", func(t *testing.T) {
		p := validProfile()
		p.EmbeddingModel = ""
		assert.Error(t, NewConfigFromProfile(p).Validate())
	})

	t.Run("MissingGenerationKey", func(t *testing.T) {
		p := validProfile()
		p.LLMAPIKey = ""
		assert.Error(t, NewConfigFromProfile(p).Validate())
	})
}

func TestNewServices_RequireModel(t *testing.T) {
	_, err := NewEmbeddingService(&EmbeddingConfig{})
	assert.Error(t, err)

	_, err = NewGenerationService(&GenerationConfig{})
	assert.Error(t, err)
}
