package profile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server. It is populated
// from CLI flags and then overridden from CLIPMIND_* environment variables;
// components receive immutable views of it through their own config structs.
type Profile struct {
	// Server
	Mode string // prod, dev
	Addr string
	Port int
	Data string // data directory for index snapshots

	// Conversation archive (sqlite); empty disables archiving
	DSN string

	// Vector index backend: memory or pgvector
	VectorBackend string
	PostgresDSN   string

	// Generation provider (OpenAI-compatible)
	LLMProvider string
	LLMModel    string
	LLMAPIKey   string
	LLMBaseURL  string
	LLMTimeout  int // seconds

	// Embedding provider; credentials default to the generation provider's
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int

	// Retrieval tuning
	FusionStrategy   string  // weighted, rrf
	VectorWeight     float64
	LexicalWeight    float64
	MinSimilarity    float64
	ExpansionEnabled bool
	MaxQueryVariants int

	// Session memory
	MaxExchanges   int
	MaxIdleMinutes int

	// Ingestion
	MergeChars    int
	MinConfidence float64

	Version string
}

// Provider default base URLs, applied when LLMBaseURL is not set.
var providerDefaults = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"ollama":      "http://localhost:11434/v1",
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// ListenAddr is the host:port the HTTP server binds.
func (p *Profile) ListenAddr() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}

// FromEnv overrides profile fields from CLIPMIND_* environment variables.
func (p *Profile) FromEnv() {
	setString(&p.Mode, "CLIPMIND_MODE")
	setString(&p.Addr, "CLIPMIND_ADDR")
	setInt(&p.Port, "CLIPMIND_PORT")
	setString(&p.Data, "CLIPMIND_DATA")
	setString(&p.DSN, "CLIPMIND_DSN")

	setString(&p.VectorBackend, "CLIPMIND_VECTOR_BACKEND")
	setString(&p.PostgresDSN, "CLIPMIND_POSTGRES_DSN")

	setString(&p.LLMProvider, "CLIPMIND_LLM_PROVIDER")
	setString(&p.LLMModel, "CLIPMIND_LLM_MODEL")
	setString(&p.LLMAPIKey, "CLIPMIND_LLM_API_KEY")
	setString(&p.LLMBaseURL, "CLIPMIND_LLM_BASE_URL")
	setInt(&p.LLMTimeout, "CLIPMIND_LLM_TIMEOUT")

	setString(&p.EmbeddingProvider, "CLIPMIND_EMBEDDING_PROVIDER")
	setString(&p.EmbeddingModel, "CLIPMIND_EMBEDDING_MODEL")
	setString(&p.EmbeddingAPIKey, "CLIPMIND_EMBEDDING_API_KEY")
	setString(&p.EmbeddingBaseURL, "CLIPMIND_EMBEDDING_BASE_URL")
	setInt(&p.EmbeddingDimensions, "CLIPMIND_EMBEDDING_DIMENSIONS")

	setString(&p.FusionStrategy, "CLIPMIND_FUSION_STRATEGY")
	setFloat(&p.VectorWeight, "CLIPMIND_VECTOR_WEIGHT")
	setFloat(&p.LexicalWeight, "CLIPMIND_LEXICAL_WEIGHT")
	setFloat(&p.MinSimilarity, "CLIPMIND_MIN_SIMILARITY")
	setBool(&p.ExpansionEnabled, "CLIPMIND_EXPANSION_ENABLED")
	setInt(&p.MaxQueryVariants, "CLIPMIND_MAX_QUERY_VARIANTS")

	setInt(&p.MaxExchanges, "CLIPMIND_MAX_EXCHANGES")
	setInt(&p.MaxIdleMinutes, "CLIPMIND_MAX_IDLE_MINUTES")

	setInt(&p.MergeChars, "CLIPMIND_MERGE_CHARS")
	setFloat(&p.MinConfidence, "CLIPMIND_MIN_CONFIDENCE")
}

// Validate normalizes defaults and rejects inconsistent settings.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port: %d", p.Port)
	}
	if p.Data == "" {
		p.Data = "./data"
	}

	switch p.VectorBackend {
	case "":
		p.VectorBackend = "memory"
	case "memory":
	case "pgvector":
		if p.PostgresDSN == "" {
			return errors.New("pgvector backend requires a postgres DSN")
		}
	default:
		return errors.Errorf("unknown vector backend: %s", p.VectorBackend)
	}

	if p.LLMProvider == "" {
		p.LLMProvider = "openai"
	}
	if p.LLMBaseURL == "" {
		p.LLMBaseURL = providerDefaults[p.LLMProvider]
	}
	if p.LLMTimeout <= 0 {
		p.LLMTimeout = 120
	}
	if p.EmbeddingProvider == "" {
		p.EmbeddingProvider = p.LLMProvider
	}
	if p.EmbeddingDimensions <= 0 {
		p.EmbeddingDimensions = 1024
	}

	switch p.FusionStrategy {
	case "":
		p.FusionStrategy = "weighted"
	case "weighted", "rrf":
	default:
		return errors.Errorf("unknown fusion strategy: %s", p.FusionStrategy)
	}
	if p.VectorWeight <= 0 && p.LexicalWeight <= 0 {
		p.VectorWeight = 0.5
		p.LexicalWeight = 0.5
	}
	if p.VectorWeight < 0 || p.LexicalWeight < 0 {
		return errors.New("fusion weights must be non-negative")
	}
	if p.MinSimilarity < 0 || p.MinSimilarity > 1 {
		return errors.Errorf("min similarity out of range: %f", p.MinSimilarity)
	}
	if p.MaxQueryVariants <= 0 {
		p.MaxQueryVariants = 4
	}

	if p.MaxExchanges <= 0 {
		p.MaxExchanges = 20
	}
	if p.MaxIdleMinutes <= 0 {
		p.MaxIdleMinutes = 30
	}
	if p.MergeChars < 0 {
		return errors.Errorf("invalid merge chars: %d", p.MergeChars)
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return errors.Errorf("min confidence out of range: %f", p.MinConfidence)
	}

	if err := os.MkdirAll(p.Data, 0o750); err != nil {
		return errors.Wrapf(err, "failed to create data dir %s", p.Data)
	}
	return nil
}

func (p *Profile) String() string {
	return fmt.Sprintf("mode=%s addr=%s port=%d data=%s vector_backend=%s fusion=%s",
		p.Mode, p.Addr, p.Port, p.Data, p.VectorBackend, p.FusionStrategy)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
}
