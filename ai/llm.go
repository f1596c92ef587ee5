package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: openai.ChatMessageRoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleUser, Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleAssistant, Content: content}
}

// CompleteOptions tunes a single completion call. Zero values fall back to
// the service defaults.
type CompleteOptions struct {
	MaxTokens   int
	Temperature float32
}

// GenerationService is the text-generation boundary. Query expansion uses
// it best-effort; answer generation treats a failure as fatal for the call.
type GenerationService interface {
	// Complete turns a prompt into text. Rate-limit and auth failures are
	// surfaced as ErrRateLimited / ErrAuthFailed; everything else that keeps
	// the provider from answering maps to ErrGenerationUnavailable.
	Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error)
}

type generationService struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewGenerationService creates a GenerationService over any OpenAI-compatible
// provider.
func NewGenerationService(cfg *GenerationConfig) (GenerationService, error) {
	if cfg.Model == "" {
		return nil, errors.New("generation model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &generationService{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
	}, nil
}

func (s *generationService) Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = s.temperature
	}

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    convertMessages(messages),
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Warn("Completion request failed", "model", s.model, "error", err)
		classified := classifyProviderError(err)
		if errors.Is(classified, ErrProviderUnavailable) {
			classified = ErrGenerationUnavailable
		}
		return "", fmt.Errorf("%w: %v", classified, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGenerationUnavailable)
	}

	slog.Debug("Completion received",
		"model", s.model,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return resp.Choices[0].Message.Content, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return converted
}
