package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/clipmind/clipmind/ai"
	"github.com/clipmind/clipmind/search"
)

// Retriever is the slice of the fusion retriever the orchestrator needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]search.FusedResult, error)
}

// Archiver persists completed exchanges outside of session memory. It is
// optional; archive failures are logged and never fail the answer.
type Archiver interface {
	RecordExchange(ctx context.Context, sessionID string, ex Exchange) error
}

// Answer is one grounded reply.
type Answer struct {
	SessionID string               `json:"session_id"`
	RequestID string               `json:"request_id"`
	Text      string               `json:"text"`
	Results   []search.FusedResult `json:"results,omitempty"`

	// ContextLess marks an answer produced without transcript context
	// because retrieval failed entirely.
	ContextLess bool      `json:"context_less"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrchestratorConfig tunes answering.
type OrchestratorConfig struct {
	// TopK is the default number of passages retrieved per question.
	TopK int

	// ContextBudget caps transcript context characters per prompt.
	ContextBudget int

	// HistoryWindow is how many prior exchanges flow into the prompt.
	HistoryWindow int
}

// DefaultOrchestratorConfig returns the production answering settings.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{TopK: 5, ContextBudget: defaultContextBudget, HistoryWindow: 10}
}

// Orchestrator coordinates one question/answer turn: retrieve, prompt with
// history and cited context, generate, then commit the exchange to memory.
type Orchestrator struct {
	cfg       OrchestratorConfig
	retriever Retriever
	llm       ai.GenerationService
	memory    *Memory
	archiver  Archiver
	now       func() time.Time
}

// NewOrchestrator wires the answering pipeline. archiver may be nil.
func NewOrchestrator(cfg OrchestratorConfig, retriever Retriever, llm ai.GenerationService, memory *Memory, archiver Archiver) (*Orchestrator, error) {
	if retriever == nil {
		return nil, errors.New("chat: retriever is required")
	}
	if llm == nil {
		return nil, errors.New("chat: generation service is required")
	}
	if memory == nil {
		return nil, errors.New("chat: session memory is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultOrchestratorConfig().TopK
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = defaultContextBudget
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultOrchestratorConfig().HistoryWindow
	}
	return &Orchestrator{
		cfg:       cfg,
		retriever: retriever,
		llm:       llm,
		memory:    memory,
		archiver:  archiver,
		now:       time.Now,
	}, nil
}

// Answer resolves one question within a session. Retrieval failure degrades
// to a context-less answer; generation failure is fatal for the call and
// leaves session memory untouched.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, query string, topK int) (*Answer, error) {
	if sessionID == "" {
		return nil, &search.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if query == "" {
		return nil, &search.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if topK <= 0 {
		topK = o.cfg.TopK
	}

	requestID := uuid.NewString()
	log := slog.With("request_id", requestID, "session_id", sessionID)

	results, err := o.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		if search.IsValidation(err) {
			return nil, err
		}
		log.WarnContext(ctx, "Retrieval failed, answering without transcript context", "error", err)
		results = nil
	}

	history := o.memory.History(sessionID, o.cfg.HistoryWindow)
	contextBlock := buildContext(results, o.cfg.ContextBudget)

	// Empty retrieval, whether from failure or an empty index, is answered
	// without transcript grounding and flagged so clients can tell the two
	// answer qualities apart.
	contextLess := contextBlock == ""

	text, err := o.llm.Complete(ctx, buildMessages(history, contextBlock, query), ai.CompleteOptions{})
	if err != nil {
		log.WarnContext(ctx, "Answer generation failed", "error", err)
		return nil, err
	}

	// A cancelled request must not mutate the session.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer := &Answer{
		SessionID:   sessionID,
		RequestID:   requestID,
		Text:        text,
		Results:     results,
		ContextLess: contextLess,
		CreatedAt:   o.now(),
	}

	ex := Exchange{Question: query, Answer: text, At: answer.CreatedAt}
	o.memory.Append(sessionID, ex)
	if o.archiver != nil {
		if err := o.archiver.RecordExchange(ctx, sessionID, ex); err != nil {
			log.WarnContext(ctx, "Failed to archive exchange", "error", err)
		}
	}

	log.InfoContext(ctx, "Answered question",
		"passages", len(results),
		"history", len(history),
		"context_less", contextLess,
	)
	return answer, nil
}
