package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmind/clipmind/ai"
	"github.com/clipmind/clipmind/search"
)

type fakeRetriever struct {
	results []search.FusedResult
	err     error
}

func (f *fakeRetriever) Retrieve(context.Context, string, int) ([]search.FusedResult, error) {
	return f.results, f.err
}

type fakeLLM struct {
	response string
	err      error
	prompts  [][]ai.Message
}

func (f *fakeLLM) Complete(_ context.Context, messages []ai.Message, _ ai.CompleteOptions) (string, error) {
	f.prompts = append(f.prompts, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeArchiver struct {
	records []Exchange
	err     error
}

func (f *fakeArchiver) RecordExchange(_ context.Context, _ string, ex Exchange) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, ex)
	return nil
}

func fusedResult(id, text string, start, end float64) search.FusedResult {
	return search.FusedResult{
		DocID:      id,
		Doc:        &search.Document{ID: id, Text: text, Start: start, End: end},
		FusedScore: 1,
	}
}

func newOrchestrator(t *testing.T, r Retriever, llm ai.GenerationService, archiver Archiver) (*Orchestrator, *Memory) {
	t.Helper()
	memory := NewMemory(DefaultMemoryConfig())
	o, err := NewOrchestrator(DefaultOrchestratorConfig(), r, llm, memory, archiver)
	require.NoError(t, err)
	return o, memory
}

func TestOrchestrator_Answer(t *testing.T) {
	ctx := context.Background()
	retriever := &fakeRetriever{results: []search.FusedResult{
		fusedResult("1", "neural networks learn from data", 65, 92),
	}}
	llm := &fakeLLM{response: "They learn from data [01:05-01:32]."}
	archiver := &fakeArchiver{}
	o, memory := newOrchestrator(t, retriever, llm, archiver)

	answer, err := o.Answer(ctx, "s1", "how do neural networks learn?", 5)
	require.NoError(t, err)

	assert.Equal(t, "s1", answer.SessionID)
	assert.NotEmpty(t, answer.RequestID)
	assert.Equal(t, "They learn from data [01:05-01:32].", answer.Text)
	assert.False(t, answer.ContextLess)
	assert.Len(t, answer.Results, 1)
	assert.False(t, answer.CreatedAt.IsZero())

	// The prompt carries the cited excerpt.
	require.Len(t, llm.prompts, 1)
	last := llm.prompts[0][len(llm.prompts[0])-1]
	assert.Contains(t, last.Content, "[01:05-01:32] neural networks learn from data")
	assert.Contains(t, last.Content, "how do neural networks learn?")

	// The exchange is committed to memory and the archive.
	require.Len(t, memory.History("s1", 0), 1)
	require.Len(t, archiver.records, 1)
	assert.Equal(t, "how do neural networks learn?", archiver.records[0].Question)
}

func TestOrchestrator_HistoryFlowsIntoNextPrompt(t *testing.T) {
	ctx := context.Background()
	retriever := &fakeRetriever{}
	llm := &fakeLLM{response: "first answer"}
	o, _ := newOrchestrator(t, retriever, llm, nil)

	_, err := o.Answer(ctx, "s1", "first question", 5)
	require.NoError(t, err)

	llm.response = "second answer"
	_, err = o.Answer(ctx, "s1", "second question", 5)
	require.NoError(t, err)

	require.Len(t, llm.prompts, 2)
	second := llm.prompts[1]

	var sawQuestion, sawAnswer bool
	for _, msg := range second {
		if strings.Contains(msg.Content, "first question") {
			sawQuestion = true
		}
		if strings.Contains(msg.Content, "first answer") {
			sawAnswer = true
		}
	}
	assert.True(t, sawQuestion, "prior question appears in the followup prompt")
	assert.True(t, sawAnswer, "prior answer appears in the followup prompt")
}

func TestOrchestrator_RetrievalFailureDegrades(t *testing.T) {
	ctx := context.Background()
	retriever := &fakeRetriever{err: errors.New("all signals failed")}
	llm := &fakeLLM{response: "answering blind"}
	o, memory := newOrchestrator(t, retriever, llm, nil)

	answer, err := o.Answer(ctx, "s1", "question", 5)
	require.NoError(t, err, "retrieval failure must not fail the call")
	assert.True(t, answer.ContextLess)
	assert.Empty(t, answer.Results)
	assert.Len(t, memory.History("s1", 0), 1, "context-less answers still commit to memory")

	require.NotEmpty(t, llm.prompts)
	assert.NotContains(t, llm.prompts[0][len(llm.prompts[0])-1].Content, "Transcript excerpts")
}

func TestOrchestrator_EmptyRetrievalIsContextLess(t *testing.T) {
	ctx := context.Background()
	retriever := &fakeRetriever{} // empty index: no results, no error
	llm := &fakeLLM{response: "cannot consult the transcript"}
	o, _ := newOrchestrator(t, retriever, llm, nil)

	answer, err := o.Answer(ctx, "s1", "question", 5)
	require.NoError(t, err)
	assert.True(t, answer.ContextLess)
}

func TestOrchestrator_GenerationFailureLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	retriever := &fakeRetriever{results: []search.FusedResult{fusedResult("1", "text", 0, 5)}}
	llm := &fakeLLM{err: ai.ErrGenerationUnavailable}
	archiver := &fakeArchiver{}
	o, memory := newOrchestrator(t, retriever, llm, archiver)

	_, err := o.Answer(ctx, "s1", "question", 5)
	assert.ErrorIs(t, err, ai.ErrGenerationUnavailable)
	assert.Empty(t, memory.History("s1", 0))
	assert.Empty(t, archiver.records)
}

func TestOrchestrator_CancelledContextSkipsCommit(t *testing.T) {
	retriever := &fakeRetriever{}
	llm := &fakeLLM{response: "answer"}
	o, memory := newOrchestrator(t, retriever, llm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Answer(ctx, "s1", "question", 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, memory.History("s1", 0))
}

func TestOrchestrator_ArchiveFailureDoesNotFailAnswer(t *testing.T) {
	ctx := context.Background()
	retriever := &fakeRetriever{}
	llm := &fakeLLM{response: "answer"}
	archiver := &fakeArchiver{err: errors.New("disk full")}
	o, memory := newOrchestrator(t, retriever, llm, archiver)

	answer, err := o.Answer(ctx, "s1", "question", 5)
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Text)
	assert.Len(t, memory.History("s1", 0), 1)
}

func TestOrchestrator_Validation(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t, &fakeRetriever{}, &fakeLLM{response: "x"}, nil)

	_, err := o.Answer(ctx, "", "question", 5)
	assert.True(t, search.IsValidation(err))

	_, err = o.Answer(ctx, "s1", "", 5)
	assert.True(t, search.IsValidation(err))
}

func TestBuildContext_BudgetDropsWholePassages(t *testing.T) {
	long := strings.Repeat("alpha ", 30)
	results := []search.FusedResult{
		fusedResult("1", long, 0, 10),
		fusedResult("2", long, 10, 20),
		fusedResult("3", "short tail", 20, 30),
	}

	block := buildContext(results, len(long)+30)
	assert.Contains(t, block, "[00:00-00:10]")
	assert.NotContains(t, block, "[00:10-00:20]", "second passage exceeds the budget and is dropped whole")
	assert.NotContains(t, block, "short tail", "selection stops at the first passage over budget")
}

func TestFormatTimeRange(t *testing.T) {
	assert.Equal(t, "[00:00-00:05]", formatTimeRange(0, 5))
	assert.Equal(t, "[01:05-01:32]", formatTimeRange(65, 92.4))
	assert.Equal(t, "[75:00-75:30]", formatTimeRange(4500, 4530), "hours fold into minutes")
	assert.Equal(t, "[00:00-00:01]", formatTimeRange(-3, 1))
}
