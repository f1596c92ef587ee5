package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AppendAndHistory(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig())

	m.Append("s1", Exchange{Question: "q1", Answer: "a1"})
	m.Append("s1", Exchange{Question: "q2", Answer: "a2"})
	m.Append("s2", Exchange{Question: "other", Answer: "session"})

	history := m.History("s1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, "q1", history[0].Question, "chronological order, most recent last")
	assert.Equal(t, "q2", history[1].Question)
	assert.False(t, history[0].At.IsZero(), "timestamps are filled in")

	assert.Len(t, m.History("s2", 0), 1)
	assert.Equal(t, 2, m.Len())
}

func TestMemory_FIFOTrim(t *testing.T) {
	m := NewMemory(MemoryConfig{MaxExchanges: 3})

	for i := 1; i <= 7; i++ {
		m.Append("s", Exchange{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)})
	}

	history := m.History("s", 0)
	require.Len(t, history, 3, "history never exceeds the cap")
	assert.Equal(t, "q5", history[0].Question)
	assert.Equal(t, "q7", history[2].Question)
}

func TestMemory_HistoryLimit(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig())
	for i := 1; i <= 5; i++ {
		m.Append("s", Exchange{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)})
	}

	history := m.History("s", 2)
	require.Len(t, history, 2)
	assert.Equal(t, "q4", history[0].Question, "most recent limit exchanges, chronological")
	assert.Equal(t, "q5", history[1].Question)

	assert.Len(t, m.History("s", 100), 5, "limit above retained count returns everything")
}

func TestMemory_UnknownSessionEmpty(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig())
	assert.Empty(t, m.History("never-seen", 0))
}

func TestMemory_ClearIdempotent(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig())
	m.Append("s", Exchange{Question: "q", Answer: "a"})

	m.Clear("s")
	assert.Empty(t, m.History("s", 0))
	assert.Zero(t, m.Len())

	m.Clear("s")
	m.Clear("never-seen")
}

func TestMemory_IdleEviction(t *testing.T) {
	m := NewMemory(MemoryConfig{MaxExchanges: 10, MaxIdle: time.Minute})
	current := time.Unix(1700000000, 0)
	m.now = func() time.Time { return current }

	m.Append("stale", Exchange{Question: "q", Answer: "a", At: current})
	m.Append("fresh", Exchange{Question: "q", Answer: "a", At: current})

	current = current.Add(2 * time.Minute)
	m.Append("fresh", Exchange{Question: "q2", Answer: "a2", At: current})

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
	assert.Empty(t, m.History("stale", 0))
	assert.Len(t, m.History("fresh", 0), 2)
}

func TestMemory_SweepDisabledWithoutMaxIdle(t *testing.T) {
	m := NewMemory(MemoryConfig{MaxExchanges: 10})
	m.Append("s", Exchange{Question: "q", Answer: "a"})
	assert.Zero(t, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestMemory_HistoryIsACopy(t *testing.T) {
	m := NewMemory(DefaultMemoryConfig())
	m.Append("s", Exchange{Question: "q", Answer: "a"})

	history := m.History("s", 0)
	history[0].Question = "mutated"

	assert.Equal(t, "q", m.History("s", 0)[0].Question)
}
