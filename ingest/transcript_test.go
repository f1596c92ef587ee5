package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmind/clipmind/search"
)

func TestBuildDocuments_MergesUpToBudget(t *testing.T) {
	segments := []Segment{
		{Text: "hello there", Start: 0, End: 2, Confidence: 0.9},
		{Text: "welcome to the talk", Start: 2, End: 5, Confidence: 0.9},
		{Text: "today we cover neural networks", Start: 5, End: 9, Confidence: 0.9},
	}

	docs, err := BuildDocuments(segments, Config{MergeChars: 40})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "hello there welcome to the talk", docs[0].Text)
	assert.Equal(t, 0.0, docs[0].Start)
	assert.Equal(t, 5.0, docs[0].End)

	assert.Equal(t, "today we cover neural networks", docs[1].Text)
	assert.Equal(t, 5.0, docs[1].Start)
	assert.Equal(t, 9.0, docs[1].End)
}

func TestBuildDocuments_SequentialPaddedIDs(t *testing.T) {
	segments := make([]Segment, 3)
	for i := range segments {
		segments[i] = Segment{Text: strings.Repeat("x", 30), Start: float64(i), End: float64(i + 1), Confidence: 1}
	}

	docs, err := BuildDocuments(segments, Config{MergeChars: 10})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "000000", docs[0].ID)
	assert.Equal(t, "000001", docs[1].ID)
	assert.Equal(t, "000002", docs[2].ID)
}

func TestBuildDocuments_ConfidenceFilter(t *testing.T) {
	segments := []Segment{
		{Text: "clear speech", Start: 0, End: 2, Confidence: 0.95},
		{Text: "garbled noise", Start: 2, End: 4, Confidence: 0.3},
		{Text: "clear again", Start: 4, End: 6, Confidence: 0.9},
	}

	docs, err := BuildDocuments(segments, Config{MergeChars: 8, MinConfidence: 0.5})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "clear speech", docs[0].Text)
	assert.Equal(t, "clear again", docs[1].Text)

	t.Run("ZeroKeepsEverything", func(t *testing.T) {
		docs, err := BuildDocuments(segments, Config{MergeChars: 8})
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})
}

func TestBuildDocuments_SkipsEmptySegments(t *testing.T) {
	segments := []Segment{
		{Text: "   ", Start: 0, End: 1, Confidence: 1},
		{Text: "real content", Start: 1, End: 3, Confidence: 1},
	}

	docs, err := BuildDocuments(segments, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "real content", docs[0].Text)
	assert.Equal(t, 1.0, docs[0].Start)
}

func TestBuildDocuments_OversizedSegmentStaysWhole(t *testing.T) {
	long := strings.Repeat("word ", 40)
	segments := []Segment{
		{Text: "intro", Start: 0, End: 1, Confidence: 1},
		{Text: long, Start: 1, End: 9, Confidence: 1},
	}

	docs, err := BuildDocuments(segments, Config{MergeChars: 50})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "intro", docs[0].Text)
	assert.Equal(t, strings.TrimSpace(long), docs[1].Text)
	assert.Equal(t, 9.0, docs[1].End)
}

func TestBuildDocuments_RejectsInvertedTimeRange(t *testing.T) {
	_, err := BuildDocuments([]Segment{{Text: "x", Start: 5, End: 2}}, DefaultConfig())
	assert.True(t, search.IsValidation(err))
}

func TestBuildDocuments_Empty(t *testing.T) {
	docs, err := BuildDocuments(nil, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, docs)
}
