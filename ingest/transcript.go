// Package ingest turns raw transcription segments into retrievable
// documents: low-confidence segments are dropped, short consecutive
// segments are merged into passages, and each passage keeps the time range
// of the segments it covers.
package ingest

import (
	"fmt"
	"strings"

	"github.com/clipmind/clipmind/search"
)

// Segment is one raw transcription unit as produced upstream.
type Segment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Config tunes passage building.
type Config struct {
	// MergeChars is the target passage length. Consecutive segments merge
	// until adding the next one would exceed it.
	MergeChars int

	// MinConfidence drops segments below this transcription confidence.
	// Zero keeps everything.
	MinConfidence float64
}

// DefaultConfig returns the production ingestion settings.
func DefaultConfig() Config {
	return Config{MergeChars: 500, MinConfidence: 0}
}

// BuildDocuments converts segments into merged, sequentially numbered
// documents. IDs are zero padded so lexicographic order matches temporal
// order.
func BuildDocuments(segments []Segment, cfg Config) ([]*search.Document, error) {
	if cfg.MergeChars <= 0 {
		cfg.MergeChars = DefaultConfig().MergeChars
	}

	var docs []*search.Document
	var (
		parts []string
		start float64
		end   float64
		size  int
	)

	flush := func() {
		if len(parts) == 0 {
			return
		}
		docs = append(docs, &search.Document{
			ID:    fmt.Sprintf("%06d", len(docs)),
			Text:  strings.Join(parts, " "),
			Start: start,
			End:   end,
		})
		parts, size = nil, 0
	}

	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if seg.End < seg.Start {
			return nil, &search.ValidationError{
				Field:  "segment",
				Reason: fmt.Sprintf("segment %d ends before it starts", i),
			}
		}
		if cfg.MinConfidence > 0 && seg.Confidence < cfg.MinConfidence {
			continue
		}

		if len(parts) > 0 && size+1+len(text) > cfg.MergeChars {
			flush()
		}
		if len(parts) == 0 {
			start = seg.Start
		} else {
			size++ // joining space
		}
		parts = append(parts, text)
		size += len(text)
		end = seg.End
	}
	flush()
	return docs, nil
}
