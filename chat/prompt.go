package chat

import (
	"fmt"
	"strings"

	"github.com/clipmind/clipmind/ai"
	"github.com/clipmind/clipmind/search"
)

const answerSystemPrompt = `You answer questions about a video using only the transcript excerpts provided. Cite the time range of any excerpt you rely on, in the [MM:SS-MM:SS] form it is given. If the excerpts do not contain the answer, say so instead of guessing.`

const contextLessSystemPrompt = `You answer questions about a video, but the transcript index is currently unavailable. Answer from the conversation so far when possible and state clearly that you could not consult the transcript.`

// defaultContextBudget caps the transcript context in characters. Passages
// are dropped whole, best-scored first, never truncated mid-passage.
const defaultContextBudget = 6000

// formatTimestamp renders seconds as MM:SS. Hours fold into minutes, which
// matches how transcript citations read for typical video lengths.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func formatTimeRange(start, end float64) string {
	return fmt.Sprintf("[%s-%s]", formatTimestamp(start), formatTimestamp(end))
}

// buildContext renders retrieved passages as cited excerpt blocks within
// the character budget.
func buildContext(results []search.FusedResult, budget int) string {
	if budget <= 0 {
		budget = defaultContextBudget
	}

	var b strings.Builder
	for _, res := range results {
		if res.Doc == nil {
			continue
		}
		block := fmt.Sprintf("%s %s\n", formatTimeRange(res.Doc.Start, res.Doc.End), strings.TrimSpace(res.Doc.Text))
		if b.Len()+len(block) > budget && b.Len() > 0 {
			break
		}
		b.WriteString(block)
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildMessages assembles the completion request: system prompt, prior
// exchanges as alternating turns, then the current question with its
// transcript context.
func buildMessages(history []Exchange, contextBlock, query string) []ai.Message {
	system := answerSystemPrompt
	if contextBlock == "" {
		system = contextLessSystemPrompt
	}

	messages := make([]ai.Message, 0, 2*len(history)+2)
	messages = append(messages, ai.SystemPrompt(system))
	for _, ex := range history {
		messages = append(messages, ai.UserMessage(ex.Question), ai.AssistantMessage(ex.Answer))
	}

	if contextBlock == "" {
		messages = append(messages, ai.UserMessage(query))
		return messages
	}
	messages = append(messages, ai.UserMessage(fmt.Sprintf("Transcript excerpts:\n%s\n\nQuestion: %s", contextBlock, query)))
	return messages
}
