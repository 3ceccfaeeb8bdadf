package agent

import (
	"strings"

	"github.com/mentorly/mentor/pkg/models"
)

// fallbackLookBack is how many messages the recovery scan walks backward
// when hunting for a usable tool result.
const fallbackLookBack = 3

// fallbackApology is the last-resort reply when the model produced nothing
// usable and no recent tool result exists to synthesize from.
const fallbackApology = "I apologize, but I'm having trouble generating a response. Could you please rephrase your question or try asking something else?"

// emptyPatterns are whole-output forms that count as degenerate after
// whitespace trimming: bare code fences and stray backticks the model
// sometimes emits instead of content.
var emptyPatterns = map[string]struct{}{
	"":    {},
	"```": {},
	"`":   {},
}

// IsDegenerate reports whether candidate text is unusable as a final
// answer: empty, whitespace-only, or an empty code fence.
func IsDegenerate(text string) bool {
	trimmed := strings.TrimSpace(text)
	if _, ok := emptyPatterns[trimmed]; ok {
		return true
	}
	// An opening fence with nothing inside, e.g. "```\n```" or "```go\n```".
	if strings.HasPrefix(trimmed, "```") {
		inner := strings.TrimPrefix(trimmed, "```")
		inner = strings.TrimSuffix(inner, "```")
		if idx := strings.IndexByte(inner, '\n'); idx >= 0 {
			inner = inner[idx+1:]
		}
		if strings.TrimSpace(inner) == "" {
			return true
		}
	}
	return false
}

// Recover turns a degenerate model output into usable text. It scans the
// window backward, at most fallbackLookBack messages, for the most recent
// tool result; if one exists the reply is synthesized from it, otherwise
// a fixed apology is returned. Callers only invoke Recover when
// IsDegenerate reported true; the result is never empty.
func Recover(window []models.Message) string {
	scanned := 0
	for i := len(window) - 1; i >= 0 && scanned < fallbackLookBack; i-- {
		msg := window[i]
		scanned++

		if len(msg.ToolResults) == 0 {
			continue
		}
		// Prefer the last successful result in the message.
		for j := len(msg.ToolResults) - 1; j >= 0; j-- {
			tr := msg.ToolResults[j]
			if tr.IsError {
				continue
			}
			name := tr.Name
			if name == "" {
				name = "tool"
			}
			return "Based on the " + name + " results:\n\n" + FormatResult(name, tr)
		}
	}
	return fallbackApology
}
