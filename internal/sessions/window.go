package sessions

import "github.com/mentorly/mentor/pkg/models"

// DefaultWindowSize is the conversation window cap applied when building
// model context.
const DefaultWindowSize = 20

// Window applies the conversation window cap to an ordered transcript.
// When the transcript exceeds the cap, the oldest messages are evicted
// first, except that system messages are always retained: they carry the
// standing instructions the rest of the conversation depends on.
//
// The returned slice preserves the original relative order. If the system
// messages alone reach the cap, only they are returned.
func Window(messages []*models.Message, limit int) []*models.Message {
	if limit <= 0 {
		limit = DefaultWindowSize
	}
	if len(messages) <= limit {
		return messages
	}

	systemCount := 0
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			systemCount++
		}
	}

	budget := limit - systemCount
	if budget < 0 {
		budget = 0
	}

	// Count the newest non-system messages that fit the remaining budget.
	keepFrom := len(messages)
	kept := 0
	for i := len(messages) - 1; i >= 0 && kept < budget; i-- {
		if messages[i].Role != models.RoleSystem {
			kept++
		}
		keepFrom = i
	}

	out := make([]*models.Message, 0, limit)
	for i, msg := range messages {
		if msg.Role == models.RoleSystem || i >= keepFrom {
			out = append(out, msg)
		}
	}
	return out
}
