package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mentorly/mentor/pkg/models"
)

const (
	// maxFormattedLength bounds any formatted result.
	maxFormattedLength = 2000

	// maxDictEntries is how many key/value pairs a generic object renders
	// before collapsing the rest into a count.
	maxDictEntries = 5

	// maxValueLength bounds individual values in generic object output.
	maxValueLength = 100
)

// specialRenderer renders a decoded result object for one capability.
// Returning "" falls through to generic formatting.
type specialRenderer func(obj map[string]any) string

var specialRenderers = map[string]specialRenderer{
	"skill_evaluator": renderSkillEvaluation,
	"life_event":      renderLifeEvents,
}

// FormatResult renders a capability result for inclusion in the transcript
// and for fallback synthesis. Precedence: explicit errors first, then a
// capability-specific renderer, then generic object rendering, then plain
// truncated text. Output is always non-empty for non-empty input and never
// exceeds maxFormattedLength.
func FormatResult(name string, result models.ToolResult) string {
	if result.IsError {
		return truncate(fmt.Sprintf("Error from %s: %s", name, result.Content), maxFormattedLength)
	}

	content := strings.TrimSpace(result.Content)

	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		if render, ok := specialRenderers[name]; ok {
			if out := render(obj); out != "" {
				return truncate(cleanText(out), maxFormattedLength)
			}
		}
		return truncate(cleanText(formatObject(name, obj)), maxFormattedLength)
	}

	return truncate(cleanText(content), maxFormattedLength)
}

// formatObject renders a decoded JSON object generically: a status line
// when present, then the first maxDictEntries fields as bullets.
func formatObject(name string, obj map[string]any) string {
	if status, ok := obj["status"].(string); ok {
		if message, ok := obj["message"].(string); ok && message != "" {
			return fmt.Sprintf("[%s] %s", strings.ToUpper(status), message)
		}
	}

	// A "data" envelope carries the payload; unwrap it when it is itself
	// an object.
	if data, ok := obj["data"].(map[string]any); ok && len(data) > 0 {
		obj = data
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Results from %s:\n", name)
	shown := 0
	for _, k := range keys {
		if shown >= maxDictEntries {
			break
		}
		fmt.Fprintf(&b, "  • %s: %s\n", k, truncate(stringifyValue(obj[k]), maxValueLength))
		shown++
	}
	if remaining := len(keys) - shown; remaining > 0 {
		fmt.Fprintf(&b, "  ... and %d more fields\n", remaining)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderSkillEvaluation renders skill scores and the top improvement
// suggestions.
func renderSkillEvaluation(obj map[string]any) string {
	levels, _ := obj["skill_levels"].(map[string]any)
	if len(levels) == 0 {
		return ""
	}

	names := make([]string, 0, len(levels))
	for name := range levels {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Skill Evaluation:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  • %s: %s/100\n", name, stringifyValue(levels[name]))
	}

	if feedback, ok := obj["feedback"].(string); ok && feedback != "" {
		fmt.Fprintf(&b, "\nFeedback: %s\n", feedback)
	}

	if suggestions, ok := obj["suggestions"].([]any); ok && len(suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for i, s := range suggestions {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "  %d. %s\n", i+1, stringifyValue(s))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderLifeEvents renders an event listing, or the operation's status
// message for mutations.
func renderLifeEvents(obj map[string]any) string {
	events, ok := obj["data"].([]any)
	if !ok {
		if message, ok := obj["message"].(string); ok && message != "" {
			return message
		}
		return ""
	}

	if len(events) == 0 {
		return "No life events recorded."
	}

	var b strings.Builder
	b.WriteString("Life Events:\n")
	for _, e := range events {
		event, ok := e.(map[string]any)
		if !ok {
			continue
		}
		title, _ := event["title"].(string)
		if title == "" {
			title = "Untitled"
		}
		date, _ := event["date"].(string)
		fmt.Fprintf(&b, "  • %s - %s\n", title, date)
	}
	return strings.TrimRight(b.String(), "\n")
}

func stringifyValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case nil:
		return "null"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// cleanText collapses runs of three or more newlines and trims the edges.
func cleanText(text string) string {
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
