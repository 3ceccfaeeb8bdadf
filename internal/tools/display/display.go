// Package display provides the format_output capability: it renders raw
// JSON payloads from other tools into human-readable text. The capability
// is idempotent; formatting the same payload twice is harmless.
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mentorly/mentor/internal/agent"
)

type params struct {
	Data     string `json:"data"`
	DataType string `json:"data_type,omitempty"`
}

// Tool implements the format_output capability.
type Tool struct{}

// New creates the output formatting tool.
func New() *Tool {
	return &Tool{}
}

func (t *Tool) Name() string {
	return "format_output"
}

func (t *Tool) Description() string {
	return "Format raw data (JSON, dictionaries, API responses) into human-readable text. Use this when raw data from other tools needs to be presented to the user."
}

// Idempotent marks the capability as safe to repeat.
func (t *Tool) Idempotent() bool {
	return true
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"data": {
				"type": "string",
				"description": "The raw data (JSON or plain text) to format"
			},
			"data_type": {
				"type": "string",
				"enum": ["weather", "search", "conversation", "auto"],
				"description": "Type of data (default: auto)"
			}
		},
		"required": ["data"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var p params
	if err := json.Unmarshal(input, &p); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}
	if strings.TrimSpace(p.Data) == "" {
		return &agent.ToolResult{Content: "Data is required", IsError: true}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(p.Data), &obj); err != nil || obj == nil {
		// Not a JSON object; assume the text is already readable.
		return &agent.ToolResult{Content: p.Data}, nil
	}

	dataType := p.DataType
	if dataType == "" || dataType == "auto" {
		dataType = detectType(obj)
	}

	var out string
	switch dataType {
	case "weather":
		out = formatWeather(obj)
	case "search":
		out = formatSearchResults(obj)
	case "conversation":
		out = formatConversation(obj)
	default:
		out = formatGeneric(obj)
	}

	return &agent.ToolResult{Content: out}, nil
}

func detectType(obj map[string]any) string {
	if _, ok := obj["location"]; ok {
		if _, ok := obj["current"]; ok {
			return "weather"
		}
	}
	if _, ok := obj["results"]; ok {
		return "search"
	}
	if data, ok := obj["data"].([]any); ok && len(data) > 0 {
		return "conversation"
	}
	return "generic"
}

func formatWeather(obj map[string]any) string {
	location, _ := obj["location"].(map[string]any)
	current, _ := obj["current"].(map[string]any)
	if location == nil || current == nil {
		return formatGeneric(obj)
	}

	city := stringField(location, "name", "Unknown location")
	country := stringField(location, "country", "")

	var b strings.Builder
	b.WriteString("Current Weather in " + city)
	if country != "" {
		b.WriteString(", " + country)
	}
	b.WriteString("\n\n")

	if condition, ok := current["condition"].(map[string]any); ok {
		if text := stringField(condition, "text", ""); text != "" {
			fmt.Fprintf(&b, "Condition: %s\n", text)
		}
	}
	if tempC, ok := current["temp_c"].(float64); ok {
		fmt.Fprintf(&b, "Temperature: %g°C", tempC)
		if tempF, ok := current["temp_f"].(float64); ok {
			fmt.Fprintf(&b, " (%g°F)", tempF)
		}
		b.WriteString("\n")
	}
	if humidity, ok := current["humidity"].(float64); ok {
		fmt.Fprintf(&b, "Humidity: %g%%\n", humidity)
	}
	if windKph, ok := current["wind_kph"].(float64); ok {
		dir := stringField(current, "wind_dir", "")
		fmt.Fprintf(&b, "Wind: %s %g km/h\n", dir, windKph)
	}
	if localTime := stringField(location, "localtime", ""); localTime != "" {
		fmt.Fprintf(&b, "\nLocal time: %s", localTime)
	}
	return strings.TrimSpace(b.String())
}

func formatSearchResults(obj map[string]any) string {
	results, _ := obj["results"].([]any)
	if len(results) == 0 {
		return "I couldn't find any relevant information."
	}

	var b strings.Builder
	b.WriteString("Search Results:\n\n")
	for i, r := range results {
		if i >= 3 {
			break
		}
		result, ok := r.(map[string]any)
		if !ok {
			continue
		}
		title := stringField(result, "title", "No title")
		snippet := stringField(result, "snippet", stringField(result, "content", ""))
		url := stringField(result, "url", "")

		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		if snippet != "" {
			if len(snippet) > 200 {
				snippet = snippet[:200] + "..."
			}
			b.WriteString(snippet + "\n")
		}
		if url != "" {
			fmt.Fprintf(&b, "Source: %s\n", url)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func formatConversation(obj map[string]any) string {
	data, _ := obj["data"].([]any)
	if len(data) == 0 {
		return "No conversation history found."
	}

	var b strings.Builder
	b.WriteString("Conversation History:\n\n")
	for _, item := range data {
		msg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role := stringField(msg, "role", stringField(msg, "sender", "unknown"))
		content := stringField(msg, "content", stringField(msg, "message", ""))
		if content == "" {
			continue
		}
		if len(content) > 150 {
			content = content[:150] + "..."
		}
		fmt.Fprintf(&b, "[%s] %s\n", role, content)
	}
	return strings.TrimSpace(b.String())
}

// formatGeneric renders an arbitrary object as sorted key/value lines.
func formatGeneric(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Here's the information:\n")
	for _, k := range keys {
		value := stringifyValue(obj[k])
		if len(value) > 200 {
			value = value[:200] + "..."
		}
		fmt.Fprintf(&b, "- %s: %s\n", strings.ReplaceAll(k, "_", " "), value)
	}
	return strings.TrimSpace(b.String())
}

func stringField(obj map[string]any, key, fallback string) string {
	if v, ok := obj[key].(string); ok && v != "" {
		return v
	}
	return fallback
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
