package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"deskbot/internal/domain"
)

// extractToolCallsFromText parses tool calls a model emitted as JSON
// inside its prose instead of through the structured stream. Handles
// pure JSON, code-fenced JSON, and JSON islands surrounded by text.
func extractToolCallsFromText(content string) []domain.ToolCall {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	if calls := tryParseToolJSON(content); len(calls) > 0 {
		return calls
	}

	if start, end := findJSONBounds(content); start >= 0 && end > start {
		if calls := tryParseToolJSON(content[start:end]); len(calls) > 0 {
			return calls
		}
	}

	return nil
}

// findJSONBounds locates the first balanced top-level JSON object or
// array in s. Returns (-1, -1) when there is none.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

type looseCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"`
	Args       map[string]any `json:"args"`
}

func (lc looseCall) arguments() map[string]any {
	for _, m := range []map[string]any{lc.Args, lc.Arguments, lc.Parameters} {
		if m != nil {
			return m
		}
	}
	return make(map[string]any)
}

func tryParseToolJSON(raw string) []domain.ToolCall {
	var single looseCall
	text := raw
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		text = sanitizeJSONEscapes(text)
		_ = json.Unmarshal([]byte(text), &single)
	}
	if single.Name != "" {
		return []domain.ToolCall{{
			ID:        fmt.Sprintf("extracted_%d", time.Now().UnixNano()),
			Name:      normalizeToolName(single.Name),
			Arguments: single.arguments(),
		}}
	}

	var multi []looseCall
	if err := json.Unmarshal([]byte(text), &multi); err != nil {
		_ = json.Unmarshal([]byte(sanitizeJSONEscapes(raw)), &multi)
	}
	var calls []domain.ToolCall
	for i, lc := range multi {
		if lc.Name == "" {
			continue
		}
		calls = append(calls, domain.ToolCall{
			ID:        fmt.Sprintf("extracted_%d_%d", time.Now().UnixNano(), i),
			Name:      normalizeToolName(lc.Name),
			Arguments: lc.arguments(),
		})
	}
	return calls
}

// normalizeToolName maps name variants smaller models produce onto the
// registered tool names.
func normalizeToolName(name string) string {
	aliases := map[string]string{
		"capturewindow":  "capture_window",
		"capture-window": "capture_window",
		"screenshot":     "capture_window",
		"runcommand":     "run_command",
		"run-command":    "run_command",
		"shell":          "run_command",
		"exec":           "run_command",
		"listwindows":    "list_windows",
		"list-windows":   "list_windows",
	}
	if mapped, ok := aliases[strings.ToLower(name)]; ok {
		return mapped
	}
	return name
}

// sanitizeJSONEscapes drops backslashes that start invalid JSON escape
// sequences, which some models emit inside string values.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
			default:
				continue
			}
		} else {
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
