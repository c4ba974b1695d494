package agent

import "deskbot/internal/domain"

// Tool names the orchestrator executes natively.
const (
	toolCaptureWindow = "capture_window"
	toolRunCommand    = "run_command"
	toolListWindows   = "list_windows"
)

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// toolDefinitions is the schema advertised to the model on every turn.
func toolDefinitions() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name: toolListWindows,
			Description: "List the user's visible windows. Optionally filter by " +
				"process name (e.g. \"chrome\"). Use before capturing when unsure " +
				"which window the user means.",
			Parameters: objectSchema(nil, map[string]any{
				"process_name": stringProp("process name filter, case-insensitive substring"),
			}),
		},
		{
			Name: toolCaptureWindow,
			Description: "Capture a screenshot of one of the user's windows and " +
				"analyze it. Use when the user asks about something visible on " +
				"their screen. window_title may be a loose reference like " +
				"\"the second one\" or a URL for web targets.",
			Parameters: objectSchema(nil, map[string]any{
				"process_name": stringProp("process owning the window, e.g. \"chrome\""),
				"window_title": stringProp("window title or a loose reference to it"),
				"question":     stringProp("what to look for in the capture"),
			}),
		},
		{
			Name: toolRunCommand,
			Description: "Run a diagnostic shell command on the user's machine. " +
				"Read-only commands run immediately; anything with side effects " +
				"waits for the user's approval. Do not retry commands that were " +
				"blocked or are pending approval.",
			Parameters: objectSchema([]string{"command"}, map[string]any{
				"command": stringProp("the executable, e.g. \"docker\""),
				"args": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "arguments, one per element",
				},
			}),
		},
	}
}
