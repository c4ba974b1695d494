package provider

import "deskbot/internal/domain"

// collectCalls walks a decoded JSON value and gathers every tool call
// it contains, wherever the wire format put it: a top-level
// functionCall object, a functionCalls/toolCalls array, or calls nested
// under candidates/content/parts. Calls are deduplicated by
// (name, canonical arguments) via seen, so the same call surfacing
// through several structural paths is gathered once. Nameless calls
// are ignored.
func collectCalls(node any, seen map[string]bool, out *[]domain.ToolCall) {
	switch v := node.(type) {
	case map[string]any:
		for _, key := range []string{"functionCall", "function_call", "toolCall", "tool_call"} {
			if obj, ok := v[key].(map[string]any); ok {
				addCall(obj, seen, out)
			}
		}
		// An object that itself looks like a call: {"name": ..., "args": ...}
		addCall(v, seen, out)
		for _, child := range v {
			collectCalls(child, seen, out)
		}
	case []any:
		for _, item := range v {
			collectCalls(item, seen, out)
		}
	}
}

func addCall(obj map[string]any, seen map[string]bool, out *[]domain.ToolCall) {
	name, _ := obj["name"].(string)
	if name == "" {
		return
	}
	var args map[string]any
	for _, key := range []string{"args", "arguments"} {
		if m, ok := obj[key].(map[string]any); ok {
			args = m
			break
		}
	}
	if args == nil {
		// name alone is not a call; functionResponse and schema
		// objects also carry names
		if _, hasArgs := obj["args"]; !hasArgs {
			if _, hasArguments := obj["arguments"]; !hasArguments {
				return
			}
		}
		args = map[string]any{}
	}

	call := domain.ToolCall{Name: name, Arguments: args}
	key := call.Key()
	if seen[key] {
		return
	}
	seen[key] = true
	*out = append(*out, call)
}
