package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ToolCall is one request from the model to invoke a local tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Key canonicalizes the call for deduplication: the same tool name with
// the same arguments collapses to one key even when the wire response
// repeated the call in different structural places. json.Marshal sorts
// map keys, so the key is order-insensitive.
func (tc ToolCall) Key() string {
	raw, err := json.Marshal(tc.Arguments)
	if err != nil {
		raw = []byte("{}")
	}
	return tc.Name + ":" + string(raw)
}

// ArgsString renders arguments compactly for logs and prompts.
func (tc ToolCall) ArgsString() string {
	if len(tc.Arguments) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tc.Arguments))
	for k := range tc.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, tc.Arguments[k]))
	}
	return strings.Join(parts, " ")
}

// StringArg extracts a string argument, tolerating absence.
func (tc ToolCall) StringArg(name string) string {
	v, ok := tc.Arguments[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// StringSliceArg extracts a []string argument from the []any shape that
// JSON decoding produces.
func (tc ToolCall) StringSliceArg(name string) []string {
	v, ok := tc.Arguments[name]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ToolDefinition is the schema advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}
