package domain

import "context"

// StreamEventType tags one event on a model response stream.
type StreamEventType string

const (
	// EventText carries an incremental fragment of assistant prose.
	EventText StreamEventType = "text"
	// EventToolCall carries one fully-parsed, deduplicated tool call.
	EventToolCall StreamEventType = "tool_call"
	// EventToolStart and EventToolEnd bracket local tool execution so
	// interactive surfaces can show progress.
	EventToolStart StreamEventType = "tool_start"
	EventToolEnd   StreamEventType = "tool_end"
	// EventDone terminates the stream.
	EventDone StreamEventType = "done"
	// EventError terminates the stream with an upstream failure.
	EventError StreamEventType = "error"
)

// StreamEvent is the tagged union flowing from a model client (and
// through the orchestrator) to whoever renders the turn. Exactly the
// fields implied by Type are set.
type StreamEvent struct {
	Type StreamEventType
	Text string
	Call *ToolCall
	// ToolResult is set on EventToolEnd.
	ToolResult string
	Err        string
}

// ChatRequest is one model invocation: the conversation so far plus the
// tool schema the model may call.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// ModelClient is a streaming reasoning-service client. ChatStream
// writes tagged events to out and closes it when the stream ends;
// implementations flatten whatever nested response shapes the wire
// format uses into flat EventText/EventToolCall events, deduplicated
// by (name, canonical arguments).
type ModelClient interface {
	Name() string
	Healthy(ctx context.Context) error
	ChatStream(ctx context.Context, req ChatRequest, out chan<- StreamEvent) error
}
