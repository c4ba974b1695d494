package domain

import "time"

// Message roles follow the common chat-completion convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a conversation history.
type Message struct {
	Role    string
	Content string
	// Images are base64 PNG attachments (captures shown to the model).
	Images []string
	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall
	// ToolCallID and ToolName are set on tool-result messages.
	ToolCallID string
	ToolName   string
	Timestamp  time.Time
}
