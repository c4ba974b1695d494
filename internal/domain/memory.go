package domain

import (
	"context"
	"time"
)

// HistoryStore persists conversations and their messages.
type HistoryStore interface {
	CreateConversation(ctx context.Context, conv Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, conv Conversation) error
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	AddMessage(ctx context.Context, convID string, msg MessageRecord) error
	GetMessages(ctx context.Context, convID string, limit int) ([]MessageRecord, error)

	Close() error
}

// AuditLogger records policy decisions and approval outcomes.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry AuditEntry) error
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MessageRecord struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ToolCalls      string    `json:"tool_calls,omitempty"`
	ToolCallID     string    `json:"tool_call_id,omitempty"`
	ToolName       string    `json:"tool_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditEntry is one row in the audit trail. Action is the event kind
// (classify, block, approve, deny, execute), Outcome the short result.
type AuditEntry struct {
	Action    string
	Command   string
	Outcome   string
	Details   string
	RequestID string
}
