package memory

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"deskbot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "deskbot.db"), slog.Default())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestConversationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := domain.Conversation{ID: "c1", Title: "docker help"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	got, err := store.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got == nil || got.Title != "docker help" {
		t.Fatalf("got %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
}

func TestGetConversationMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetConversation(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing conversation, got %+v", got)
	}
}

func TestMessagesChronologicalOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "c1"}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	for i, content := range []string{"first", "second", "third"} {
		msg := domain.MessageRecord{
			Role:      domain.RoleUser,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AddMessage(ctx, "c1", msg); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	msgs, err := store.GetMessages(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Fatalf("wrong order: %q, %q, %q", msgs[0].Content, msgs[1].Content, msgs[2].Content)
	}
}

func TestGetMessagesLimitKeepsLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "c1"}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		msg := domain.MessageRecord{
			Role:      domain.RoleUser,
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AddMessage(ctx, "c1", msg); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	msgs, err := store.GetMessages(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "d" || msgs[1].Content != "e" {
		t.Fatalf("expected last two messages, got %+v", msgs)
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "c1"}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := store.AddMessage(ctx, "c1", domain.MessageRecord{Role: domain.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := store.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	if got, _ := store.GetConversation(ctx, "c1"); got != nil {
		t.Fatalf("conversation still present: %+v", got)
	}
	msgs, err := store.GetMessages(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages still present: %+v", msgs)
	}
}

func TestToolFieldsPersist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateConversation(ctx, domain.Conversation{ID: "c1"}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	msg := domain.MessageRecord{
		Role:       domain.RoleTool,
		Content:    "exit 0",
		ToolCallID: "tc-1",
		ToolName:   "run_command",
		ToolCalls:  `[{"name":"run_command"}]`,
	}
	if err := store.AddMessage(ctx, "c1", msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	msgs, err := store.GetMessages(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	got := msgs[0]
	if got.ToolCallID != "tc-1" || got.ToolName != "run_command" || got.ToolCalls == "" {
		t.Fatalf("tool fields lost: %+v", got)
	}
}

func TestLogAudit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := domain.AuditEntry{
		Action:    "approve",
		Command:   "docker restart web",
		Outcome:   "executed",
		RequestID: "req-1",
	}
	if err := store.LogAudit(ctx, entry); err != nil {
		t.Fatalf("LogAudit: %v", err)
	}

	var action, outcome string
	err := store.db.QueryRowContext(ctx,
		`SELECT action, outcome FROM audit_log WHERE request_id = ?`, "req-1",
	).Scan(&action, &outcome)
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if action != "approve" || outcome != "executed" {
		t.Fatalf("action=%q outcome=%q", action, outcome)
	}
}
