package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"deskbot/internal/domain"
)

// SessionManager maps chat-surface session keys onto stored
// conversations and converts between wire messages and records.
type SessionManager struct {
	store  domain.HistoryStore
	logger *slog.Logger
	mu     sync.Mutex
}

func NewSessionManager(store domain.HistoryStore, logger *slog.Logger) *SessionManager {
	return &SessionManager{store: store, logger: logger}
}

func (sm *SessionManager) GetOrCreateConversation(ctx context.Context, sessionKey string) (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	conv, err := sm.store.GetConversation(ctx, sessionKey)
	if err != nil {
		return "", err
	}
	if conv != nil {
		return conv.ID, nil
	}

	newConv := domain.Conversation{ID: sessionKey, Title: "New conversation"}
	if err := sm.store.CreateConversation(ctx, newConv); err != nil {
		return "", err
	}
	sm.logger.Info("created new conversation", "session", sessionKey)
	return sessionKey, nil
}

func (sm *SessionManager) GetHistory(ctx context.Context, convID string, limit int) ([]domain.Message, error) {
	records, err := sm.store.GetMessages(ctx, convID, limit)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(records))
	for _, r := range records {
		msg := domain.Message{
			Role:       r.Role,
			Content:    r.Content,
			ToolCallID: r.ToolCallID,
			ToolName:   r.ToolName,
		}
		if r.ToolCalls != "" {
			var toolCalls []domain.ToolCall
			if err := json.Unmarshal([]byte(r.ToolCalls), &toolCalls); err == nil {
				msg.ToolCalls = toolCalls
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (sm *SessionManager) SaveMessage(ctx context.Context, convID string, msg domain.Message) error {
	record := domain.MessageRecord{
		ConversationID: convID,
		Role:           msg.Role,
		Content:        msg.Content,
		ToolCallID:     msg.ToolCallID,
		ToolName:       msg.ToolName,
	}
	if len(msg.ToolCalls) > 0 {
		if data, err := json.Marshal(msg.ToolCalls); err == nil {
			record.ToolCalls = string(data)
		}
	}
	return sm.store.AddMessage(ctx, convID, record)
}

// UpdateTitle sets the conversation title from the first user message,
// once.
func (sm *SessionManager) UpdateTitle(ctx context.Context, convID, firstUserMsg string) {
	conv, err := sm.store.GetConversation(ctx, convID)
	if err != nil || conv == nil {
		return
	}
	if conv.Title != "" && conv.Title != "New conversation" {
		return
	}
	conv.Title = generateTitle(firstUserMsg)
	if err := sm.store.UpdateConversation(ctx, *conv); err != nil {
		sm.logger.Warn("failed to update conversation title", "convID", convID, "err", err)
	}
}

func generateTitle(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "New conversation"
	}
	if idx := strings.IndexAny(msg, "\n\r"); idx > 0 {
		msg = msg[:idx]
	}
	if len(msg) > 60 {
		cut := strings.LastIndex(msg[:60], " ")
		if cut < 20 {
			cut = 60
		}
		msg = msg[:cut] + "..."
	}
	return msg
}

// ClearSession deletes a conversation and its messages.
func (sm *SessionManager) ClearSession(sessionKey string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.store.DeleteConversation(context.Background(), sessionKey); err != nil {
		sm.logger.Warn("failed to clear session", "session", sessionKey, "err", err)
	} else {
		sm.logger.Info("session cleared", "session", sessionKey)
	}
}
