package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deskbot/internal/approval"
	"deskbot/internal/domain"
	"deskbot/internal/metrics"
)

// Engine connects chat surfaces to the orchestrator: it consumes
// inbound messages from the bus, runs each as a turn, streams events
// back out, persists the conversation, and relays approval prompts to
// whichever surface the user talked from last.
type Engine struct {
	orch       *Orchestrator
	bus        domain.MessageBus
	sessions   *SessionManager
	approvals  *approval.Manager
	logger     *slog.Logger
	maxHistory int

	mu          sync.Mutex
	lastChannel string
	lastChatID  string
}

type EngineConfig struct {
	Orchestrator *Orchestrator
	Bus          domain.MessageBus
	Sessions     *SessionManager
	Approvals    *approval.Manager
	Logger       *slog.Logger
	MaxHistory   int
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	return &Engine{
		orch:       cfg.Orchestrator,
		bus:        cfg.Bus,
		sessions:   cfg.Sessions,
		approvals:  cfg.Approvals,
		logger:     cfg.Logger,
		maxHistory: cfg.MaxHistory,
	}
}

// Run blocks until ctx is cancelled, processing inbound messages. Each
// turn runs on its own goroutine; tool execution inside a turn stays
// sequential.
func (e *Engine) Run(ctx context.Context) {
	go e.relayApprovalEvents(ctx)

	inbound := e.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			go e.handleMessage(ctx, msg)
		}
	}
}

// relayApprovalEvents pushes newly created pending or blocked requests
// to the surface the user last spoke from.
func (e *Engine) relayApprovalEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.approvals.Events():
			channel, chatID := e.lastSurface()
			if channel == "" {
				continue
			}
			content := req.Decision.Prompt
			if req.Status == domain.ActionBlocked {
				content = fmt.Sprintf("Blocked by policy: `%s` (%s)", req.CommandLine(), req.Decision.Reason)
			} else if content == "" {
				content = fmt.Sprintf("Approval needed for `%s` (request %s). Reply /approve %s or /deny %s.",
					req.CommandLine(), req.ID, req.ID, req.ID)
			} else {
				content = fmt.Sprintf("%s\nReply /approve %s or /deny %s.", content, req.ID, req.ID)
			}
			e.bus.SendOutbound(domain.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: content,
				Format:  "markdown",
				Pending: req,
			})
		}
	}
}

func (e *Engine) lastSurface() (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastChannel, e.lastChatID
}

func (e *Engine) handleMessage(ctx context.Context, msg domain.InboundMessage) {
	e.mu.Lock()
	e.lastChannel, e.lastChatID = msg.Channel, msg.ChatID
	e.mu.Unlock()

	reply := func(content string) {
		e.bus.SendOutbound(domain.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: content,
			Format:  "markdown",
		})
	}

	if cmd := ParseCommand(msg.Content); cmd != nil {
		if res := e.HandleCommand(ctx, cmd, msg); res.Handled {
			reply(res.Response)
			return
		}
	}

	sessionKey := msg.Channel + ":" + msg.ChatID
	convID, err := e.sessions.GetOrCreateConversation(ctx, sessionKey)
	if err != nil {
		e.logger.Error("session lookup failed", "error", err)
		reply("Sorry, I could not load this conversation.")
		return
	}

	history, err := e.sessions.GetHistory(ctx, convID, e.maxHistory)
	if err != nil {
		e.logger.Error("history load failed", "error", err)
		history = nil
	}

	events := make(chan domain.StreamEvent, 32)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range events {
			evCopy := ev
			e.bus.SendOutbound(domain.OutboundMessage{
				Channel:     msg.Channel,
				ChatID:      msg.ChatID,
				StreamEvent: &evCopy,
			})
		}
	}()

	final, appended, err := e.orch.SubmitTurn(ctx, history, msg.Content, msg.Images, events)
	<-forwarded

	for _, m := range appended {
		if saveErr := e.sessions.SaveMessage(ctx, convID, m); saveErr != nil {
			e.logger.Warn("message persist failed", "error", saveErr)
		}
	}
	e.sessions.UpdateTitle(ctx, convID, msg.Content)

	if err != nil {
		e.logger.Error("turn failed", "error", err)
		reply(fmt.Sprintf("Sorry, that didn't work: %v", err))
		return
	}
	if final != "" {
		reply(final)
	}
	metrics.PendingApprovals.Set(int64(len(e.approvals.Pending())))
}

var processStart = time.Now()
