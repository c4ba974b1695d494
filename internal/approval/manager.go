package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"deskbot/internal/domain"
)

// Runner executes an approved command. The host package provides the
// real implementation; tests substitute a fake.
type Runner interface {
	RunCommand(ctx context.Context, command string, args []string) *domain.CommandResult
}

// Manager owns the set of commands waiting on a human. It is the only
// execution path for approval_required commands: Approve runs the
// command through the Runner and stores the result on the request.
//
// State machine: pending -> executing -> executed, pending -> denied.
// Blocked requests are terminal from creation and exist only so the
// user can see what was refused. Terminal requests stay visible until
// acknowledged.
type Manager struct {
	mu       sync.Mutex
	requests map[string]*domain.ActionRequest
	order    []string

	events chan *domain.ActionRequest
	runner Runner
	audit  domain.AuditLogger
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewManager(runner Runner, audit domain.AuditLogger, logger *slog.Logger) *Manager {
	return &Manager{
		requests: make(map[string]*domain.ActionRequest),
		events:   make(chan *domain.ActionRequest, 16),
		runner:   runner,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Events surfaces newly created requests. Consumers (chat surfaces)
// render them as approve/deny prompts. The channel is buffered; if no
// consumer keeps up the event is dropped with a warning, the request
// itself is still listable via Pending.
func (m *Manager) Events() <-chan *domain.ActionRequest {
	return m.events
}

// Create registers a request for the given command and decision.
// Blocked decisions produce a terminal record immediately; everything
// else starts pending.
func (m *Manager) Create(ctx context.Context, command string, args []string, decision domain.Decision) *domain.ActionRequest {
	req := &domain.ActionRequest{
		ID:        m.newID(),
		Command:   command,
		Args:      args,
		Decision:  decision,
		Status:    domain.ActionPending,
		CreatedAt: m.now(),
	}
	if decision.Blocked() {
		req.Status = domain.ActionBlocked
		req.ResolvedAt = req.CreatedAt
	}

	m.mu.Lock()
	m.requests[req.ID] = req
	m.order = append(m.order, req.ID)
	m.mu.Unlock()

	m.logAudit(ctx, "create", req, string(req.Status))

	select {
	case m.events <- req:
	default:
		m.logger.Warn("approval event dropped, no consumer", "id", req.ID)
	}
	return req
}

// Get returns the request with the given id.
func (m *Manager) Get(id string) (*domain.ActionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	return req, ok
}

// Pending lists non-terminal requests in creation order.
func (m *Manager) Pending() []*domain.ActionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ActionRequest
	for _, id := range m.order {
		if req := m.requests[id]; req != nil && !req.Terminal() {
			out = append(out, req)
		}
	}
	return out
}

// Approve moves a pending request through executing to executed,
// running the command synchronously. Approving a request that is
// already terminal is a logged no-op; an unknown id is an error.
func (m *Manager) Approve(ctx context.Context, id string) (*domain.ActionRequest, error) {
	m.mu.Lock()
	req, ok := m.requests[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("approval request %s not found", id)
	}
	if req.Status != domain.ActionPending {
		m.mu.Unlock()
		m.logger.Warn("approve ignored, request not pending", "id", id, "status", req.Status)
		return req, nil
	}
	req.Status = domain.ActionExecuting
	m.mu.Unlock()

	m.logAudit(ctx, "approve", req, "approved")

	result := m.runner.RunCommand(ctx, req.Command, req.Args)

	m.mu.Lock()
	req.Result = result
	req.Status = domain.ActionExecuted
	req.ResolvedAt = m.now()
	if !result.Success && result.Error != "" {
		req.Error = result.Error
	}
	m.mu.Unlock()

	outcome := "success"
	if !result.Success {
		outcome = fmt.Sprintf("failed (exit %d)", result.ExitCode)
	}
	m.logAudit(ctx, "execute", req, outcome)
	m.logger.Info("approved command executed",
		"id", id, "command", req.CommandLine(), "success", result.Success)
	return req, nil
}

// Deny marks a pending request denied without executing it. Same
// no-op/error semantics as Approve.
func (m *Manager) Deny(ctx context.Context, id string) (*domain.ActionRequest, error) {
	m.mu.Lock()
	req, ok := m.requests[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("approval request %s not found", id)
	}
	if req.Status != domain.ActionPending {
		m.mu.Unlock()
		m.logger.Warn("deny ignored, request not pending", "id", id, "status", req.Status)
		return req, nil
	}
	req.Status = domain.ActionDenied
	req.ResolvedAt = m.now()
	m.mu.Unlock()

	m.logAudit(ctx, "deny", req, "denied")
	return req, nil
}

// Acknowledge removes a terminal request. Non-terminal requests are
// left in place.
func (m *Manager) Acknowledge(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok || !req.Terminal() {
		return
	}
	delete(m.requests, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// DrainTerminal returns terminal requests in creation order and
// acknowledges them. The orchestrator calls this at the start of a turn
// to feed approval outcomes back into the model's context.
func (m *Manager) DrainTerminal() []*domain.ActionRequest {
	m.mu.Lock()
	var drained []*domain.ActionRequest
	var keep []string
	for _, id := range m.order {
		req := m.requests[id]
		if req == nil {
			continue
		}
		if req.Terminal() {
			drained = append(drained, req)
			delete(m.requests, id)
		} else {
			keep = append(keep, id)
		}
	}
	m.order = keep
	m.mu.Unlock()
	return drained
}

func (m *Manager) logAudit(ctx context.Context, action string, req *domain.ActionRequest, outcome string) {
	if m.audit == nil {
		return
	}
	err := m.audit.LogAudit(ctx, domain.AuditEntry{
		Action:    action,
		Command:   req.CommandLine(),
		Outcome:   outcome,
		Details:   req.Decision.Reason,
		RequestID: req.ID,
	})
	if err != nil {
		m.logger.Warn("audit write failed", "error", err)
	}
}
