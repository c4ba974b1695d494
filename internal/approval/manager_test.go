package approval

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"deskbot/internal/domain"
)

type fakeRunner struct {
	calls  [][]string
	result *domain.CommandResult
}

func (f *fakeRunner) RunCommand(ctx context.Context, command string, args []string) *domain.CommandResult {
	f.calls = append(f.calls, append([]string{command}, args...))
	if f.result != nil {
		return f.result
	}
	return &domain.CommandResult{Success: true, Stdout: "ok", ExitCode: 0}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(r *fakeRunner) *Manager {
	return NewManager(r, nil, testLogger())
}

func askDecision() domain.Decision {
	return domain.Decision{
		Level:    domain.ApprovalRequired,
		Category: domain.CategoryCritical,
		Reason:   "has side effects",
	}
}

func TestApproveExecutesCommand(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)
	ctx := context.Background()

	req := m.Create(ctx, "git", []string{"push"}, askDecision())
	if req.Status != domain.ActionPending {
		t.Fatalf("new request status = %s, want pending", req.Status)
	}

	got, err := m.Approve(ctx, req.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got.Status != domain.ActionExecuted {
		t.Fatalf("status after approve = %s, want executed", got.Status)
	}
	if got.Result == nil || !got.Result.Success {
		t.Fatal("expected a successful result on the request")
	}
	if len(runner.calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.calls))
	}
}

func TestApproveTwiceIsNoOp(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)
	ctx := context.Background()

	req := m.Create(ctx, "git", []string{"push"}, askDecision())
	if _, err := m.Approve(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Approve(ctx, req.ID); err != nil {
		t.Fatalf("second approve must not error: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("runner called %d times after double approve, want 1", len(runner.calls))
	}
}

func TestApproveUnknownID(t *testing.T) {
	m := newTestManager(&fakeRunner{})
	if _, err := m.Approve(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestDenyNeverExecutes(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)
	ctx := context.Background()

	req := m.Create(ctx, "rm", []string{"file"}, askDecision())
	got, err := m.Deny(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ActionDenied {
		t.Fatalf("status = %s, want denied", got.Status)
	}
	if len(runner.calls) != 0 {
		t.Fatal("denied command must not reach the runner")
	}

	// Approving after denial is a no-op too.
	if _, err := m.Approve(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("approve after deny must not execute")
	}
}

func TestBlockedIsTerminalAtCreation(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)
	ctx := context.Background()

	req := m.Create(ctx, "docker", []string{"rm", "web"}, domain.Decision{
		Level:    domain.ApprovalBlocked,
		Category: domain.CategoryForbidden,
		Reason:   "removes containers",
	})
	if req.Status != domain.ActionBlocked {
		t.Fatalf("status = %s, want blocked", req.Status)
	}
	if _, err := m.Approve(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("blocked command must never execute")
	}
}

func TestPendingListsOnlyNonTerminal(t *testing.T) {
	m := newTestManager(&fakeRunner{})
	ctx := context.Background()

	a := m.Create(ctx, "git", []string{"push"}, askDecision())
	b := m.Create(ctx, "rm", []string{"x"}, askDecision())
	m.Deny(ctx, b.ID)

	pending := m.Pending()
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("pending = %v, want just %s", pending, a.ID)
	}
}

func TestDrainTerminalRemovesAndReturns(t *testing.T) {
	m := newTestManager(&fakeRunner{})
	ctx := context.Background()

	a := m.Create(ctx, "git", []string{"push"}, askDecision())
	b := m.Create(ctx, "rm", []string{"x"}, askDecision())
	m.Approve(ctx, a.ID)
	m.Deny(ctx, b.ID)
	c := m.Create(ctx, "npm", []string{"install"}, askDecision())

	drained := m.DrainTerminal()
	if len(drained) != 2 {
		t.Fatalf("drained %d, want 2", len(drained))
	}
	if drained[0].ID != a.ID || drained[1].ID != b.ID {
		t.Fatal("drained requests out of creation order")
	}
	if _, ok := m.Get(a.ID); ok {
		t.Fatal("drained request still present")
	}
	if _, ok := m.Get(c.ID); !ok {
		t.Fatal("pending request must survive drain")
	}
	if len(m.DrainTerminal()) != 0 {
		t.Fatal("second drain must be empty")
	}
}

func TestEventsCarryNewRequests(t *testing.T) {
	m := newTestManager(&fakeRunner{})
	req := m.Create(context.Background(), "git", []string{"push"}, askDecision())

	select {
	case got := <-m.Events():
		if got.ID != req.ID {
			t.Fatalf("event id = %s, want %s", got.ID, req.ID)
		}
	default:
		t.Fatal("expected an event for the new request")
	}
}
