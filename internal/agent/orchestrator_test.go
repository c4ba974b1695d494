package agent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"deskbot/internal/analysis"
	"deskbot/internal/approval"
	"deskbot/internal/domain"
	"deskbot/internal/policy"
	"deskbot/internal/resolve"
)

// fakeModel replays one scripted event sequence per ChatStream call.
type fakeModel struct {
	scripts  [][]domain.StreamEvent
	calls    int
	requests []domain.ChatRequest
}

func (f *fakeModel) Name() string                    { return "fake" }
func (f *fakeModel) Healthy(ctx context.Context) error { return nil }

func (f *fakeModel) ChatStream(ctx context.Context, req domain.ChatRequest, out chan<- domain.StreamEvent) error {
	defer close(out)
	f.requests = append(f.requests, req)
	idx := f.calls
	f.calls++
	if idx >= len(f.scripts) {
		out <- domain.StreamEvent{Type: domain.EventDone}
		return nil
	}
	for _, ev := range f.scripts[idx] {
		out <- ev
	}
	return nil
}

func textEv(s string) domain.StreamEvent {
	return domain.StreamEvent{Type: domain.EventText, Text: s}
}

func callEv(id, name string, args map[string]any) domain.StreamEvent {
	return domain.StreamEvent{Type: domain.EventToolCall, Call: &domain.ToolCall{ID: id, Name: name, Arguments: args}}
}

func doneEv() domain.StreamEvent {
	return domain.StreamEvent{Type: domain.EventDone}
}

type fakeHost struct {
	commands [][]string
	windows  []domain.WindowInfo
	captures int
}

func (f *fakeHost) ListWindows(ctx context.Context, processName string) ([]domain.WindowInfo, error) {
	return f.windows, nil
}

func (f *fakeHost) CaptureWindow(ctx context.Context, processName, windowTitle string) (*domain.Capture, error) {
	f.captures++
	return &domain.Capture{
		WindowTitle: windowTitle,
		ProcessName: processName,
		ImageBase64: "aW1n",
		Fingerprint: "deadbeefdeadbeefdeadbeef",
		OCRText:     "hello from the window",
		TakenAt:     time.Now(),
	}, nil
}

func (f *fakeHost) RunCommand(ctx context.Context, command string, args []string) *domain.CommandResult {
	f.commands = append(f.commands, append([]string{command}, args...))
	return &domain.CommandResult{Success: true, Stdout: "ran " + command, ExitCode: 0}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testRig struct {
	orch      *Orchestrator
	model     *fakeModel
	host      *fakeHost
	approvals *approval.Manager
}

func newRig(scripts [][]domain.StreamEvent) *testRig {
	model := &fakeModel{scripts: scripts}
	host := &fakeHost{}
	logger := quietLogger()
	approvals := approval.NewManager(host, nil, logger)
	orch := New(Config{
		Client:    model,
		Host:      host,
		Policy:    policy.NewClassifier(policy.DefaultRules()),
		Approvals: approvals,
		Windows:   resolve.NewResolver(0),
		Analyses:  analysis.NewCache(0, 0),
		Logger:    logger,
	})
	return &testRig{orch: orch, model: model, host: host, approvals: approvals}
}

func (r *testRig) turn(t *testing.T, history []domain.Message, text string) (string, []domain.Message, []domain.StreamEvent) {
	t.Helper()
	out := make(chan domain.StreamEvent, 64)
	var events []domain.StreamEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range out {
			events = append(events, ev)
		}
	}()
	final, appended, err := r.orch.SubmitTurn(context.Background(), history, text, nil, out)
	<-done
	if err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}
	return final, appended, events
}

func TestTurnPlainAnswer(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{textEv("hello "), textEv("there"), doneEv()},
	})
	final, appended, events := rig.turn(t, nil, "hi")
	if final != "hello there" {
		t.Fatalf("final = %q", final)
	}
	if len(rig.host.commands) != 0 {
		t.Fatal("no tool should have run")
	}
	last := appended[len(appended)-1]
	if last.Role != domain.RoleAssistant || last.Content != "hello there" {
		t.Fatalf("last appended = %+v", last)
	}
	if events[len(events)-1].Type != domain.EventDone {
		t.Fatal("stream must end with done")
	}
}

func TestTurnToolCallThenAnswer(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{callEv("c1", toolRunCommand, map[string]any{"command": "git", "args": []any{"status"}}), doneEv()},
		{textEv("all clean"), doneEv()},
	})
	final, appended, _ := rig.turn(t, nil, "is my repo clean?")
	if final != "all clean" {
		t.Fatalf("final = %q", final)
	}
	if len(rig.host.commands) != 1 {
		t.Fatalf("commands run = %v", rig.host.commands)
	}
	if got := strings.Join(rig.host.commands[0], " "); got != "git status" {
		t.Fatalf("ran %q", got)
	}

	var sawToolMsg bool
	for _, m := range appended {
		if m.Role == domain.RoleTool && m.ToolName == toolRunCommand {
			sawToolMsg = true
			if !strings.Contains(m.Content, "succeeded") {
				t.Fatalf("tool result = %q", m.Content)
			}
		}
	}
	if !sawToolMsg {
		t.Fatal("tool result message missing from turn")
	}
}

func TestTurnDuplicateCallsCollapse(t *testing.T) {
	call := map[string]any{"command": "git", "args": []any{"status"}}
	rig := newRig([][]domain.StreamEvent{
		{callEv("a", toolRunCommand, call), callEv("b", toolRunCommand, call), doneEv()},
		{textEv("done"), doneEv()},
	})
	rig.turn(t, nil, "check the repo")
	if len(rig.host.commands) != 1 {
		t.Fatalf("duplicate call executed %d times", len(rig.host.commands))
	}
}

func TestTurnSequentialIssueOrder(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{
			callEv("a", toolRunCommand, map[string]any{"command": "git", "args": []any{"status"}}),
			callEv("b", toolRunCommand, map[string]any{"command": "uptime"}),
			doneEv(),
		},
		{textEv("done"), doneEv()},
	})
	rig.turn(t, nil, "check things")
	if len(rig.host.commands) != 2 {
		t.Fatalf("commands = %v", rig.host.commands)
	}
	if rig.host.commands[0][0] != "git" || rig.host.commands[1][0] != "uptime" {
		t.Fatalf("execution out of issue order: %v", rig.host.commands)
	}
}

func TestTurnBlockedCommandNeverRuns(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{callEv("c1", toolRunCommand, map[string]any{"command": "docker", "args": []any{"rm", "web"}}), doneEv()},
		{textEv("that command is not allowed"), doneEv()},
	})
	_, appended, _ := rig.turn(t, nil, "remove the web container")
	if len(rig.host.commands) != 0 {
		t.Fatalf("blocked command reached the host: %v", rig.host.commands)
	}
	var sawBlock bool
	for _, m := range appended {
		if m.Role == domain.RoleTool && strings.Contains(m.Content, "blocked by policy") {
			sawBlock = true
		}
	}
	if !sawBlock {
		t.Fatal("blocked result missing")
	}
}

func TestTurnApprovalPausesExecution(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{callEv("c1", toolRunCommand, map[string]any{"command": "git", "args": []any{"push"}}), doneEv()},
		{textEv("waiting for your approval"), doneEv()},
		{textEv("the push succeeded"), doneEv()},
	})
	_, appended, _ := rig.turn(t, nil, "push my branch")
	if len(rig.host.commands) != 0 {
		t.Fatal("critical command executed without approval")
	}
	pending := rig.approvals.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	var sawPending bool
	for _, m := range appended {
		if m.Role == domain.RoleTool && strings.Contains(m.Content, "pending the user's approval") {
			sawPending = true
		}
	}
	if !sawPending {
		t.Fatal("pending result missing")
	}

	// Approval executes through the manager, and the next turn picks
	// up the outcome.
	if _, err := rig.approvals.Approve(context.Background(), pending[0].ID); err != nil {
		t.Fatal(err)
	}
	if len(rig.host.commands) != 1 {
		t.Fatal("approval did not execute the command")
	}

	_, appended2, _ := rig.turn(t, nil, "so, did it work?")
	if !strings.Contains(appended2[0].Content, "[approval update]") {
		t.Fatalf("second turn did not drain the approval outcome: %q", appended2[0].Content)
	}
	if len(rig.approvals.DrainTerminal()) != 0 {
		t.Fatal("outcome must be acknowledged after draining")
	}
}

func TestTurnSilenceRetriesOnce(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{callEv("c1", toolRunCommand, map[string]any{"command": "git", "args": []any{"status"}}), doneEv()},
		{doneEv()}, // model goes silent after the tool result
		{textEv("summary of the status"), doneEv()},
	})
	final, appended, _ := rig.turn(t, nil, "repo status?")
	if final != "summary of the status" {
		t.Fatalf("final = %q", final)
	}
	if rig.model.calls != 3 {
		t.Fatalf("model calls = %d, want 3", rig.model.calls)
	}
	var nudges int
	for _, m := range appended {
		if m.Role == domain.RoleUser && strings.Contains(m.Content, "Summarize the result above") {
			nudges++
		}
	}
	if nudges != 1 {
		t.Fatalf("synthetic follow-ups = %d, want exactly 1", nudges)
	}
}

func TestTurnSilenceRetryGivesUpQuietly(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{callEv("c1", toolRunCommand, map[string]any{"command": "uptime"}), doneEv()},
		{doneEv()},
		{doneEv()}, // still silent after the one retry
	})
	final, _, _ := rig.turn(t, nil, "how long has this been up?")
	if final != "" {
		t.Fatalf("final = %q, want empty", final)
	}
	if rig.model.calls != 3 {
		t.Fatalf("model calls = %d, want 3 (no second retry)", rig.model.calls)
	}
}

func TestTurnStatusQueryInjectsDiagnostics(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{textEv("let me check"), doneEv()},
		{textEv("both services are up"), doneEv()},
	})
	final, _, _ := rig.turn(t, nil, "are my docker containers running?")
	if final != "both services are up" {
		t.Fatalf("final = %q", final)
	}
	if len(rig.host.commands) != 2 {
		t.Fatalf("injected diagnostics = %v", rig.host.commands)
	}
	if got := strings.Join(rig.host.commands[0], " "); got != "docker ps" {
		t.Fatalf("first injected command = %q", got)
	}
	if got := strings.Join(rig.host.commands[1], " "); got != "docker compose ps" {
		t.Fatalf("second injected command = %q", got)
	}
}

func TestTurnInjectionIsIdempotent(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{callEv("c1", toolRunCommand, map[string]any{"command": "docker", "args": []any{"ps"}}), doneEv()},
		{textEv("all good"), doneEv()},
	})
	rig.turn(t, nil, "is my docker stack running?")
	var dockerPs int
	for _, c := range rig.host.commands {
		if strings.Join(c, " ") == "docker ps" {
			dockerPs++
		}
	}
	if dockerPs != 1 {
		t.Fatalf("docker ps ran %d times, want 1", dockerPs)
	}
}

func TestTurnMalformedCallDropped(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{
			domain.StreamEvent{Type: domain.EventToolCall, Call: &domain.ToolCall{Name: ""}},
			textEv("nothing to do"),
			doneEv(),
		},
	})
	final, _, _ := rig.turn(t, nil, "hi")
	if final != "nothing to do" {
		t.Fatalf("final = %q", final)
	}
	if len(rig.host.commands) != 0 {
		t.Fatal("malformed call must not execute")
	}
}

func TestTurnRedundantCaptureSuppressed(t *testing.T) {
	captureArgs := map[string]any{"process_name": "chrome", "window_title": "Gmail - Inbox"}
	rig := newRig([][]domain.StreamEvent{
		{callEv("c1", toolCaptureWindow, captureArgs), doneEv()},
		{textEv("your inbox has 3 unread mails"), doneEv()},
		{callEv("c2", toolCaptureWindow, captureArgs), doneEv()},
		{textEv("as I said, 3 unread mails"), doneEv()},
	})

	rig.turn(t, nil, "what's in my gmail window?")
	if rig.host.captures != 1 {
		t.Fatalf("captures after first turn = %d", rig.host.captures)
	}

	// A bare confirmation must not trigger a fresh capture of the
	// same target.
	_, appended, _ := rig.turn(t, nil, "yes")
	if rig.host.captures != 1 {
		t.Fatalf("captures after confirmation turn = %d, want 1", rig.host.captures)
	}
	var sawSkip bool
	for _, m := range appended {
		if m.Role == domain.RoleTool && strings.Contains(m.Content, "skipped") {
			sawSkip = true
		}
	}
	if !sawSkip {
		t.Fatal("suppression must produce a synthetic skipped result")
	}
}

func TestTurnCaptureFailureSurfacedNotRetried(t *testing.T) {
	rig := newRig([][]domain.StreamEvent{
		{callEv("c1", toolListWindows, map[string]any{"process_name": "nope"}), doneEv()},
		{textEv("no such window"), doneEv()},
	})
	rig.host.windows = nil
	_, appended, _ := rig.turn(t, nil, "look at the nope window")
	var sawEmpty bool
	for _, m := range appended {
		if m.Role == domain.RoleTool && strings.Contains(m.Content, "no visible windows") {
			sawEmpty = true
		}
	}
	if !sawEmpty {
		t.Fatal("empty enumeration must surface as a tool result")
	}
}
