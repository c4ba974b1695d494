package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"deskbot/internal/analysis"
	"deskbot/internal/approval"
	"deskbot/internal/domain"
	"deskbot/internal/intent"
	"deskbot/internal/metrics"
	"deskbot/internal/policy"
	"deskbot/internal/resolve"
)

const (
	defaultMaxIterations = 10
	// recentCaptureWindow bounds redundancy suppression: a capture
	// older than this no longer counts as "already in context".
	recentCaptureWindow = 90 * time.Second
	ocrExcerptLimit     = 2000
	outputExcerptLimit  = 8000
)

// Orchestrator runs one conversational turn end to end: it submits the
// history to the model, consumes the tagged event stream, executes tool
// calls strictly sequentially in issue order, gates every command
// through the policy classifier, and loops until the model produces a
// final text answer.
type Orchestrator struct {
	client    domain.ModelClient
	host      domain.Host
	analyzer  domain.Analyzer
	policy    *policy.Classifier
	approvals *approval.Manager
	windows   *resolve.Resolver
	analyses  *analysis.Cache
	limiter   *RateLimiter
	logger    *slog.Logger

	maxIterations int
	systemPrompt  string

	mu     sync.Mutex
	recent []recentCapture
}

type recentCapture struct {
	processName string
	windowTitle string
	takenAt     time.Time
}

type Config struct {
	Client        domain.ModelClient
	Host          domain.Host
	Analyzer      domain.Analyzer
	Policy        *policy.Classifier
	Approvals     *approval.Manager
	Windows       *resolve.Resolver
	Analyses      *analysis.Cache
	Limiter       *RateLimiter
	Logger        *slog.Logger
	MaxIterations int
	SystemPrompt  string
}

func New(cfg Config) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Orchestrator{
		client:        cfg.Client,
		host:          cfg.Host,
		analyzer:      cfg.Analyzer,
		policy:        cfg.Policy,
		approvals:     cfg.Approvals,
		windows:       cfg.Windows,
		analyses:      cfg.Analyses,
		limiter:       cfg.Limiter,
		logger:        cfg.Logger,
		maxIterations: cfg.MaxIterations,
		systemPrompt:  cfg.SystemPrompt,
	}
}

// SubmitTurn processes one user turn. Stream events are forwarded to
// out, which is closed before return. It returns the final assistant
// text plus every message appended during the turn (user message, tool
// traffic, final answer) so the caller can persist them.
func (o *Orchestrator) SubmitTurn(ctx context.Context, history []domain.Message, userText string, images []string, out chan<- domain.StreamEvent) (string, []domain.Message, error) {
	defer close(out)
	metrics.TurnsTotal.Inc()

	msgs := make([]domain.Message, 0, len(history)+8)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: o.systemPrompt})
	msgs = append(msgs, history...)

	var appended []domain.Message
	add := func(m domain.Message) {
		m.Timestamp = time.Now()
		msgs = append(msgs, m)
		appended = append(appended, m)
	}

	// Approval outcomes from earlier turns enter the context first so
	// the model can report on them.
	for _, req := range o.approvals.DrainTerminal() {
		add(domain.Message{Role: domain.RoleUser, Content: approvalUpdate(req)})
	}

	turnIntent := intent.Classify(userText)
	add(domain.Message{Role: domain.RoleUser, Content: userText, Images: images})

	executedTool := false
	retriedSilence := false

	for iter := 0; iter < o.maxIterations; iter++ {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return "", appended, err
			}
		}

		text, calls, err := o.streamOnce(ctx, msgs, out)
		if err != nil {
			return "", appended, err
		}

		// Fallback for models that wrote the call into their prose.
		if len(calls) == 0 {
			calls = dedupCalls(extractToolCallsFromText(text))
		}

		if iter == 0 && turnIntent == intent.StatusQuery {
			calls = o.injectDiagnostics(calls)
		}

		if len(calls) == 0 {
			response := strings.TrimSpace(text)
			if response == "" && executedTool && !retriedSilence {
				// One synthetic follow-up on upstream silence, never more.
				retriedSilence = true
				o.logger.Warn("model went silent after tool results, retrying once")
				add(domain.Message{Role: domain.RoleUser, Content: "Summarize the result above for the user."})
				continue
			}
			add(domain.Message{Role: domain.RoleAssistant, Content: response})
			emit(ctx, out, domain.StreamEvent{Type: domain.EventDone})
			return response, appended, nil
		}

		add(domain.Message{Role: domain.RoleAssistant, Content: text, ToolCalls: calls})

		// Strictly sequential, in issue order.
		for i := range calls {
			call := calls[i]
			emit(ctx, out, domain.StreamEvent{Type: domain.EventToolStart, Call: &call})

			start := time.Now()
			result := o.executeCall(ctx, call, turnIntent)
			metrics.ToolExecutions.Inc()
			metrics.ToolLatency.Observe(time.Since(start).Seconds())

			emit(ctx, out, domain.StreamEvent{Type: domain.EventToolEnd, Call: &call, ToolResult: result})
			add(domain.Message{
				Role:       domain.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
			executedTool = true

			if ctx.Err() != nil {
				// Consumer gone; discard the rest of the turn.
				return "", appended, ctx.Err()
			}
		}
	}

	err := fmt.Errorf("turn did not converge after %d iterations", o.maxIterations)
	emit(ctx, out, domain.StreamEvent{Type: domain.EventError, Err: err.Error()})
	return "", appended, err
}

// streamOnce performs one model round trip, forwarding text fragments
// to out and gathering deduplicated tool calls.
func (o *Orchestrator) streamOnce(ctx context.Context, msgs []domain.Message, out chan<- domain.StreamEvent) (string, []domain.ToolCall, error) {
	metrics.ModelRequests.Inc()
	start := time.Now()

	events := make(chan domain.StreamEvent, 32)
	errCh := make(chan error, 1)
	go func() {
		errCh <- o.client.ChatStream(ctx, domain.ChatRequest{
			Messages: msgs,
			Tools:    toolDefinitions(),
		}, events)
	}()

	var text strings.Builder
	var calls []domain.ToolCall
	seen := make(map[string]bool)
	var streamErr string

	for ev := range events {
		switch ev.Type {
		case domain.EventText:
			text.WriteString(ev.Text)
			emit(ctx, out, ev)
		case domain.EventToolCall:
			if ev.Call == nil || ev.Call.Name == "" {
				o.logger.Warn("dropping malformed tool call from stream")
				continue
			}
			if key := ev.Call.Key(); !seen[key] {
				seen[key] = true
				calls = append(calls, *ev.Call)
			}
		case domain.EventError:
			streamErr = ev.Err
		}
	}

	err := <-errCh
	metrics.ModelLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", nil, fmt.Errorf("model stream: %w", err)
	}
	if streamErr != "" {
		return "", nil, fmt.Errorf("model stream: %s", streamErr)
	}
	return text.String(), calls, nil
}

// injectDiagnostics appends read-only docker diagnostics to a status
// question when the model did not already request them. Idempotent:
// calls the model issued are never duplicated.
func (o *Orchestrator) injectDiagnostics(calls []domain.ToolCall) []domain.ToolCall {
	seen := make(map[string]bool, len(calls))
	for _, c := range calls {
		seen[c.Key()] = true
	}
	for _, extra := range []domain.ToolCall{
		{ID: "injected_docker_ps", Name: toolRunCommand, Arguments: map[string]any{
			"command": "docker", "args": []any{"ps"},
		}},
		{ID: "injected_compose_ps", Name: toolRunCommand, Arguments: map[string]any{
			"command": "docker", "args": []any{"compose", "ps"},
		}},
	} {
		if key := extra.Key(); !seen[key] {
			seen[key] = true
			calls = append(calls, extra)
			o.logger.Debug("injected diagnostic for status question", "args", extra.ArgsString())
		}
	}
	return calls
}

func (o *Orchestrator) executeCall(ctx context.Context, call domain.ToolCall, turnIntent intent.Intent) string {
	switch call.Name {
	case toolListWindows:
		return o.executeListWindows(ctx, call)
	case toolCaptureWindow:
		return o.executeCapture(ctx, call, turnIntent)
	case toolRunCommand:
		return o.executeCommand(ctx, call)
	default:
		return fmt.Sprintf("unknown tool %q; available tools: %s, %s, %s",
			call.Name, toolListWindows, toolCaptureWindow, toolRunCommand)
	}
}

func (o *Orchestrator) executeListWindows(ctx context.Context, call domain.ToolCall) string {
	process := call.StringArg("process_name")
	windows, err := o.host.ListWindows(ctx, process)
	if err != nil {
		return fmt.Sprintf("window enumeration failed: %v", err)
	}
	if len(windows) == 0 {
		return "no visible windows matched"
	}
	o.windows.Store(process, windows)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d window(s):\n", len(windows))
	for i, w := range windows {
		marker := ""
		if w.IsActive {
			marker = " (active)"
		}
		fmt.Fprintf(&sb, "%d. %q [%s]%s\n", i+1, w.Title, w.ProcessName, marker)
	}
	return sb.String()
}

func (o *Orchestrator) executeCapture(ctx context.Context, call domain.ToolCall, turnIntent intent.Intent) string {
	process := call.StringArg("process_name")
	titleRef := call.StringArg("window_title")
	question := call.StringArg("question")

	// A bare confirmation with the same target already captured means
	// the model is about to redo work whose output is still in context.
	if turnIntent == intent.Confirmation && o.recentlyCaptured(process, titleRef) {
		o.logger.Debug("suppressing redundant capture", "process", process, "title", titleRef)
		return "skipped: this window was captured in the previous turn and its analysis is already in the conversation; answer from that context"
	}

	// Loose references resolve against cached enumerations first.
	resolvedTitle := titleRef
	if titleRef != "" && !strings.Contains(titleRef, "://") {
		if w := o.windows.Resolve(process, titleRef); w != nil {
			resolvedTitle, process = w.Title, w.ProcessName
		} else if w := o.windows.ResolveAny(titleRef); w != nil {
			resolvedTitle, process = w.Title, w.ProcessName
		}
	}

	capture, err := o.host.CaptureWindow(ctx, process, resolvedTitle)
	if err != nil {
		// Surfaced as data for the model to relay; never auto-retried.
		return fmt.Sprintf("capture failed: %v", err)
	}
	metrics.CapturesTotal.Inc()
	o.rememberCapture(capture)

	analysisText := o.analyzeCapture(ctx, capture, question)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Captured %q (process %s).\n", capture.WindowTitle, capture.ProcessName)
	if capture.OCRText != "" {
		fmt.Fprintf(&sb, "Visible text:\n%s\n", excerpt(capture.OCRText, ocrExcerptLimit))
	}
	if analysisText != "" {
		fmt.Fprintf(&sb, "Analysis: %s\n", analysisText)
	}
	return sb.String()
}

// analyzeCapture is best-effort: a cache hit short-circuits the model
// call, and any analyzer failure yields empty text rather than an
// error.
func (o *Orchestrator) analyzeCapture(ctx context.Context, capture *domain.Capture, question string) string {
	key := analysis.Key(capture.WindowTitle, capture.ProcessName, capture.Fingerprint)
	if cached, ok := o.analyses.Get(key); ok {
		metrics.CaptureCacheHits.Inc()
		return cached
	}
	if o.analyzer == nil {
		return ""
	}
	result, err := o.analyzer.Analyze(ctx, capture, question)
	if err != nil {
		o.logger.Debug("capture analysis unavailable", "error", err)
		return ""
	}
	if result != "" {
		o.analyses.Put(key, result)
	}
	return result
}

func (o *Orchestrator) executeCommand(ctx context.Context, call domain.ToolCall) string {
	command := call.StringArg("command")
	args := call.StringSliceArg("args")
	if command == "" {
		return "run_command requires a command"
	}

	decision := o.policy.Classify(command, args)
	line := commandLine(command, args)

	switch decision.Level {
	case domain.ApprovalBlocked:
		metrics.PolicyBlocks.Inc()
		req := o.approvals.Create(ctx, command, args, decision)
		o.logger.Info("command blocked by policy", "command", line, "reason", decision.Reason, "id", req.ID)
		return fmt.Sprintf("Command `%s` was blocked by policy: %s. It will not be executed; do not retry it.", line, decision.Reason)

	case domain.ApprovalRequired:
		metrics.ApprovalsCreated.Inc()
		req := o.approvals.Create(ctx, command, args, decision)
		metrics.PendingApprovals.Set(int64(len(o.approvals.Pending())))
		o.logger.Info("command pending approval", "command", line, "id", req.ID)
		return fmt.Sprintf("Execution of `%s` is pending the user's approval (request %s): %s. Continue without its output; the result will arrive in a later turn once the user decides.", line, req.ID, decision.Reason)

	default:
		result := o.host.RunCommand(ctx, command, args)
		return renderResult(line, result)
	}
}

func (o *Orchestrator) recentlyCaptured(process, titleRef string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cutoff := time.Now().Add(-recentCaptureWindow)
	kept := o.recent[:0]
	hit := false
	for _, rc := range o.recent {
		if rc.takenAt.Before(cutoff) {
			continue
		}
		kept = append(kept, rc)
		if captureTargetsOverlap(rc, process, titleRef) {
			hit = true
		}
	}
	o.recent = kept
	return hit
}

func (o *Orchestrator) rememberCapture(capture *domain.Capture) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recent = append(o.recent, recentCapture{
		processName: capture.ProcessName,
		windowTitle: capture.WindowTitle,
		takenAt:     capture.TakenAt,
	})
	if len(o.recent) > 16 {
		o.recent = o.recent[len(o.recent)-16:]
	}
}

// captureTargetsOverlap compares loosely: an empty requested field
// matches anything, otherwise case-insensitive containment either way.
func captureTargetsOverlap(rc recentCapture, process, titleRef string) bool {
	matches := func(have, want string) bool {
		if want == "" {
			return true
		}
		have, want = strings.ToLower(have), strings.ToLower(want)
		return strings.Contains(have, want) || strings.Contains(want, have)
	}
	return matches(rc.processName, process) && matches(rc.windowTitle, titleRef)
}

func dedupCalls(calls []domain.ToolCall) []domain.ToolCall {
	if len(calls) < 2 {
		return calls
	}
	seen := make(map[string]bool, len(calls))
	out := calls[:0]
	for _, c := range calls {
		if key := c.Key(); !seen[key] {
			seen[key] = true
			out = append(out, c)
		}
	}
	return out
}

func approvalUpdate(req *domain.ActionRequest) string {
	line := req.CommandLine()
	switch req.Status {
	case domain.ActionExecuted:
		result := "(no output)"
		if req.Result != nil {
			result = renderResult(line, req.Result)
		}
		return fmt.Sprintf("[approval update] The user approved `%s` and it was executed.\n%s", line, result)
	case domain.ActionDenied:
		return fmt.Sprintf("[approval update] The user denied `%s`. It was not executed; do not retry it.", line)
	default:
		return fmt.Sprintf("[approval update] `%s` was blocked by policy and will never execute.", line)
	}
}

func renderResult(line string, res *domain.CommandResult) string {
	var sb strings.Builder
	if res.Success {
		fmt.Fprintf(&sb, "`%s` succeeded (exit %d).\n", line, res.ExitCode)
	} else {
		fmt.Fprintf(&sb, "`%s` failed (exit %d): %s\n", line, res.ExitCode, res.Error)
	}
	if res.Stdout != "" {
		fmt.Fprintf(&sb, "stdout:\n%s\n", excerpt(res.Stdout, outputExcerptLimit))
	}
	if res.Stderr != "" {
		fmt.Fprintf(&sb, "stderr:\n%s\n", excerpt(res.Stderr, outputExcerptLimit))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func commandLine(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}

func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... (truncated)"
}

// emit sends an event unless the consumer has gone away.
func emit(ctx context.Context, out chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

const defaultSystemPrompt = `You are deskbot, a local desktop copilot. You can list and capture the user's windows and run diagnostic shell commands on their machine.

Rules:
- Use tools when the user asks about their screen or their system; answer directly otherwise.
- Read-only commands run immediately. Commands with side effects wait for the user's approval: when a result says an action is pending or blocked, tell the user and move on. Never retry blocked or pending commands.
- Report command output faithfully, including failures.
- Be concise.`
