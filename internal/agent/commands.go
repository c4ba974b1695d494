package agent

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"deskbot/internal/domain"
)

// ChatCommand is a parsed slash command.
type ChatCommand struct {
	Name string
	Args []string
	Raw  string
}

// CommandReply holds the response for a handled command. Handled=false
// means the message goes to the model as a normal turn.
type CommandReply struct {
	Response string
	Handled  bool
}

// ParseCommand parses a leading-slash message into a ChatCommand, or
// returns nil for ordinary messages.
func ParseCommand(text string) *ChatCommand {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return &ChatCommand{Name: name, Args: args, Raw: text}
}

func (e *Engine) HandleCommand(ctx context.Context, cmd *ChatCommand, msg domain.InboundMessage) CommandReply {
	switch cmd.Name {
	case "help":
		return CommandReply{Response: helpText(), Handled: true}

	case "new", "clear":
		e.sessions.ClearSession(msg.Channel + ":" + msg.ChatID)
		return CommandReply{Response: "Conversation cleared. Starting fresh.", Handled: true}

	case "status":
		return CommandReply{Response: e.statusText(), Handled: true}

	case "pending":
		return CommandReply{Response: e.pendingText(), Handled: true}

	case "approve":
		if len(cmd.Args) == 0 {
			return CommandReply{Response: "Usage: /approve <request-id>", Handled: true}
		}
		req, err := e.approvals.Approve(ctx, cmd.Args[0])
		if err != nil {
			return CommandReply{Response: fmt.Sprintf("Cannot approve: %v", err), Handled: true}
		}
		if req.Status != domain.ActionExecuted {
			return CommandReply{Response: fmt.Sprintf("Request %s is %s; nothing to do.", req.ID, req.Status), Handled: true}
		}
		return CommandReply{
			Response: fmt.Sprintf("Approved and executed `%s`. I'll fold the result into my next answer.", req.CommandLine()),
			Handled:  true,
		}

	case "deny":
		if len(cmd.Args) == 0 {
			return CommandReply{Response: "Usage: /deny <request-id>", Handled: true}
		}
		req, err := e.approvals.Deny(ctx, cmd.Args[0])
		if err != nil {
			return CommandReply{Response: fmt.Sprintf("Cannot deny: %v", err), Handled: true}
		}
		return CommandReply{Response: fmt.Sprintf("Denied `%s`.", req.CommandLine()), Handled: true}

	case "tools":
		return CommandReply{Response: toolsText(), Handled: true}

	case "uptime":
		return CommandReply{Response: fmt.Sprintf("Uptime: %s", time.Since(processStart).Round(time.Second)), Handled: true}

	case "version":
		return CommandReply{Response: fmt.Sprintf("deskbot v%s (%s/%s, Go %s)",
			version, runtime.GOOS, runtime.GOARCH, runtime.Version()), Handled: true}

	default:
		return CommandReply{Handled: false}
	}
}

var version = "0.1.0"

// SetVersion sets the version string reported by /version.
func SetVersion(v string) {
	version = v
}

func (e *Engine) statusText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "deskbot v%s on %s/%s\n", version, runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Model: %s\n", e.orch.client.Name())
	fmt.Fprintf(&sb, "Pending approvals: %d\n", len(e.approvals.Pending()))
	fmt.Fprintf(&sb, "Uptime: %s", time.Since(processStart).Round(time.Second))
	return sb.String()
}

func (e *Engine) pendingText() string {
	pending := e.approvals.Pending()
	if len(pending) == 0 {
		return "No commands waiting for approval."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d command(s) waiting for approval:\n", len(pending))
	for _, req := range pending {
		fmt.Fprintf(&sb, "- %s: `%s` (%s)\n", req.ID, req.CommandLine(), req.Decision.Reason)
	}
	sb.WriteString("Use /approve <id> or /deny <id>.")
	return sb.String()
}

func toolsText() string {
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, t := range toolDefinitions() {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func helpText() string {
	return `deskbot commands

/help - this message
/new - start a new conversation
/status - bot status
/pending - commands waiting for approval
/approve <id> - approve a pending command
/deny <id> - deny a pending command
/tools - list available tools
/uptime - process uptime
/version - version info

Anything else is sent to the assistant.`
}
