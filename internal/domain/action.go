package domain

import "time"

// ActionStatus is the lifecycle state of a pending command.
//
// pending -> executing -> executed
// pending -> denied
// blocked (terminal from creation)
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionExecuting ActionStatus = "executing"
	ActionExecuted  ActionStatus = "executed"
	ActionDenied    ActionStatus = "denied"
	ActionBlocked   ActionStatus = "blocked"
)

// ActionRequest is a command that could not run unattended. It is held
// by the approval manager until a human approves, denies, or (for
// blocked commands) acknowledges it.
type ActionRequest struct {
	ID        string
	Command   string
	Args      []string
	Decision  Decision
	Status    ActionStatus
	CreatedAt time.Time
	ResolvedAt time.Time
	// Result is set after an approved request has executed.
	Result *CommandResult
	Error  string
}

// Terminal reports whether the request has reached a final state and
// can be acknowledged away.
func (r *ActionRequest) Terminal() bool {
	switch r.Status {
	case ActionExecuted, ActionDenied, ActionBlocked:
		return true
	}
	return false
}

// CommandLine renders the request for prompts and audit rows.
func (r *ActionRequest) CommandLine() string {
	line := r.Command
	for _, a := range r.Args {
		line += " " + a
	}
	return line
}
