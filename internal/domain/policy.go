package domain

// ApprovalLevel is the gate a command must pass before execution.
type ApprovalLevel string

const (
	// ApprovalAuto commands execute immediately.
	ApprovalAuto ApprovalLevel = "auto"
	// ApprovalRequired commands wait for an explicit human approval.
	ApprovalRequired ApprovalLevel = "approval_required"
	// ApprovalBlocked commands never execute.
	ApprovalBlocked ApprovalLevel = "blocked"
)

// RuleCategory describes why a rule exists.
type RuleCategory string

const (
	// CategoryContext marks read-only diagnostics safe to run unprompted.
	CategoryContext RuleCategory = "context"
	// CategoryCritical marks commands with side effects worth a human look.
	CategoryCritical RuleCategory = "critical"
	// CategoryForbidden marks destructive commands that are always refused.
	CategoryForbidden RuleCategory = "forbidden"
)

// CommandRule matches a command (and optionally a leading argument
// sequence) to an approval level. Rules with a longer ArgPrefix are more
// specific; the classifier checks forbidden rules first, then critical,
// then context.
type CommandRule struct {
	Command   string        `yaml:"command" json:"command"`
	ArgPrefix []string      `yaml:"arg_prefix,omitempty" json:"arg_prefix,omitempty"`
	Level     ApprovalLevel `yaml:"level" json:"level"`
	Category  RuleCategory  `yaml:"category" json:"category"`
	Reason    string        `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Decision is the outcome of classifying one concrete command line.
type Decision struct {
	Level    ApprovalLevel
	Category RuleCategory
	Reason   string
	// Prompt is a human-readable confirmation question, set when
	// Level is ApprovalRequired.
	Prompt string
}

func (d Decision) Blocked() bool      { return d.Level == ApprovalBlocked }
func (d Decision) NeedsHuman() bool   { return d.Level == ApprovalRequired }
func (d Decision) AutoApproved() bool { return d.Level == ApprovalAuto }
