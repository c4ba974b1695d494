package policy

import (
	"fmt"
	"strings"

	"deskbot/internal/domain"
)

// Classifier decides how a concrete command line may execute. It is a
// pure lookup over an ordered rule table: forbidden rules are checked
// first, then critical, then context, so a destructive rule always wins
// over a permissive one for the same command. Within a band the first
// matching rule wins, in the order rules were given.
type Classifier struct {
	forbidden []domain.CommandRule
	critical  []domain.CommandRule
	context   []domain.CommandRule
}

// NewClassifier partitions rules by category, preserving order.
func NewClassifier(rules []domain.CommandRule) *Classifier {
	c := &Classifier{}
	for _, r := range rules {
		switch r.Category {
		case domain.CategoryForbidden:
			c.forbidden = append(c.forbidden, r)
		case domain.CategoryCritical:
			c.critical = append(c.critical, r)
		default:
			c.context = append(c.context, r)
		}
	}
	return c
}

// Classify returns the decision for one command invocation. The same
// input always yields the same decision. Unknown commands default to
// approval_required/critical: nothing executes unattended unless a rule
// explicitly allows it.
func (c *Classifier) Classify(command string, args []string) domain.Decision {
	cmd := strings.ToLower(strings.TrimSpace(command))
	normArgs := make([]string, len(args))
	for i, a := range args {
		normArgs[i] = strings.ToLower(strings.TrimSpace(a))
	}

	for _, band := range [][]domain.CommandRule{c.forbidden, c.critical, c.context} {
		for _, r := range band {
			if ruleMatches(r, cmd, normArgs) {
				return decisionFrom(r, command, args)
			}
		}
	}

	return domain.Decision{
		Level:    domain.ApprovalRequired,
		Category: domain.CategoryCritical,
		Reason:   "no policy rule matches this command",
		Prompt:   approvalPrompt(command, args, "no policy rule matches this command"),
	}
}

// ruleMatches reports whether the rule's command and argument prefix
// match the invocation. A rule with no ArgPrefix matches every
// invocation of its command.
func ruleMatches(r domain.CommandRule, cmd string, args []string) bool {
	if strings.ToLower(r.Command) != cmd {
		return false
	}
	if len(args) < len(r.ArgPrefix) {
		return false
	}
	for i, want := range r.ArgPrefix {
		if strings.ToLower(want) != args[i] {
			return false
		}
	}
	return true
}

func decisionFrom(r domain.CommandRule, command string, args []string) domain.Decision {
	d := domain.Decision{
		Level:    r.Level,
		Category: r.Category,
		Reason:   r.Reason,
	}
	if d.Reason == "" {
		switch r.Category {
		case domain.CategoryForbidden:
			d.Reason = "command is forbidden by policy"
		case domain.CategoryCritical:
			d.Reason = "command has side effects"
		default:
			d.Reason = "read-only diagnostic"
		}
	}
	if d.Level == domain.ApprovalRequired {
		d.Prompt = approvalPrompt(command, args, d.Reason)
	}
	return d
}

func approvalPrompt(command string, args []string, reason string) string {
	line := command
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}
	return fmt.Sprintf("Allow running `%s`? (%s)", line, reason)
}
