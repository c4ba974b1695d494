package policy

import (
	"testing"

	"deskbot/internal/domain"
)

func defaultClassifier() *Classifier {
	return NewClassifier(DefaultRules())
}

func TestClassifyReadOnlyDiagnostics(t *testing.T) {
	c := defaultClassifier()

	cases := []struct {
		cmd  string
		args []string
	}{
		{"docker", []string{"ps"}},
		{"docker", []string{"logs", "web"}},
		{"docker", []string{"compose", "ps"}},
		{"git", []string{"status"}},
		{"git", []string{"diff", "--stat"}},
		{"npm", []string{"ls"}},
		{"node", []string{"--version"}},
		{"uptime", nil},
	}
	for _, tc := range cases {
		d := c.Classify(tc.cmd, tc.args)
		if d.Level != domain.ApprovalAuto {
			t.Errorf("%s %v: got level %s, want auto", tc.cmd, tc.args, d.Level)
		}
		if d.Category != domain.CategoryContext {
			t.Errorf("%s %v: got category %s, want context", tc.cmd, tc.args, d.Category)
		}
	}
}

func TestClassifyForbidden(t *testing.T) {
	c := defaultClassifier()

	cases := []struct {
		cmd  string
		args []string
	}{
		{"docker", []string{"rm", "web"}},
		{"docker", []string{"system", "prune", "-f"}},
		{"git", []string{"branch", "-D", "main"}},
		{"rm", []string{"-rf", "/tmp/x"}},
		{"shutdown", []string{"-h", "now"}},
	}
	for _, tc := range cases {
		d := c.Classify(tc.cmd, tc.args)
		if d.Level != domain.ApprovalBlocked {
			t.Errorf("%s %v: got level %s, want blocked", tc.cmd, tc.args, d.Level)
		}
		if d.Category != domain.CategoryForbidden {
			t.Errorf("%s %v: got category %s, want forbidden", tc.cmd, tc.args, d.Category)
		}
	}
}

func TestClassifyCriticalNeedsApproval(t *testing.T) {
	c := defaultClassifier()

	d := c.Classify("git", []string{"reset", "--hard", "HEAD~1"})
	if d.Level != domain.ApprovalRequired {
		t.Fatalf("git reset --hard: got level %s, want approval_required", d.Level)
	}
	if d.Category != domain.CategoryCritical {
		t.Fatalf("git reset --hard: got category %s, want critical", d.Category)
	}
	if d.Prompt == "" {
		t.Fatal("approval_required decision must carry a prompt")
	}
}

func TestClassifyUnknownDefaultsToApproval(t *testing.T) {
	c := defaultClassifier()

	d := c.Classify("frobnicate", []string{"--all"})
	if d.Level != domain.ApprovalRequired || d.Category != domain.CategoryCritical {
		t.Fatalf("unknown command: got %s/%s, want approval_required/critical", d.Level, d.Category)
	}
}

func TestClassifyForbiddenWinsOverPermissive(t *testing.T) {
	// Same command in two bands: the forbidden rule must win even when
	// a context rule also matches.
	c := NewClassifier([]domain.CommandRule{
		{Command: "svc", Level: domain.ApprovalAuto, Category: domain.CategoryContext},
		{Command: "svc", ArgPrefix: []string{"wipe"}, Level: domain.ApprovalBlocked, Category: domain.CategoryForbidden},
	})

	if d := c.Classify("svc", []string{"wipe"}); d.Level != domain.ApprovalBlocked {
		t.Fatalf("svc wipe: got %s, want blocked", d.Level)
	}
	if d := c.Classify("svc", []string{"list"}); d.Level != domain.ApprovalAuto {
		t.Fatalf("svc list: got %s, want auto", d.Level)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := defaultClassifier()

	d := c.Classify("Docker", []string{"PS"})
	if d.Level != domain.ApprovalAuto {
		t.Fatalf("Docker PS: got %s, want auto", d.Level)
	}
}

func TestClassifyArgPrefixNeedsAllElements(t *testing.T) {
	c := defaultClassifier()

	// "docker system" alone matches no prune rule and no context rule.
	d := c.Classify("docker", []string{"system"})
	if d.Level != domain.ApprovalRequired {
		t.Fatalf("docker system: got %s, want approval_required default", d.Level)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := defaultClassifier()

	first := c.Classify("git", []string{"push", "origin", "main"})
	for i := 0; i < 5; i++ {
		if got := c.Classify("git", []string{"push", "origin", "main"}); got != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", first, got)
		}
	}
}
