package policy

import (
	"os"
	"path/filepath"
	"testing"

	"deskbot/internal/domain"
)

func TestLoadRulesEmptyPathReturnsDefaults(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) == 0 {
		t.Fatal("expected built-in rules")
	}
}

func TestLoadRulesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := SaveRules(path, DefaultRules()); err != nil {
		t.Fatalf("SaveRules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != len(DefaultRules()) {
		t.Fatalf("got %d rules, want %d", len(rules), len(DefaultRules()))
	}

	// A loaded table must classify the same as the built-in one.
	c := NewClassifier(rules)
	if d := c.Classify("docker", []string{"rm", "x"}); d.Level != domain.ApprovalBlocked {
		t.Fatalf("docker rm after round-trip: got %s, want blocked", d.Level)
	}
}

func TestLoadRulesRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("rules: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for empty rule file")
	}
}
