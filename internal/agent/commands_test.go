package agent

import "testing"

func TestParseCommandBasic(t *testing.T) {
	cmd := ParseCommand("/approve req-42")
	if cmd == nil {
		t.Fatal("expected a command")
	}
	if cmd.Name != "approve" || len(cmd.Args) != 1 || cmd.Args[0] != "req-42" {
		t.Fatalf("parsed %+v", cmd)
	}
}

func TestParseCommandCaseAndWhitespace(t *testing.T) {
	cmd := ParseCommand("  /Help  ")
	if cmd == nil || cmd.Name != "help" {
		t.Fatalf("parsed %+v", cmd)
	}
	if len(cmd.Args) != 0 {
		t.Fatalf("unexpected args: %v", cmd.Args)
	}
}

func TestParseCommandPlainMessage(t *testing.T) {
	if cmd := ParseCommand("what is running?"); cmd != nil {
		t.Fatalf("plain message parsed as command: %+v", cmd)
	}
	if cmd := ParseCommand(""); cmd != nil {
		t.Fatalf("empty message parsed as command: %+v", cmd)
	}
}
