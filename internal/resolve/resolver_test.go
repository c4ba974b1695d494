package resolve

import (
	"testing"
	"time"

	"deskbot/internal/domain"
)

func wins(titles ...string) []domain.WindowInfo {
	out := make([]domain.WindowInfo, len(titles))
	for i, t := range titles {
		out[i] = domain.WindowInfo{Title: t, ProcessName: "chrome"}
	}
	return out
}

func TestResolveOrdinalSkipsMatching(t *testing.T) {
	r := NewResolver(0)
	r.Store("chrome", wins("GitHub - Pull Requests", "Gmail - Inbox"))

	got := r.Resolve("chrome", "the second one")
	if got == nil || got.Title != "Gmail - Inbox" {
		t.Fatalf("the second one -> %v, want Gmail - Inbox", got)
	}
	if r.Resolve("chrome", "the fifth one") != nil {
		t.Fatal("out-of-range ordinal must resolve to nil")
	}
}

func TestResolveExactBeforeFuzzy(t *testing.T) {
	r := NewResolver(0)
	r.Store("chrome", wins("Inbox", "Inbox - Gmail"))

	got := r.Resolve("chrome", "Inbox")
	if got == nil || got.Title != "Inbox" {
		t.Fatalf("exact match failed: %v", got)
	}
}

func TestResolveNormalizedTitle(t *testing.T) {
	r := NewResolver(0)
	r.Store("code", []domain.WindowInfo{{Title: "main.go — Visual Studio Code", ProcessName: "code"}})

	got := r.Resolve("code", "main go visual studio code")
	if got == nil {
		t.Fatal("normalized match failed")
	}
}

func TestResolveFuzzy(t *testing.T) {
	r := NewResolver(0)
	r.Store("chrome", wins("GitHub - deskbot pull requests", "Gmail - Inbox", "Calendar"))

	got := r.Resolve("chrome", "github pull requests")
	if got == nil || got.Title != "GitHub - deskbot pull requests" {
		t.Fatalf("fuzzy: got %v", got)
	}
}

func TestResolveBelowThresholdIsNil(t *testing.T) {
	r := NewResolver(0)
	r.Store("chrome", wins("Gmail - Inbox"))

	if got := r.Resolve("chrome", "zzzz qqqq"); got != nil {
		t.Fatalf("unrelated reference resolved to %v, want nil", got)
	}
}

func TestResolveTieBreakFirstSeen(t *testing.T) {
	r := NewResolver(0)
	r.Store("term", wins("build logs one", "build logs two"))

	got := r.Resolve("term", "build logs")
	if got == nil || got.Title != "build logs one" {
		t.Fatalf("tie break: got %v, want first window", got)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	r := NewResolver(10 * time.Second)
	base := time.Now()
	r.now = func() time.Time { return base }
	r.Store("chrome", wins("Gmail - Inbox"))

	if _, ok := r.Cached("chrome"); !ok {
		t.Fatal("fresh entry must be cached")
	}

	r.now = func() time.Time { return base.Add(11 * time.Second) }
	if _, ok := r.Cached("chrome"); ok {
		t.Fatal("expired entry must be purged")
	}
	if r.Resolve("chrome", "gmail") != nil {
		t.Fatal("resolution against an expired cache must be nil")
	}
}

func TestResolveAnyAcrossProcesses(t *testing.T) {
	r := NewResolver(0)
	r.Store("chrome", wins("Gmail - Inbox"))
	r.Store("code", []domain.WindowInfo{{Title: "server.go — Visual Studio Code", ProcessName: "code"}})

	got := r.ResolveAny("visual studio code")
	if got == nil || got.ProcessName != "code" {
		t.Fatalf("cross-process widening: got %v", got)
	}
	if r.ResolveAny("nothing like this") != nil {
		t.Fatal("no candidate should clear the threshold")
	}
}

func TestOrdinalIndex(t *testing.T) {
	cases := map[string]int{
		"the second one":   1,
		"first":            0,
		"2nd window":       1,
		"window 3":         2,
		"#2":               1,
		"number 4":         3,
		"tenth":            9,
		"release notes v2": -1,
		"gmail":            -1,
	}
	for ref, want := range cases {
		if got := ordinalIndex(ref); got != want {
			t.Errorf("ordinalIndex(%q) = %d, want %d", ref, got, want)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	got := normalizeText("The Gmail — Inbox (2)")
	if got != "gmail inbox 2" {
		t.Fatalf("normalizeText = %q", got)
	}
}
