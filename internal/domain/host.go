package domain

import (
	"context"
	"time"
)

// WindowInfo describes one top-level window on the desktop.
type WindowInfo struct {
	Title       string `json:"title"`
	ProcessName string `json:"process_name"`
	IsActive    bool   `json:"is_active"`
}

// CommandResult is the outcome of one host command. Host failures are
// carried as data in this struct, never as Go errors: a missing binary,
// a non-zero exit, or a timeout all produce Success=false with Error
// set, and the caller relays the struct to the model verbatim.
type CommandResult struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// Capture is one screenshot of a window plus everything extracted from
// it on the cheap path (hash, OCR). Analysis is layered on separately.
type Capture struct {
	WindowTitle string
	ProcessName string
	ImageBase64 string
	// Fingerprint is a hex sha256 of the raw image bytes.
	Fingerprint string
	OCRText     string
	TakenAt     time.Time
}

// Host is the desktop capability surface: enumerate windows, capture
// them, run commands. Implementations shell out to platform tools.
type Host interface {
	// ListWindows returns visible top-level windows, optionally
	// filtered by process name (case-insensitive substring).
	ListWindows(ctx context.Context, processName string) ([]WindowInfo, error)

	// CaptureWindow screenshots the window best matching the given
	// process and title. Empty arguments capture the active screen.
	CaptureWindow(ctx context.Context, processName, windowTitle string) (*Capture, error)

	// RunCommand executes command with args and always returns a
	// result; failures are encoded in the result, not returned.
	RunCommand(ctx context.Context, command string, args []string) *CommandResult
}

// Analyzer answers a question about a capture. Best-effort: callers
// treat an error as "no analysis available" and continue.
type Analyzer interface {
	Analyze(ctx context.Context, cap *Capture, question string) (string, error)
}
