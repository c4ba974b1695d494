package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"deskbot/internal/domain"
)

// Desktop is the real domain.Host. Everything shells out to platform
// tools through the Runner so the same timeout and output bounds apply
// to capability probes as to user commands.
type Desktop struct {
	runner  *Runner
	browser *Browser
	logger  *slog.Logger
	goos    string
}

func NewDesktop(runner *Runner, browser *Browser, logger *slog.Logger) *Desktop {
	return &Desktop{
		runner:  runner,
		browser: browser,
		logger:  logger,
		goos:    runtime.GOOS,
	}
}

// RunCommand delegates to the bounded runner.
func (d *Desktop) RunCommand(ctx context.Context, command string, args []string) *domain.CommandResult {
	return d.runner.RunCommand(ctx, command, args)
}

// ListWindows enumerates visible top-level windows, filtered by a
// case-insensitive process-name substring when given.
func (d *Desktop) ListWindows(ctx context.Context, processName string) ([]domain.WindowInfo, error) {
	var (
		windows []domain.WindowInfo
		err     error
	)
	switch d.goos {
	case "windows":
		windows, err = d.listWindowsPowershell(ctx)
	case "darwin":
		windows, err = d.listWindowsOsascript(ctx)
	default:
		windows, err = d.listWindowsWmctrl(ctx)
	}
	if err != nil {
		return nil, err
	}

	if processName == "" {
		return windows, nil
	}
	needle := strings.ToLower(processName)
	var out []domain.WindowInfo
	for _, w := range windows {
		if strings.Contains(strings.ToLower(w.ProcessName), needle) {
			out = append(out, w)
		}
	}
	return out, nil
}

type psWindow struct {
	MainWindowTitle string `json:"MainWindowTitle"`
	ProcessName     string `json:"ProcessName"`
}

func (d *Desktop) listWindowsPowershell(ctx context.Context) ([]domain.WindowInfo, error) {
	script := `Get-Process | Where-Object {$_.MainWindowTitle -ne ''} | Select-Object MainWindowTitle, ProcessName | ConvertTo-Json -Compress`
	res := d.runner.RunCommand(ctx, "powershell", []string{"-NoProfile", "-Command", script})
	if !res.Success {
		return nil, fmt.Errorf("window enumeration failed: %s", res.Error)
	}

	island := extractJSON(res.Stdout)
	if island == "" {
		return nil, nil
	}
	// A single window serializes as a bare object.
	if island[0] == '{' {
		island = "[" + island + "]"
	}
	var raw []psWindow
	if err := json.Unmarshal([]byte(island), &raw); err != nil {
		return nil, fmt.Errorf("parse window list: %w", err)
	}

	out := make([]domain.WindowInfo, 0, len(raw))
	for _, r := range raw {
		out = append(out, domain.WindowInfo{
			Title:       r.MainWindowTitle,
			ProcessName: r.ProcessName,
		})
	}
	return out, nil
}

func (d *Desktop) listWindowsWmctrl(ctx context.Context) ([]domain.WindowInfo, error) {
	res := d.runner.RunCommand(ctx, "wmctrl", []string{"-lpx"})
	if !res.Success {
		return nil, fmt.Errorf("window enumeration failed (is wmctrl installed?): %s", res.Error)
	}

	activeID := d.activeWindowID(ctx)

	var out []domain.WindowInfo
	for _, line := range strings.Split(res.Stdout, "\n") {
		// 0x04000007  0 1234 navigator.Firefox  host Title words ...
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		process := fields[3]
		if dot := strings.IndexByte(process, '.'); dot >= 0 {
			process = process[dot+1:]
		}
		id, _ := strconv.ParseInt(strings.TrimPrefix(fields[0], "0x"), 16, 64)
		out = append(out, domain.WindowInfo{
			Title:       strings.Join(fields[5:], " "),
			ProcessName: process,
			IsActive:    activeID != 0 && id == activeID,
		})
	}
	return out, nil
}

func (d *Desktop) activeWindowID(ctx context.Context) int64 {
	res := d.runner.RunCommand(ctx, "xdotool", []string{"getactivewindow"})
	if !res.Success {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (d *Desktop) listWindowsOsascript(ctx context.Context) ([]domain.WindowInfo, error) {
	script := `tell application "System Events"
	set out to ""
	repeat with p in (every process whose visible is true)
		repeat with w in (every window of p)
			set out to out & (name of p) & "|||" & (name of w) & linefeed
		end repeat
	end repeat
	return out
end tell`
	res := d.runner.RunCommand(ctx, "osascript", []string{"-e", script})
	if !res.Success {
		return nil, fmt.Errorf("window enumeration failed: %s", res.Error)
	}

	var out []domain.WindowInfo
	for _, line := range strings.Split(res.Stdout, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "|||", 2)
		if len(parts) != 2 || parts[1] == "" {
			continue
		}
		out = append(out, domain.WindowInfo{
			Title:       parts[1],
			ProcessName: parts[0],
		})
	}
	if len(out) > 0 {
		// frontmost process owns the first listed window
		out[0].IsActive = true
	}
	return out, nil
}
