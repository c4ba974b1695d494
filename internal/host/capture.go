package host

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deskbot/internal/domain"
)

// CaptureWindow screenshots the window best matching processName and
// windowTitle. With both empty it captures the whole active screen.
// URL targets (anything with a scheme) are routed to the headless
// browser backend.
func (d *Desktop) CaptureWindow(ctx context.Context, processName, windowTitle string) (*domain.Capture, error) {
	if d.browser != nil && strings.Contains(windowTitle, "://") {
		return d.browser.CaptureURL(ctx, windowTitle)
	}

	title := windowTitle
	process := processName
	if processName != "" || windowTitle != "" {
		windows, err := d.ListWindows(ctx, processName)
		if err != nil {
			return nil, err
		}
		if len(windows) == 0 {
			return nil, fmt.Errorf("no windows found for process %q", processName)
		}
		target := windows[0]
		for _, w := range windows {
			if windowTitle != "" && strings.EqualFold(w.Title, windowTitle) {
				target = w
				break
			}
		}
		title, process = target.Title, target.ProcessName
	} else {
		title, process = "screen", "desktop"
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("deskbot-cap-%d.png", time.Now().UnixNano()))
	defer os.Remove(path)

	if err := d.captureToFile(ctx, title, path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("capture produced no image for %q", title)
	}

	sum := sha256.Sum256(data)
	out := &domain.Capture{
		WindowTitle: title,
		ProcessName: process,
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		Fingerprint: hex.EncodeToString(sum[:]),
		OCRText:     d.ocr(ctx, path),
		TakenAt:     time.Now(),
	}
	return out, nil
}

func (d *Desktop) captureToFile(ctx context.Context, title, path string) error {
	var res *domain.CommandResult
	switch d.goos {
	case "windows":
		script := fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms,System.Drawing
$b = [System.Windows.Forms.Screen]::PrimaryScreen.Bounds
$bmp = New-Object System.Drawing.Bitmap $b.Width, $b.Height
$g = [System.Drawing.Graphics]::FromImage($bmp)
$g.CopyFromScreen($b.Location, [System.Drawing.Point]::Empty, $b.Size)
$bmp.Save('%s', [System.Drawing.Imaging.ImageFormat]::Png)`, path)
		res = d.runner.RunCommand(ctx, "powershell", []string{"-NoProfile", "-Command", script})
	case "darwin":
		res = d.runner.RunCommand(ctx, "screencapture", []string{"-x", path})
	default:
		target := "root"
		if title != "" && title != "screen" {
			target = title
		}
		res = d.runner.RunCommand(ctx, "import", []string{"-window", target, path})
		if !res.Success && target != "root" {
			// named-window capture is flaky under some WMs
			res = d.runner.RunCommand(ctx, "import", []string{"-window", "root", path})
		}
	}
	if !res.Success {
		return fmt.Errorf("screen capture failed: %s", firstNonEmpty(res.Error, res.Stderr))
	}
	return nil
}

// ocr runs tesseract over the capture when available. Best-effort:
// any failure yields empty text.
func (d *Desktop) ocr(ctx context.Context, path string) string {
	res := d.runner.RunCommand(ctx, "tesseract", []string{path, "stdout"})
	if !res.Success {
		d.logger.Debug("ocr unavailable", "error", res.Error)
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return "unknown error"
}
