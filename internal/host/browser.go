package host

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"deskbot/internal/domain"
)

const browserCaptureTimeout = 45 * time.Second

// Browser captures web targets through headless Chrome. Used when the
// capture target is a URL rather than a desktop window.
type Browser struct {
	logger *slog.Logger
}

func NewBrowser(logger *slog.Logger) *Browser {
	return &Browser{logger: logger}
}

func (b *Browser) CaptureURL(ctx context.Context, url string) (*domain.Capture, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	runCtx, cancelRun := context.WithTimeout(tabCtx, browserCaptureTimeout)
	defer cancelRun()

	var (
		buf   []byte
		title string
	)
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Title(&title),
		chromedp.FullScreenshot(&buf, 90),
	)
	if err != nil {
		return nil, fmt.Errorf("browser capture of %s: %w", url, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("browser capture of %s produced no image", url)
	}

	sum := sha256.Sum256(buf)
	b.logger.Debug("browser capture done", "url", url, "title", title, "bytes", len(buf))
	return &domain.Capture{
		WindowTitle: title,
		ProcessName: "browser",
		ImageBase64: base64.StdEncoding.EncodeToString(buf),
		Fingerprint: hex.EncodeToString(sum[:]),
		TakenAt:     time.Now(),
	}, nil
}
