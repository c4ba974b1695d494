package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"deskbot/internal/domain"
)

// Vision answers questions about a capture by sending the image (and
// any OCR text) through the model client as a one-shot multimodal
// prompt. It implements domain.Analyzer.
type Vision struct {
	client domain.ModelClient
	logger *slog.Logger
}

func NewVision(client domain.ModelClient, logger *slog.Logger) *Vision {
	return &Vision{client: client, logger: logger}
}

func (v *Vision) Analyze(ctx context.Context, capture *domain.Capture, question string) (string, error) {
	if question == "" {
		question = "Describe what is visible and call out anything that looks like an error."
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "This is a screenshot of the window %q (process %s).\n",
		capture.WindowTitle, capture.ProcessName)
	if capture.OCRText != "" {
		fmt.Fprintf(&prompt, "Text extracted from the image:\n%s\n\n", capture.OCRText)
	}
	prompt.WriteString(question)

	req := domain.ChatRequest{
		Messages: []domain.Message{{
			Role:    domain.RoleUser,
			Content: prompt.String(),
			Images:  []string{capture.ImageBase64},
		}},
	}

	events := make(chan domain.StreamEvent, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- v.client.ChatStream(ctx, req, events)
	}()

	var answer strings.Builder
	for ev := range events {
		if ev.Type == domain.EventText {
			answer.WriteString(ev.Text)
		}
	}
	if err := <-errCh; err != nil {
		return "", fmt.Errorf("vision analysis: %w", err)
	}
	return strings.TrimSpace(answer.String()), nil
}
