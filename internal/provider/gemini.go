package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"deskbot/internal/domain"
)

const (
	geminiDefaultBase  = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-2.0-flash"
)

// Gemini implements domain.ModelClient against the Gemini REST API
// with SSE streaming. The response wire format nests tool calls inside
// candidates/content/parts (and has shifted shape across API
// revisions), so extraction goes through collectCalls, which walks the
// raw chunk and flattens every shape into deduplicated EventToolCall
// events. Nothing downstream ever sees the nested structure.
type Gemini struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = geminiDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  StreamingHTTPClient(),
		logger:  cfg.Logger,
	}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Healthy(ctx context.Context) error {
	url := fmt.Sprintf("%s/models?key=%s&pageSize=1", g.apiBase, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}
	return nil
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *geminiBlob             `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	Tools             []geminiTool     `json:"tools,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

// ChatStream posts the conversation and streams tagged events to out.
// The channel is closed when the stream ends, whatever the reason.
func (g *Gemini) ChatStream(ctx context.Context, req domain.ChatRequest, out chan<- domain.StreamEvent) error {
	defer close(out)

	body, err := json.Marshal(g.buildRequest(req))
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		g.apiBase, g.model, g.apiKey)
	resp, err := doWithRetry(ctx, g.client, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	}, g.logger)
	if err != nil {
		emit(ctx, out, domain.StreamEvent{Type: domain.EventError, Err: err.Error()})
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("gemini returned %d: %s", resp.StatusCode, string(respBody))
		emit(ctx, out, domain.StreamEvent{Type: domain.EventError, Err: err.Error()})
		return err
	}

	return g.readStream(ctx, resp.Body, out)
}

func (g *Gemini) buildRequest(req domain.ChatRequest) geminiRequest {
	var body geminiRequest
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			body.SystemInstruction = &geminiContent{
				Parts: []geminiPart{{Text: m.Content}},
			}
		case domain.RoleAssistant:
			content := geminiContent{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, geminiPart{
					FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Arguments},
				})
			}
			body.Contents = append(body.Contents, content)
		case domain.RoleTool:
			body.Contents = append(body.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFunctionResponse{
						Name:     m.ToolName,
						Response: map[string]any{"content": m.Content},
					},
				}},
			})
		default:
			content := geminiContent{Role: "user"}
			if m.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			for _, img := range m.Images {
				content.Parts = append(content.Parts, geminiPart{
					InlineData: &geminiBlob{MimeType: "image/png", Data: img},
				})
			}
			body.Contents = append(body.Contents, content)
		}
	}

	if len(req.Tools) > 0 {
		tool := geminiTool{}
		for _, t := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		body.Tools = []geminiTool{tool}
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		cfg := &geminiGenConfig{MaxOutputTokens: req.MaxTokens}
		if req.Temperature > 0 {
			cfg.Temperature = &req.Temperature
		}
		body.GenerationConfig = cfg
	}
	return body
}

// geminiChunk covers only the text path; tool calls are extracted from
// the raw decoded chunk by collectCalls.
type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) readStream(ctx context.Context, body io.Reader, out chan<- domain.StreamEvent) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	seen := make(map[string]bool)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk geminiChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			g.logger.Warn("skipping malformed stream chunk", "error", err)
			continue
		}
		if chunk.Error != nil {
			err := fmt.Errorf("gemini stream error: %s", chunk.Error.Message)
			emit(ctx, out, domain.StreamEvent{Type: domain.EventError, Err: err.Error()})
			return err
		}

		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				if p.Text == "" {
					continue
				}
				if !emit(ctx, out, domain.StreamEvent{Type: domain.EventText, Text: p.Text}) {
					return ctx.Err()
				}
			}
		}

		var raw any
		if err := json.Unmarshal([]byte(payload), &raw); err == nil {
			var calls []domain.ToolCall
			collectCalls(raw, seen, &calls)
			for i := range calls {
				calls[i].ID = uuid.NewString()
				if !emit(ctx, out, domain.StreamEvent{Type: domain.EventToolCall, Call: &calls[i]}) {
					return ctx.Err()
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		emit(ctx, out, domain.StreamEvent{Type: domain.EventError, Err: err.Error()})
		return fmt.Errorf("read stream: %w", err)
	}

	emit(ctx, out, domain.StreamEvent{Type: domain.EventDone})
	return nil
}

// emit sends an event unless the consumer has gone away.
func emit(ctx context.Context, out chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
