package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"deskbot/internal/domain"
)

// CLI is the interactive terminal surface. Model text streams to the
// terminal as it arrives; tool activity and approval prompts are
// printed inline.
type CLI struct {
	bus    domain.MessageBus
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	mu        sync.Mutex
	streaming bool
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the REPL and blocks until ctx is cancelled or stdin hits
// EOF.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus
	bus.OnOutbound("cli", c.render)

	fmt.Fprintln(c.out, "deskbot. Type a message, /help for commands, /quit to exit.")
	fmt.Fprint(c.out, "you> ")

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(c.out, "you> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		c.bus.Publish(domain.InboundMessage{
			Channel:  "cli",
			ChatID:   "direct",
			SenderID: "user",
			Content:  line,
		})
	}
}

func (c *CLI) render(msg domain.OutboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev := msg.StreamEvent; ev != nil {
		switch ev.Type {
		case domain.EventText:
			c.streaming = true
			fmt.Fprint(c.out, ev.Text)
		case domain.EventToolStart:
			c.endStreamLocked()
			if ev.Call != nil {
				fmt.Fprintf(c.out, "[tool] %s %s\n", ev.Call.Name, ev.Call.ArgsString())
			}
		case domain.EventToolEnd:
			if ev.ToolResult != "" {
				fmt.Fprintf(c.out, "[tool] done\n")
			}
		case domain.EventError:
			c.endStreamLocked()
			fmt.Fprintf(c.out, "[error] %v\n", ev.Err)
		}
		return
	}

	c.endStreamLocked()
	if msg.Pending != nil {
		fmt.Fprintf(c.out, "\n%s\n", msg.Content)
		fmt.Fprint(c.out, "you> ")
		return
	}
	if msg.Content != "" {
		fmt.Fprintf(c.out, "\n%s\n", msg.Content)
	}
	fmt.Fprint(c.out, "you> ")
}

func (c *CLI) endStreamLocked() {
	if c.streaming {
		fmt.Fprintln(c.out)
		c.streaming = false
	}
}

func (c *CLI) Stop() error { return nil }

func (c *CLI) Send(ctx context.Context, chatID string, content string) error {
	_, err := fmt.Fprintln(c.out, content)
	return err
}
