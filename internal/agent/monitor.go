package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deskbot/internal/domain"
)

const (
	minMonitorInterval = 1 * time.Second
	maxMonitorInterval = 10 * time.Second
)

// Monitor watches the screen on a fixed interval and announces changes
// on the bus. Change detection compares capture fingerprints, so an
// unchanged screen costs one capture and no model traffic.
type Monitor struct {
	host    domain.Host
	bus     domain.MessageBus
	logger  *slog.Logger
	channel string
	chatID  string

	mu       sync.Mutex
	interval time.Duration
	lastHash string
}

type MonitorConfig struct {
	Host     domain.Host
	Bus      domain.MessageBus
	Logger   *slog.Logger
	Channel  string
	ChatID   string
	Interval time.Duration
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		host:     cfg.Host,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
		channel:  cfg.Channel,
		chatID:   cfg.ChatID,
		interval: clampInterval(cfg.Interval),
	}
}

// SetInterval adjusts the polling interval, clamped to 1-10s. Takes
// effect after the current tick.
func (m *Monitor) SetInterval(d time.Duration) {
	m.mu.Lock()
	m.interval = clampInterval(d)
	m.mu.Unlock()
}

func clampInterval(d time.Duration) time.Duration {
	if d < minMonitorInterval {
		return minMonitorInterval
	}
	if d > maxMonitorInterval {
		return maxMonitorInterval
	}
	return d
}

// Start blocks until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("screen monitor started", "interval", m.currentInterval())
	for {
		timer := time.NewTimer(m.currentInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("screen monitor stopped")
			return
		case <-timer.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) currentInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

func (m *Monitor) tick(ctx context.Context) {
	capture, err := m.host.CaptureWindow(ctx, "", "")
	if err != nil {
		m.logger.Debug("monitor capture failed", "error", err)
		return
	}

	m.mu.Lock()
	changed := m.lastHash != "" && m.lastHash != capture.Fingerprint
	first := m.lastHash == ""
	m.lastHash = capture.Fingerprint
	m.mu.Unlock()

	if first || !changed {
		return
	}

	m.logger.Debug("screen changed", "fingerprint", capture.Fingerprint[:12])
	if m.bus != nil && m.channel != "" {
		m.bus.SendOutbound(domain.OutboundMessage{
			Channel: m.channel,
			ChatID:  m.chatID,
			Content: "Screen content changed.",
			Format:  "text",
		})
	}
}
