package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deskbot/internal/agent"
	"deskbot/internal/analysis"
	"deskbot/internal/approval"
	"deskbot/internal/bus"
	"deskbot/internal/channel"
	"deskbot/internal/config"
	"deskbot/internal/domain"
	"deskbot/internal/host"
	"deskbot/internal/memory"
	"deskbot/internal/metrics"
	"deskbot/internal/policy"
	"deskbot/internal/provider"
	"deskbot/internal/resolve"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string
)

func main() {
	agent.SetVersion(version)

	root := &cobra.Command{
		Use:   "deskbot",
		Short: "deskbot: local desktop AI copilot",
		Long:  "deskbot watches your desktop, answers questions about it, and runs commands on your behalf behind a policy and approval gate.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.deskbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	out := os.Stderr
	if cfg.General.LogFile != "" {
		if f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfigOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
		logger = newLogger(cfg)
		logger.Warn("config not found, using defaults", "path", cfgPath, "error", err)
		return cfg
	}
	logger = newLogger(cfg)
	return cfg
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory and default rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			rulesPath := cfgDir + "/rules.yaml"
			cfg := config.Defaults()
			cfg.Policy.RulesPath = rulesPath
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if _, err := os.Stat(rulesPath); os.IsNotExist(err) {
				if err := policy.SaveRules(rulesPath, policy.DefaultRules()); err != nil {
					return err
				}
			}
			fmt.Printf("Initialized %s and %s\n", cfgPath, rulesPath)
			fmt.Println("Set model.apiKey (or DESKBOT_API_KEY via ${DESKBOT_API_KEY} in the config) before starting.")
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat in the terminal",
		RunE:  runChat,
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the daemon with all enabled chat surfaces",
		Long:  "Starts the engine plus every enabled surface (Telegram, metrics). Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

// wiring bundles everything runChat and runGateway share.
type wiring struct {
	cfg     *config.Config
	bus     *bus.InMemoryBus
	store   *memory.SQLiteStore
	engine  *agent.Engine
	desktop *host.Desktop
}

// noopAudit drops audit entries when policy.auditLog is off.
type noopAudit struct{}

func (noopAudit) LogAudit(ctx context.Context, entry domain.AuditEntry) error { return nil }

// monitor builds the screen-change monitor targeting the given surface,
// or nil when disabled.
func (w *wiring) newMonitor(channelName, chatID string) *agent.Monitor {
	if w.cfg.Capture.MonitorIntervalSeconds <= 0 {
		return nil
	}
	return agent.NewMonitor(agent.MonitorConfig{
		Host:     w.desktop,
		Bus:      w.bus,
		Logger:   logger,
		Channel:  channelName,
		ChatID:   chatID,
		Interval: time.Duration(w.cfg.Capture.MonitorIntervalSeconds) * time.Second,
	})
}

func buildWiring(ctx context.Context, cfg *config.Config) (*wiring, error) {
	store, err := memory.NewSQLiteStore(cfg.Memory.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	rules, err := policy.LoadRules(cfg.Policy.RulesPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("policy rules: %w", err)
	}
	classifier := policy.NewClassifier(rules)

	runner := host.NewRunner(
		time.Duration(cfg.Command.TimeoutSeconds)*time.Second,
		cfg.Command.MaxOutputBytes,
		logger,
	)
	browser := host.NewBrowser(logger)
	desktop := host.NewDesktop(runner, browser, logger)

	var audit domain.AuditLogger = noopAudit{}
	if cfg.Policy.AuditLog {
		audit = store
	}
	approvals := approval.NewManager(desktop, audit, logger)

	client := provider.NewGemini(provider.GeminiConfig{
		APIKey:  cfg.Model.APIKey,
		APIBase: cfg.Model.APIBase,
		Model:   cfg.Model.Model,
		Logger:  logger,
	})
	if err := client.Healthy(ctx); err != nil {
		logger.Warn("model unhealthy at startup", "provider", client.Name(), "error", err)
	} else {
		logger.Info("model healthy", "provider", client.Name())
	}
	analyzer := provider.NewVision(client, logger)

	messageBus := bus.New(100, logger)

	orch := agent.New(agent.Config{
		Client:        client,
		Host:          desktop,
		Analyzer:      analyzer,
		Policy:        classifier,
		Approvals:     approvals,
		Windows:       resolve.NewResolver(time.Duration(cfg.Capture.WindowCacheTTLSeconds) * time.Second),
		Analyses:      analysis.NewCache(cfg.Capture.AnalysisCacheMax, time.Duration(cfg.Capture.AnalysisCacheTTLSeconds)*time.Second),
		Limiter:       agent.NewRateLimiter(5, float64(cfg.Model.RateLimitPerMinute)),
		Logger:        logger,
		MaxIterations: cfg.General.MaxIterations,
	})

	engine := agent.NewEngine(agent.EngineConfig{
		Orchestrator: orch,
		Bus:          messageBus,
		Sessions:     agent.NewSessionManager(store, logger),
		Approvals:    approvals,
		Logger:       logger,
		MaxHistory:   cfg.Memory.MaxHistoryPerConversation,
	})

	return &wiring{cfg: cfg, bus: messageBus, store: store, engine: engine, desktop: desktop}, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDefaults()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := buildWiring(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.store.Close()
	defer w.bus.Close()

	go w.engine.Run(ctx)
	if mon := w.newMonitor("cli", "direct"); mon != nil {
		go mon.Start(ctx)
	}

	cli := channel.NewCLI(channel.CLIConfig{Logger: logger})
	return cli.Start(ctx, w.bus)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := buildWiring(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.store.Close()

	go w.engine.Run(ctx)

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		})
		go func() {
			if err := telegramCh.Start(ctx, w.bus); err != nil {
				logger.Error("telegram channel error", "error", err)
			}
		}()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc(cfg.Metrics.Endpoint, metrics.Collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Listen, "endpoint", cfg.Metrics.Endpoint)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Change announcements go to the first allowed Telegram chat.
	if telegramCh != nil && len(cfg.Channels.Telegram.AllowFrom) > 0 {
		if mon := w.newMonitor("telegram", cfg.Channels.Telegram.AllowFrom[0]); mon != nil {
			go mon.Start(ctx)
		}
	}

	logger.Info("gateway started. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("shutting down gateway")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if telegramCh != nil {
			telegramCh.Stop()
		}
		if metricsSrv != nil {
			metricsSrv.Shutdown(shutdownCtx)
		}
		w.bus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and model health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client := provider.NewGemini(provider.GeminiConfig{
				APIKey:  cfg.Model.APIKey,
				APIBase: cfg.Model.APIBase,
				Model:   cfg.Model.Model,
				Logger:  logger,
			})
			if err := client.Healthy(ctx); err != nil {
				logger.Info("model", "provider", client.Name(), "healthy", false, "error", err)
			} else {
				logger.Info("model", "provider", client.Name(), "healthy", true)
			}

			rules, err := policy.LoadRules(cfg.Policy.RulesPath)
			if err != nil {
				logger.Info("policy", "loaded", false, "error", err)
			} else {
				logger.Info("policy", "loaded", true, "rules", len(rules))
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. model.provider)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. model.model gemini-2.0-pro)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Printf("Updated %s in %s\n", args[0], cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect command policy rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded policy rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			rules, err := policy.LoadRules(cfg.Policy.RulesPath)
			if err != nil {
				return err
			}
			for _, r := range rules {
				line := r.Command
				for _, a := range r.ArgPrefix {
					line += " " + a
				}
				fmt.Printf("%-10s %-18s %s\n", r.Category, r.Level, line)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check [command] [args...]",
		Short: "Show the policy decision for a command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			rules, err := policy.LoadRules(cfg.Policy.RulesPath)
			if err != nil {
				return err
			}
			classifier := policy.NewClassifier(rules)
			decision := classifier.Classify(args[0], args[1:])
			fmt.Printf("level:    %s\ncategory: %s\nreason:   %s\n", decision.Level, decision.Category, decision.Reason)
			return nil
		},
	})

	return cmd
}
