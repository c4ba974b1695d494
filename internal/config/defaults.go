package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:      "info",
			MaxIterations: 10,
		},
		Model: ModelConfig{
			Provider:           "gemini",
			Model:              "gemini-2.0-flash",
			RateLimitPerMinute: 30,
		},
		Policy: PolicyConfig{
			AuditLog: true,
		},
		Capture: CaptureConfig{
			WindowCacheTTLSeconds:   30,
			AnalysisCacheTTLSeconds: 120,
			AnalysisCacheMax:        64,
			MonitorIntervalSeconds:  0,
		},
		Command: CommandConfig{
			TimeoutSeconds: 30,
			MaxOutputBytes: 65536,
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{
				Enabled: true,
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
		},
		Memory: MemoryConfig{
			DBPath:                    "~/.deskbot/deskbot.db",
			MaxHistoryPerConversation: 100,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Listen:   "127.0.0.1:9090",
			Endpoint: "/metrics",
		},
	}
}
