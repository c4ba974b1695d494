package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for deskbot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Model    ModelConfig    `json:"model"`
	Policy   PolicyConfig   `json:"policy"`
	Capture  CaptureConfig  `json:"capture"`
	Command  CommandConfig  `json:"command"`
	Channels ChannelsConfig `json:"channels"`
	Memory   MemoryConfig   `json:"memory"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel      string `json:"logLevel"`
	LogFile       string `json:"logFile,omitempty"`
	MaxIterations int    `json:"maxIterations"`
}

// ModelConfig configures the reasoning service.
type ModelConfig struct {
	Provider           string `json:"provider"`
	APIKey             string `json:"apiKey,omitempty"`
	APIBase            string `json:"apiBase,omitempty"`
	Model              string `json:"model,omitempty"`
	RateLimitPerMinute int    `json:"rateLimitPerMinute"`
}

// PolicyConfig configures command classification. RulesPath empty means
// built-in rules.
type PolicyConfig struct {
	RulesPath string `json:"rulesPath,omitempty"`
	AuditLog  bool   `json:"auditLog"`
}

// CaptureConfig configures window capture and analysis caching.
// MonitorIntervalSeconds 0 disables the background screen monitor.
type CaptureConfig struct {
	WindowCacheTTLSeconds   int `json:"windowCacheTtlSeconds"`
	AnalysisCacheTTLSeconds int `json:"analysisCacheTtlSeconds"`
	AnalysisCacheMax        int `json:"analysisCacheMax"`
	MonitorIntervalSeconds  int `json:"monitorIntervalSeconds"`
}

type CommandConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
	MaxOutputBytes int `json:"maxOutputBytes"`
}

type ChannelsConfig struct {
	CLI      CLIConfig      `json:"cli"`
	Telegram TelegramConfig `json:"telegram"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	ParseMode string         `json:"parseMode"`
}

type MemoryConfig struct {
	DBPath                    string `json:"dbPath"`
	MaxHistoryPerConversation int    `json:"maxHistoryPerConversation"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Listen   string `json:"listen"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays
// containing both strings and numbers, so Telegram user IDs can be
// written unquoted.
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.deskbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deskbot"
	}
	return filepath.Join(home, ".deskbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:-default} before parsing.
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.Policy.RulesPath = ExpandPath(cfg.Policy.RulesPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxIterations < 1 || cfg.General.MaxIterations > 50 {
		errs = append(errs, "general.maxIterations must be between 1 and 50")
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Model.Provider == "" {
		errs = append(errs, "model.provider is required")
	}
	if cfg.Model.RateLimitPerMinute < 0 {
		errs = append(errs, "model.rateLimitPerMinute must be >= 0")
	}

	if cfg.Command.TimeoutSeconds < 1 {
		errs = append(errs, "command.timeoutSeconds must be >= 1")
	}
	if cfg.Command.MaxOutputBytes < 1024 {
		errs = append(errs, "command.maxOutputBytes must be >= 1024")
	}

	if cfg.Capture.AnalysisCacheMax < 1 {
		errs = append(errs, "capture.analysisCacheMax must be >= 1")
	}
	if cfg.Capture.WindowCacheTTLSeconds < 1 {
		errs = append(errs, "capture.windowCacheTtlSeconds must be >= 1")
	}

	if cfg.Memory.MaxHistoryPerConversation < 1 {
		errs = append(errs, "memory.maxHistoryPerConversation must be >= 1")
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
