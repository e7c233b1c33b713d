package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BotToken       string       `yaml:"bot_token"`
	AdminToken     string       `yaml:"admin_token"`
	AdminUserID    string       `yaml:"admin_user_id"`
	DatabasePath   string       `yaml:"database_path"`
	LogLevel       string       `yaml:"log_level"`
	ListenAddr     string       `yaml:"listen_addr"`
	SlackAPIURL    string       `yaml:"slack_api_url"`
	RetentionDays  int          `yaml:"retention_days"`
	CallTimeoutSec int          `yaml:"call_timeout_seconds"`
	Tracker        Tracker      `yaml:"tracker"`
	Health         HealthConfig `yaml:"health"`
}

type Tracker struct {
	MessageThreshold int `yaml:"message_threshold"`
	WindowSeconds    int `yaml:"window_seconds"`
	MaxTracked       int `yaml:"max_tracked"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:   "/data/slackmod.db",
		LogLevel:       "info",
		ListenAddr:     ":8080",
		SlackAPIURL:    "https://slack.com/api/",
		RetentionDays:  14,
		CallTimeoutSec: 10,
		Tracker: Tracker{
			MessageThreshold: 5,
			WindowSeconds:    180,
			MaxTracked:       50,
		},
		Health: HealthConfig{Enabled: true},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.BotToken == "" {
		return Config{}, errors.New("SLACK_BOT_TOKEN is required")
	}
	if cfg.AdminUserID == "" {
		return Config{}, errors.New("ADMIN_USER_ID is required")
	}
	if !strings.HasSuffix(cfg.SlackAPIURL, "/") {
		cfg.SlackAPIURL += "/"
	}
	if cfg.Tracker.MessageThreshold < 1 {
		cfg.Tracker.MessageThreshold = 1
	}
	if cfg.Tracker.MaxTracked < cfg.Tracker.MessageThreshold {
		cfg.Tracker.MaxTracked = cfg.Tracker.MessageThreshold
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.BotToken = envString("SLACK_BOT_TOKEN", cfg.BotToken)
	cfg.AdminToken = envString("SLACK_ADMIN_TOKEN", cfg.AdminToken)
	cfg.AdminUserID = envString("ADMIN_USER_ID", cfg.AdminUserID)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.ListenAddr = envString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.SlackAPIURL = envString("SLACK_API_URL", cfg.SlackAPIURL)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.CallTimeoutSec = envInt("CALL_TIMEOUT_SECONDS", cfg.CallTimeoutSec)
	cfg.Tracker.MessageThreshold = envInt("MESSAGE_THRESHOLD", cfg.Tracker.MessageThreshold)
	cfg.Tracker.WindowSeconds = envInt("TIME_WINDOW_SECONDS", cfg.Tracker.WindowSeconds)
	cfg.Tracker.MaxTracked = envInt("MAX_TRACKED_MESSAGES", cfg.Tracker.MaxTracked)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
