package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/rules"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string         `yaml:"discord_token"`
	LogLevel      string         `yaml:"log_level"`
	RetentionDays int            `yaml:"retention_days"`
	RulePreset    string         `yaml:"rule_preset"`
	Database      DatabaseConfig `yaml:"database"`
	Health        HealthConfig   `yaml:"health"`
	Notifications NotifyConfig   `yaml:"notifications"`
	Raid          RaidConfig     `yaml:"raid"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type NotifyConfig struct {
	DailyQuota      int `yaml:"daily_quota"`
	DebounceSeconds int `yaml:"debounce_seconds"`
	PreviewLength   int `yaml:"preview_length"`
	KeywordLimit    int `yaml:"keyword_limit"`
	DedupeMinutes   int `yaml:"dedupe_minutes"`
}

type RaidConfig struct {
	MuteMinutes               int          `yaml:"mute_minutes"`
	NoticeSeconds             int          `yaml:"notice_seconds"`
	SweepIntervalSeconds      int          `yaml:"sweep_interval_seconds"`
	MaxProcessingDelaySeconds int          `yaml:"max_processing_delay_seconds"`
	CounterIntervalMinutes    int          `yaml:"counter_interval_minutes"`
	Defaults                  rules.Config `yaml:"defaults"`
}

func (n NotifyConfig) DebounceDelay() time.Duration {
	return time.Duration(n.DebounceSeconds) * time.Second
}

func (n NotifyConfig) DedupeTTL() time.Duration {
	return time.Duration(n.DedupeMinutes) * time.Minute
}

func (r RaidConfig) MuteDuration() time.Duration {
	return time.Duration(r.MuteMinutes) * time.Minute
}

func (r RaidConfig) NoticeDuration() time.Duration {
	return time.Duration(r.NoticeSeconds) * time.Second
}

func (r RaidConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalSeconds) * time.Second
}

func (r RaidConfig) MaxProcessingDelay() time.Duration {
	return time.Duration(r.MaxProcessingDelaySeconds) * time.Second
}

func (r RaidConfig) CounterInterval() time.Duration {
	return time.Duration(r.CounterIntervalMinutes) * time.Minute
}

func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		RetentionDays: 30,
		RulePreset:    "medium",
		Database:      DatabaseConfig{Driver: "sqlite", DSN: "/data/sentinel.db"},
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		Notifications: NotifyConfig{
			DailyQuota:      50,
			DebounceSeconds: 8,
			PreviewLength:   400,
			KeywordLimit:    25,
			DedupeMinutes:   10,
		},
		Raid: RaidConfig{
			MuteMinutes:               60,
			NoticeSeconds:             8,
			SweepIntervalSeconds:      120,
			MaxProcessingDelaySeconds: 10,
			CounterIntervalMinutes:    30,
			Defaults:                  presetRules("medium"),
		},
	}
}

// Load layers defaults, the rule preset, the YAML file and the environment,
// in that order.
func Load() (Config, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	data, _ := os.ReadFile(path)

	// The preset only seeds the rule defaults, so it is resolved before the
	// file overrides individual rules.
	var head struct {
		RulePreset string `yaml:"rule_preset"`
	}
	if data != nil {
		if err := yaml.Unmarshal(data, &head); err != nil {
			return Config{}, err
		}
	}
	cfg.RulePreset = normalizePreset(envString("RULE_PRESET", head.RulePreset))
	cfg.Raid.Defaults = presetRules(cfg.RulePreset)

	if data != nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	cfg.RulePreset = normalizePreset(cfg.RulePreset)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if err := cfg.Raid.Defaults.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Database.Driver = envString("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envString("DATABASE_DSN", cfg.Database.DSN)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Notifications.DailyQuota = envInt("NOTIFY_DAILY_QUOTA", cfg.Notifications.DailyQuota)
	cfg.Notifications.DebounceSeconds = envInt("NOTIFY_DEBOUNCE_SECONDS", cfg.Notifications.DebounceSeconds)
	cfg.Notifications.PreviewLength = envInt("NOTIFY_PREVIEW_LENGTH", cfg.Notifications.PreviewLength)
	cfg.Notifications.KeywordLimit = envInt("NOTIFY_KEYWORD_LIMIT", cfg.Notifications.KeywordLimit)
	cfg.Notifications.DedupeMinutes = envInt("NOTIFY_DEDUPE_MINUTES", cfg.Notifications.DedupeMinutes)
	cfg.RulePreset = envString("RULE_PRESET", cfg.RulePreset)
	cfg.Raid.MuteMinutes = envInt("RAID_MUTE_MINUTES", cfg.Raid.MuteMinutes)
	cfg.Raid.NoticeSeconds = envInt("RAID_NOTICE_SECONDS", cfg.Raid.NoticeSeconds)
	cfg.Raid.SweepIntervalSeconds = envInt("RAID_SWEEP_INTERVAL_SECONDS", cfg.Raid.SweepIntervalSeconds)
	cfg.Raid.MaxProcessingDelaySeconds = envInt("RAID_MAX_PROCESSING_DELAY_SECONDS", cfg.Raid.MaxProcessingDelaySeconds)
	cfg.Raid.CounterIntervalMinutes = envInt("RAID_COUNTER_INTERVAL_MINUTES", cfg.Raid.CounterIntervalMinutes)
	cfg.Raid.Defaults.LogChannelID = envString("RAID_DEFAULT_LOG_CHANNEL", cfg.Raid.Defaults.LogChannelID)
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

func normalizePreset(value string) string {
	switch lower := strings.ToLower(strings.TrimSpace(value)); lower {
	case "low", "medium", "high":
		return lower
	default:
		return "medium"
	}
}

// presetRules returns the raid rule set new guilds start with. Protection is
// off until a guild enables it.
func presetRules(preset string) rules.Config {
	offenses := 3
	offenseWindow := 5 * time.Minute
	mentions, text, images := 8, 6, 4

	switch preset {
	case "low":
		mentions, text, images = 12, 8, 6
		offenses = 4
	case "high":
		mentions, text, images = 5, 4, 3
		offenses = 2
		offenseWindow = 10 * time.Minute
	}

	return rules.Config{
		MassMentions: rules.Rule{Enabled: true, Threshold: mentions, DeleteOnTrigger: true, MaxOffenses: offenses, OffenseWindow: offenseWindow},
		TextSpam:     rules.Rule{Enabled: true, Threshold: text, Window: 5 * time.Second, DeleteOnTrigger: true, MaxOffenses: offenses, OffenseWindow: offenseWindow},
		ImageSpam:    rules.Rule{Enabled: true, Threshold: images, Window: 20 * time.Second, DeleteOnTrigger: true, MaxOffenses: offenses, OffenseWindow: offenseWindow},
		PhraseBlacklist: rules.BlacklistRule{
			Rule: rules.Rule{Enabled: true, DeleteOnTrigger: true, MaxOffenses: offenses, OffenseWindow: offenseWindow},
		},
	}
}
