// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Chat          ChatConfig         `mapstructure:"chat"`
	Forum         ForumConfig        `mapstructure:"forum"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Sync          SyncConfig         `mapstructure:"sync"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`
}

// ChatConfig holds the chat-platform side: mode gating, destination
// allowlist per mode, role sets, and the archive delay.
type ChatConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	BotToken  string `mapstructure:"bot_token"`
	Mode      string `mapstructure:"mode"`       // prod | test | dry-run
	AllowProd bool   `mapstructure:"allow_prod"` // explicit production enable

	GuildID          int64 `mapstructure:"guild_id"`
	NotifyChannelID  int64 `mapstructure:"notify_channel_id"`
	ArchiveChannelID int64 `mapstructure:"archive_channel_id"`

	TestGuildID          int64 `mapstructure:"test_guild_id"`
	TestNotifyChannelID  int64 `mapstructure:"test_notify_channel_id"`
	TestArchiveChannelID int64 `mapstructure:"test_archive_channel_id"`

	ClaimRoleNames    []string `mapstructure:"claim_role_names"`
	OverrideRoleNames []string `mapstructure:"override_role_names"`

	ArchiveDelayMinutes int `mapstructure:"archive_delay_minutes"`
}

// ForumConfig holds the forum side: API credentials, webhook secrets
// (multiple, to support rotation), and the watched category per mode.
type ForumConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	APIKey         string   `mapstructure:"api_key"`
	APIUser        string   `mapstructure:"api_user"`
	WebhookSecrets []string `mapstructure:"webhook_secrets"`

	CategoryID     int64 `mapstructure:"category_id"`
	TestCategoryID int64 `mapstructure:"test_category_id"`

	TopicCacheTTLSeconds int `mapstructure:"topic_cache_ttl_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// SyncConfig holds retry ceilings and background cadences. These fix the
// open retry/backoff configuration as explicit values.
type SyncConfig struct {
	RetryMaxAttempts       int `mapstructure:"retry_max_attempts"`
	RetryInitialDelayMs    int `mapstructure:"retry_initial_delay_ms"`
	RetryMaxDelayMs        int `mapstructure:"retry_max_delay_ms"`
	ReconcileIntervalMins  int `mapstructure:"reconcile_interval_minutes"`
	CollaboratorTimeoutSec int `mapstructure:"collaborator_timeout_seconds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// NotificationConfig holds settings for operator alerts on degraded archives.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// --- Mode resolution ---

// IsDryRun reports whether mutating collaborator calls must short-circuit.
func (c ChatConfig) IsDryRun() bool {
	return strings.ToLower(c.Mode) == "dry-run"
}

// TargetGuildChannel resolves the allowlisted guild and notify channel for
// the current mode. prod refuses to resolve without the explicit enable.
func (c ChatConfig) TargetGuildChannel() (int64, int64, error) {
	switch strings.ToLower(c.Mode) {
	case "test", "dry-run":
		if c.TestGuildID == 0 || c.TestNotifyChannelID == 0 {
			return 0, 0, fmt.Errorf("chat.test_guild_id and chat.test_notify_channel_id must be set for mode %q", c.Mode)
		}
		return c.TestGuildID, c.TestNotifyChannelID, nil
	case "prod":
		if !c.AllowProd {
			return 0, 0, fmt.Errorf("refusing to run in mode prod without chat.allow_prod")
		}
		if c.GuildID == 0 || c.NotifyChannelID == 0 {
			return 0, 0, fmt.Errorf("chat.guild_id and chat.notify_channel_id must be set for mode prod")
		}
		return c.GuildID, c.NotifyChannelID, nil
	}
	return 0, 0, fmt.Errorf("invalid chat.mode: %q (expected prod|test|dry-run)", c.Mode)
}

// TargetArchiveChannel resolves the archive channel for the current mode;
// zero means no archive destination is configured.
func (c ChatConfig) TargetArchiveChannel() int64 {
	switch strings.ToLower(c.Mode) {
	case "test", "dry-run":
		return c.TestArchiveChannelID
	case "prod":
		return c.ArchiveChannelID
	}
	return 0
}

// TargetCategoryID resolves the watched forum category for the current mode.
func (f ForumConfig) TargetCategoryID(mode string) int64 {
	switch strings.ToLower(mode) {
	case "test", "dry-run":
		if f.TestCategoryID != 0 {
			return f.TestCategoryID
		}
	}
	return f.CategoryID
}

// ArchiveDelay returns the configured delay before a terminal-status record
// is archived. Zero means immediate.
func (c ChatConfig) ArchiveDelay() time.Duration {
	if c.ArchiveDelayMinutes <= 0 {
		return 0
	}
	return time.Duration(c.ArchiveDelayMinutes) * time.Minute
}
