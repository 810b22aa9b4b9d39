// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "application-sync/internal/common/errors"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// Enable ENV override like CHAT_BOT_TOKEN.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, ignored if not present.
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the environment when the YAML left
// them empty; credentials are expected to arrive this way in deployment.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Chat.BotToken == "" {
		if val := os.Getenv("CHAT_BOT_TOKEN"); val != "" {
			cfg.Chat.BotToken = val
		}
	}
	if cfg.Forum.APIKey == "" {
		if val := os.Getenv("FORUM_API_KEY"); val != "" {
			cfg.Forum.APIKey = val
		}
	}
	if cfg.Forum.APIUser == "" {
		if val := os.Getenv("FORUM_API_USER"); val != "" {
			cfg.Forum.APIUser = val
		}
	}
	if len(cfg.Forum.WebhookSecrets) == 0 {
		if raw := strings.TrimSpace(os.Getenv("FORUM_WEBHOOK_SECRETS")); raw != "" {
			cfg.Forum.WebhookSecrets = splitCSV(raw)
		} else if single := strings.TrimSpace(os.Getenv("FORUM_WEBHOOK_SECRET")); single != "" {
			cfg.Forum.WebhookSecrets = []string{single}
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "application-sync"
	}

	if cfg.Server.ListenHost == "" {
		cfg.Server.ListenHost = "0.0.0.0"
	}
	if cfg.Server.ListenPort == 0 {
		cfg.Server.ListenPort = 5055
	}

	if cfg.Chat.Mode == "" {
		cfg.Chat.Mode = "test"
	}
	if cfg.Chat.ArchiveDelayMinutes < 0 {
		cfg.Chat.ArchiveDelayMinutes = 0
	}
	if len(cfg.Chat.ClaimRoleNames) == 0 {
		cfg.Chat.ClaimRoleNames = []string{"RRO", "RRO ICs"}
	}
	if len(cfg.Chat.OverrideRoleNames) == 0 {
		cfg.Chat.OverrideRoleNames = []string{"RRO ICs", "REME Discord"}
	}

	if cfg.Forum.TopicCacheTTLSeconds == 0 {
		cfg.Forum.TopicCacheTTLSeconds = 300
	}
	cfg.Forum.BaseURL = strings.TrimRight(cfg.Forum.BaseURL, "/")

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "application-sync-audit"
	}

	if cfg.Sync.RetryMaxAttempts == 0 {
		cfg.Sync.RetryMaxAttempts = 3
	}
	if cfg.Sync.RetryInitialDelayMs == 0 {
		cfg.Sync.RetryInitialDelayMs = 500
	}
	if cfg.Sync.RetryMaxDelayMs == 0 {
		cfg.Sync.RetryMaxDelayMs = 5000
	}
	if cfg.Sync.ReconcileIntervalMins == 0 {
		cfg.Sync.ReconcileIntervalMins = 10
	}
	if cfg.Sync.CollaboratorTimeoutSec == 0 {
		cfg.Sync.CollaboratorTimeoutSec = 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields. Failure here is a
// fatal configuration error: the process must refuse to start.
func validateConfig(cfg *Config) error {
	if cfg.Chat.BotToken == "" {
		return apperrors.NewFatalConfigError("chat.bot_token is required")
	}
	if _, _, err := cfg.Chat.TargetGuildChannel(); err != nil {
		return apperrors.NewFatalConfigError(err.Error())
	}

	if cfg.Forum.BaseURL == "" {
		return apperrors.NewFatalConfigError("forum.base_url is required")
	}
	if cfg.Forum.CategoryID == 0 {
		return apperrors.NewFatalConfigError("forum.category_id is required")
	}
	if len(cfg.Forum.WebhookSecrets) == 0 {
		return apperrors.NewFatalConfigError("at least one forum.webhook_secrets entry is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return apperrors.NewFatalConfigError("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return apperrors.NewFatalConfigError("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return apperrors.NewFatalConfigError("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return apperrors.NewFatalConfigError("database.redis.address is required")
	}

	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return apperrors.NewFatalConfigError("database.elasticsearch.addresses is required when enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
