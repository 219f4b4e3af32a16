package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PARIMARKET_* environment variable
// overrides, and returns the final Config. The caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PARIMARKET_* environment variables
// and overwrites the corresponding Config fields when set. Operators
// inject secrets at deploy time this way without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "PARIMARKET_DATABASE_DSN")
	setStr(&cfg.Database.Host, "PARIMARKET_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PARIMARKET_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PARIMARKET_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "PARIMARKET_DATABASE_USER")
	setStr(&cfg.Database.Password, "PARIMARKET_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PARIMARKET_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "PARIMARKET_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PARIMARKET_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PARIMARKET_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PARIMARKET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PARIMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PARIMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PARIMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PARIMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PARIMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PARIMARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PARIMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PARIMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "PARIMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PARIMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PARIMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PARIMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PARIMARKET_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "PARIMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PARIMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PARIMARKET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PARIMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PARIMARKET_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PARIMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PARIMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PARIMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PARIMARKET_NOTIFY_EVENTS")
	setUint64(&cfg.Notify.ClaimAlertThreshold, "PARIMARKET_NOTIFY_CLAIM_ALERT_THRESHOLD")

	// ── Vault ──
	setStr(&cfg.Vault.Secret, "PARIMARKET_VAULT_SECRET")
	setStr(&cfg.Vault.EncryptedSecretPath, "PARIMARKET_VAULT_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Vault.SecretPassword, "PARIMARKET_VAULT_SECRET_PASSWORD")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "PARIMARKET_ARCHIVE_RETENTION_DAYS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PARIMARKET_MODE")
	setStr(&cfg.LogLevel, "PARIMARKET_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable
// is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
