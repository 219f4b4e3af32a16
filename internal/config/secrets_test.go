package config

import "testing"

func TestRedactedConfigMasksSensitiveFields(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.Database.DSN = "postgres://u:p@localhost/parimarket"
	cfg.Redis.Password = "redispass"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "s3secret"
	cfg.Server.APIKey = "apikey"
	cfg.Notify.TelegramToken = "bot:token"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/1/abc"
	cfg.Vault.Secret = "0123456789abcdef"
	cfg.Vault.SecretPassword = "filepass"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"database.password":          red.Database.Password,
		"database.dsn":               red.Database.DSN,
		"redis.password":             red.Redis.Password,
		"s3.access_key":              red.S3.AccessKey,
		"s3.secret_key":              red.S3.SecretKey,
		"server.api_key":             red.Server.APIKey,
		"notify.telegram_token":      red.Notify.TelegramToken,
		"notify.discord_webhook_url": red.Notify.DiscordWebhookURL,
		"vault.secret":               red.Vault.Secret,
		"vault.secret_password":      red.Vault.SecretPassword,
	} {
		if got != "***" {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}

	// The original must be untouched.
	if cfg.Database.Password != "hunter2" {
		t.Errorf("original mutated: database.password = %q", cfg.Database.Password)
	}
}

func TestRedactedConfigLeavesEmptyFieldsEmpty(t *testing.T) {
	cfg := Defaults()
	red := RedactedConfig(&cfg)
	if red.Database.Password != "" {
		t.Errorf("empty password redacted to %q, want empty", red.Database.Password)
	}
}
