package config

import (
	"strings"
	"testing"
)

func validServeConfig() Config {
	cfg := Defaults()
	cfg.Vault.Secret = "0123456789abcdef"
	return cfg
}

func TestValidateAcceptsDefaultsWithSecret(t *testing.T) {
	cfg := validServeConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateDemoNeedsNoExternalServices(t *testing.T) {
	cfg := Config{Mode: "demo", LogLevel: "info"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			"unknown mode",
			func(c *Config) { c.Mode = "replay" },
			"unknown mode",
		},
		{
			"unknown log level",
			func(c *Config) { c.LogLevel = "trace" },
			"unknown log_level",
		},
		{
			"missing database host",
			func(c *Config) { c.Database.Host = "" },
			"database: host",
		},
		{
			"dsn bypasses host check",
			func(c *Config) {
				c.Database.Host = ""
				c.Database.DSN = "postgres://localhost/parimarket"
			},
			"",
		},
		{
			"pool min above max",
			func(c *Config) { c.Database.PoolMinConns = 99 },
			"pool_min_conns must not exceed",
		},
		{
			"redis enabled without addr",
			func(c *Config) { c.Redis.Addr = "" },
			"redis: addr",
		},
		{
			"redis disabled skips checks",
			func(c *Config) {
				c.Redis.Enabled = false
				c.Redis.Addr = ""
			},
			"",
		},
		{
			"bad server port",
			func(c *Config) { c.Server.Port = 70000 },
			"server: port",
		},
		{
			"missing vault secret",
			func(c *Config) { c.Vault.Secret = "" },
			"vault: either secret",
		},
		{
			"encrypted secret without password",
			func(c *Config) {
				c.Vault.Secret = ""
				c.Vault.EncryptedSecretPath = "/etc/parimarket/secret.json"
			},
			"secret_password is required",
		},
		{
			"telegram token without chat id",
			func(c *Config) { c.Notify.TelegramToken = "tok" },
			"telegram_token and telegram_chat_id",
		},
		{
			"archive mode without bucket",
			func(c *Config) {
				c.Mode = "archive"
				c.S3.Bucket = ""
			},
			"s3: bucket",
		},
		{
			"archive mode with zero retention",
			func(c *Config) {
				c.Mode = "archive"
				c.Archive.RetentionDays = 0
			},
			"retention_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServeConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantMsg)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validServeConfig()
	cfg.Database.Host = ""
	cfg.Redis.Addr = ""
	cfg.Vault.Secret = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want combined error")
	}
	for _, want := range []string{"database: host", "redis: addr", "vault: either secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error missing %q:\n%s", want, err)
		}
	}
}
