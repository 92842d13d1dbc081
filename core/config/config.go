// Package config loads node settings from an optional .env file and VAULT_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env        string `mapstructure:"ENV"`
	DBPath     string `mapstructure:"DB_PATH"`
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	DEK        string `mapstructure:"DEK"` // base64 AES-256 key; empty disables at-rest encryption
	JWTSecret  string `mapstructure:"JWT_SECRET"`
	JWTIssuer  string `mapstructure:"JWT_ISSUER"`

	GenesisPath string `mapstructure:"GENESIS_PATH"`

	PriceFeedURL        string `mapstructure:"PRICE_FEED_URL"`
	StaticPrice         int64  `mapstructure:"STATIC_PRICE"`
	StaticPriceDecimals uint8  `mapstructure:"STATIC_PRICE_DECIMALS"`

	AttestationKeyPath     string        `mapstructure:"ATTESTATION_KEY_PATH"`
	AttestationDestination string        `mapstructure:"ATTESTATION_DESTINATION"`
	AttestationMaxAge      time.Duration `mapstructure:"ATTESTATION_MAX_AGE"`

	// ReceiptKeyPath is the payment gateway's public key. Native uploads and
	// deposits are refused without it.
	ReceiptKeyPath string        `mapstructure:"RECEIPT_KEY_PATH"`
	ReceiptMaxAge  time.Duration `mapstructure:"RECEIPT_MAX_AGE"`

	EventIndexPath       string `mapstructure:"EVENT_INDEX_PATH"`
	NodeKeyDir           string `mapstructure:"NODE_KEY_DIR"` // empty serves unsigned checkpoints
	SettlementWebhookURL string `mapstructure:"SETTLEMENT_WEBHOOK_URL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	"ENV", "DB_PATH", "LISTEN_ADDR", "DEK", "JWT_SECRET", "JWT_ISSUER",
	"GENESIS_PATH", "PRICE_FEED_URL", "STATIC_PRICE", "STATIC_PRICE_DECIMALS",
	"ATTESTATION_KEY_PATH", "ATTESTATION_DESTINATION", "ATTESTATION_MAX_AGE",
	"RECEIPT_KEY_PATH", "RECEIPT_MAX_AGE",
	"EVENT_INDEX_PATH", "NODE_KEY_DIR", "SETTLEMENT_WEBHOOK_URL",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOG_LEVEL", "LOG_FORMAT",
}

// Load reads envFile if it exists (existing environment wins) and then the
// VAULT_* environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("VAULT")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("DB_PATH", "./data/vault")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("JWT_ISSUER", "medvault")
	v.SetDefault("GENESIS_PATH", "./genesis.yaml")
	v.SetDefault("STATIC_PRICE_DECIMALS", 5)
	v.SetDefault("ATTESTATION_MAX_AGE", "0s")
	v.SetDefault("RECEIPT_MAX_AGE", "1h")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("VAULT_DB_PATH is required")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("VAULT_JWT_SECRET is required in production")
	}
	if c.PriceFeedURL != "" && c.StaticPrice > 0 {
		return errors.New("set only one of VAULT_PRICE_FEED_URL and VAULT_STATIC_PRICE")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limits must not be negative")
	}
	return nil
}

func (c *Config) IsDev() bool { return c.Env == "development" }

func (c *Config) IsProduction() bool { return c.Env == "production" }
