// Package config defines the top-level configuration for the settlement
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SETTLE_* environment variables.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Oracle    OracleConfig    `toml:"oracle"`
	Trading   TradingConfig   `toml:"trading"`
	FastPool  FastPoolConfig  `toml:"fastpool"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Jobs      JobsConfig      `toml:"jobs"`
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters. A non-empty DSN
// takes precedence over the discrete fields.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the monthly
// archive export. When Enabled is false the archiver never runs and the
// remaining fields are ignored.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OracleConfig holds the upstream price feed parameters. MaxPriceAge is the
// freshness gate shared by order execution and the feed watchdog.
type OracleConfig struct {
	WsHost      string   `toml:"ws_host"`
	Symbols     []string `toml:"symbols"`
	MaxPriceAge duration `toml:"max_price_age"`
}

// TradingConfig holds the fee rates and per-user rate limits for the
// exchange-order and cashout paths.
type TradingConfig struct {
	TradeFeeRate    float64  `toml:"trade_fee_rate"`
	CancelFeeRate   float64  `toml:"cancel_fee_rate"`
	CashoutFeeRate  float64  `toml:"cashout_fee_rate"`
	OrderRateLimit  int      `toml:"order_rate_limit"`
	OrderRateWindow duration `toml:"order_rate_window"`
	// LimitOrderMaxAge is how long a resting limit order may stay pending
	// before the expiry sweep cancels it with a full refund.
	LimitOrderMaxAge duration `toml:"limit_order_max_age"`
}

// FastPoolAsset is one traded symbol the fast-pool scheduler runs rounds for.
type FastPoolAsset struct {
	Symbol   string `toml:"symbol"`
	Category string `toml:"category"`
}

// FastPoolConfig holds the 60-second round parameters.
type FastPoolConfig struct {
	Assets        []FastPoolAsset `toml:"assets"`
	BaseOdds      float64         `toml:"base_odds"`
	BetRateLimit  int             `toml:"bet_rate_limit"`
	BetRateWindow duration        `toml:"bet_rate_window"`
}

// ReconcileConfig holds the ledger reconciliation sweep parameters.
type ReconcileConfig struct {
	Interval duration `toml:"interval"`
	// UrgentThreshold classifies a discrepancy as urgent for alerting.
	UrgentThreshold float64 `toml:"urgent_threshold"`
}

// JobsConfig holds the loop intervals for the background schedulers. The
// round tick must be well under the 60-second round length so rollover and
// settlement never lag a full round behind.
type JobsConfig struct {
	RoundTick   duration `toml:"round_tick"`
	LimitBatch  duration `toml:"limit_batch"`
	OrderExpiry duration `toml:"order_expiry"`
	Watchdog    duration `toml:"watchdog"`
	Archive     duration `toml:"archive"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	ApiKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// AdminConfig holds the HMAC credentials that gate the admin endpoints.
// Either secret or encrypted_secret_path (plus secret_password) must be set
// for the admin surface to be enabled.
type AdminConfig struct {
	Key                 string `toml:"key"`
	Secret              string `toml:"secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "settlement",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "settlement-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			WsHost:      "wss://stream.binance.com:9443/ws",
			Symbols:     []string{"BTCUSDT"},
			MaxPriceAge: duration{30 * time.Second},
		},
		Trading: TradingConfig{
			TradeFeeRate:     0.02,
			CancelFeeRate:    0.01,
			CashoutFeeRate:   0.05,
			OrderRateLimit:   10,
			OrderRateWindow:  duration{time.Second},
			LimitOrderMaxAge: duration{24 * time.Hour},
		},
		FastPool: FastPoolConfig{
			Assets: []FastPoolAsset{
				{Symbol: "BTCUSDT", Category: "crypto"},
			},
			BaseOdds:      1.9,
			BetRateLimit:  5,
			BetRateWindow: duration{time.Second},
		},
		Reconcile: ReconcileConfig{
			Interval:        duration{5 * time.Minute},
			UrgentThreshold: 100.0,
		},
		Jobs: JobsConfig{
			RoundTick:   duration{time.Second},
			LimitBatch:  duration{2 * time.Second},
			OrderExpiry: duration{time.Minute},
			Watchdog:    duration{15 * time.Second},
			Archive:     duration{12 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"reconcile_mismatch", "feed_paused", "settle_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"jobs":  true,
	"full":  true,
	"dev":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, jobs, full, dev)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database and Redis are required for every mode except dev, which runs
	// entirely on in-memory stores.
	dev := strings.ToLower(c.Mode) == "dev"
	if !dev {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 — only when the archive export is enabled.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Oracle
	if c.Oracle.WsHost == "" {
		errs = append(errs, "oracle: ws_host must not be empty")
	}
	if len(c.Oracle.Symbols) == 0 {
		errs = append(errs, "oracle: at least one symbol is required")
	}
	if c.Oracle.MaxPriceAge.Duration <= 0 {
		errs = append(errs, "oracle: max_price_age must be > 0")
	}

	// Trading — fee rates are fractions, not percents.
	for _, f := range []struct {
		name string
		rate float64
	}{
		{"trade_fee_rate", c.Trading.TradeFeeRate},
		{"cancel_fee_rate", c.Trading.CancelFeeRate},
		{"cashout_fee_rate", c.Trading.CashoutFeeRate},
	} {
		if f.rate < 0 || f.rate >= 1 {
			errs = append(errs, fmt.Sprintf("trading: %s must be in [0, 1), got %g", f.name, f.rate))
		}
	}
	if c.Trading.LimitOrderMaxAge.Duration <= 0 {
		errs = append(errs, "trading: limit_order_max_age must be > 0")
	}

	// FastPool
	if len(c.FastPool.Assets) == 0 {
		errs = append(errs, "fastpool: at least one asset is required")
	}
	for i, a := range c.FastPool.Assets {
		if a.Symbol == "" {
			errs = append(errs, fmt.Sprintf("fastpool: assets[%d].symbol must not be empty", i))
		}
	}
	if c.FastPool.BaseOdds <= 1 {
		errs = append(errs, fmt.Sprintf("fastpool: base_odds must be > 1, got %g", c.FastPool.BaseOdds))
	}

	// Reconcile
	if c.Reconcile.Interval.Duration <= 0 {
		errs = append(errs, "reconcile: interval must be > 0")
	}
	if c.Reconcile.UrgentThreshold <= 0 {
		errs = append(errs, "reconcile: urgent_threshold must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Admin — key and a secret source must be set together, or both empty.
	hasSecret := c.Admin.Secret != "" || c.Admin.EncryptedSecretPath != ""
	if (c.Admin.Key != "") != hasSecret {
		errs = append(errs, "admin: key and secret (or encrypted_secret_path) must be set together")
	}
	if c.Admin.EncryptedSecretPath != "" && c.Admin.SecretPassword == "" {
		errs = append(errs, "admin: secret_password is required when encrypted_secret_path is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
