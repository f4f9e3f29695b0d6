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
// built-in defaults, applies SETTLE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known SETTLE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "SETTLE_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "SETTLE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "SETTLE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SETTLE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SETTLE_DATABASE_NAME")
	setStr(&cfg.Database.User, "SETTLE_DATABASE_USER")
	setStr(&cfg.Database.Password, "SETTLE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SETTLE_DATABASE_SSLMODE")
	setStr(&cfg.Database.SSLMode, "SETTLE_DATABASE_SSL_MODE") // compatibility alias
	setInt(&cfg.Database.PoolMaxConns, "SETTLE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SETTLE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SETTLE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SETTLE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SETTLE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SETTLE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SETTLE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SETTLE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SETTLE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SETTLE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SETTLE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SETTLE_S3_REGION")
	setStr(&cfg.S3.Bucket, "SETTLE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SETTLE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SETTLE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SETTLE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SETTLE_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.WsHost, "SETTLE_ORACLE_WS_HOST")
	setStringSlice(&cfg.Oracle.Symbols, "SETTLE_ORACLE_SYMBOLS")
	setDuration(&cfg.Oracle.MaxPriceAge, "SETTLE_ORACLE_MAX_PRICE_AGE")

	// ── Trading ──
	setFloat64(&cfg.Trading.TradeFeeRate, "SETTLE_TRADING_TRADE_FEE_RATE")
	setFloat64(&cfg.Trading.CancelFeeRate, "SETTLE_TRADING_CANCEL_FEE_RATE")
	setFloat64(&cfg.Trading.CashoutFeeRate, "SETTLE_TRADING_CASHOUT_FEE_RATE")
	setInt(&cfg.Trading.OrderRateLimit, "SETTLE_TRADING_ORDER_RATE_LIMIT")
	setDuration(&cfg.Trading.OrderRateWindow, "SETTLE_TRADING_ORDER_RATE_WINDOW")
	setDuration(&cfg.Trading.LimitOrderMaxAge, "SETTLE_TRADING_LIMIT_ORDER_MAX_AGE")

	// ── FastPool ──
	setFloat64(&cfg.FastPool.BaseOdds, "SETTLE_FASTPOOL_BASE_ODDS")
	setInt(&cfg.FastPool.BetRateLimit, "SETTLE_FASTPOOL_BET_RATE_LIMIT")
	setDuration(&cfg.FastPool.BetRateWindow, "SETTLE_FASTPOOL_BET_RATE_WINDOW")

	// ── Reconcile ──
	setDuration(&cfg.Reconcile.Interval, "SETTLE_RECONCILE_INTERVAL")
	setFloat64(&cfg.Reconcile.UrgentThreshold, "SETTLE_RECONCILE_URGENT_THRESHOLD")

	// ── Jobs ──
	setDuration(&cfg.Jobs.RoundTick, "SETTLE_JOBS_ROUND_TICK")
	setDuration(&cfg.Jobs.LimitBatch, "SETTLE_JOBS_LIMIT_BATCH")
	setDuration(&cfg.Jobs.OrderExpiry, "SETTLE_JOBS_ORDER_EXPIRY")
	setDuration(&cfg.Jobs.Watchdog, "SETTLE_JOBS_WATCHDOG")
	setDuration(&cfg.Jobs.Archive, "SETTLE_JOBS_ARCHIVE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SETTLE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SETTLE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SETTLE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "SETTLE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SETTLE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SETTLE_SERVER_RATE_WINDOW")

	// ── Admin ──
	setStr(&cfg.Admin.Key, "SETTLE_ADMIN_KEY")
	setStr(&cfg.Admin.Secret, "SETTLE_ADMIN_SECRET")
	setStr(&cfg.Admin.EncryptedSecretPath, "SETTLE_ADMIN_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Admin.SecretPassword, "SETTLE_ADMIN_SECRET_PASSWORD")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SETTLE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SETTLE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SETTLE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SETTLE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SETTLE_MODE")
	setStr(&cfg.LogLevel, "SETTLE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
