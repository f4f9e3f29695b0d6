package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "sideways"
	cfg.Trading.TradeFeeRate = 1.5
	cfg.FastPool.BaseOdds = 0.5
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
	require.Contains(t, err.Error(), "trade_fee_rate")
	require.Contains(t, err.Error(), "base_odds")
	require.Contains(t, err.Error(), "redis: addr")
}

func TestValidate_DevModeSkipsBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "dev"
	cfg.Database = DatabaseConfig{}
	cfg.Redis = RedisConfig{}

	require.NoError(t, cfg.Validate())
}

func TestValidate_S3OnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.S3.Enabled = false
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate())

	cfg.S3.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "s3: bucket")
}

func TestValidate_AdminPairing(t *testing.T) {
	cfg := Defaults()
	cfg.Admin.Key = "admin-key"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "admin: key and secret")

	cfg.Admin.Secret = "hunter2"
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "jobs"
log_level = "debug"

[trading]
trade_fee_rate = 0.03

[oracle]
symbols = ["ETHUSDT", "BTCUSDT"]
max_price_age = "45s"

[[fastpool.assets]]
symbol = "ETHUSDT"
category = "crypto"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "jobs", cfg.Mode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 0.03, cfg.Trading.TradeFeeRate)
	require.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, cfg.Oracle.Symbols)
	require.Equal(t, 45*time.Second, cfg.Oracle.MaxPriceAge.Duration)
	require.Equal(t, []FastPoolAsset{{Symbol: "ETHUSDT", Category: "crypto"}}, cfg.FastPool.Assets)

	// Untouched sections keep their defaults.
	require.Equal(t, 0.01, cfg.Trading.CancelFeeRate)
	require.Equal(t, 8000, cfg.Server.Port)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SETTLE_DATABASE_URL", "postgres://settle:pw@db:5432/settlement")
	t.Setenv("SETTLE_REDIS_PASSWORD", "redis-pw")
	t.Setenv("SETTLE_TRADING_TRADE_FEE_RATE", "0.04")
	t.Setenv("SETTLE_ORACLE_SYMBOLS", "BTCUSDT, ETHUSDT")
	t.Setenv("SETTLE_RECONCILE_INTERVAL", "90s")
	t.Setenv("SETTLE_SERVER_ENABLED", "false")
	t.Setenv("SETTLE_MODE", "serve")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	require.Equal(t, "postgres://settle:pw@db:5432/settlement", cfg.Database.DSN)
	require.Equal(t, "redis-pw", cfg.Redis.Password)
	require.Equal(t, 0.04, cfg.Trading.TradeFeeRate)
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Oracle.Symbols)
	require.Equal(t, 90*time.Second, cfg.Reconcile.Interval.Duration)
	require.False(t, cfg.Server.Enabled)
	require.Equal(t, "serve", cfg.Mode)
}

func TestEnvOverrides_EmptyVarsIgnored(t *testing.T) {
	t.Setenv("SETTLE_DATABASE_HOST", "")
	t.Setenv("SETTLE_TRADING_TRADE_FEE_RATE", "not a number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	require.Equal(t, "localhost", cfg.Database.Host)
	require.Equal(t, 0.02, cfg.Trading.TradeFeeRate)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "db-pw"
	cfg.Redis.Password = "redis-pw"
	cfg.Admin.Key = "admin-key"
	cfg.Admin.Secret = "admin-secret"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Database.Password)
	require.Equal(t, "***", red.Redis.Password)
	require.Equal(t, "***", red.Admin.Secret)

	// The original is untouched.
	require.Equal(t, "db-pw", cfg.Database.Password)
	require.Equal(t, "admin-secret", cfg.Admin.Secret)
}
