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
// built-in defaults, applies QUOTERD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known QUOTERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Market / quoting ──
	setStr(&cfg.Market.Slug, "QUOTERD_MARKET_SLUG")
	setFloat64(&cfg.Quoting.OrderSize, "QUOTERD_QUOTING_ORDER_SIZE")
	setDuration(&cfg.Quoting.LoopInterval, "QUOTERD_QUOTING_LOOP_INTERVAL")
	setBool(&cfg.Quoting.PostOnly, "QUOTERD_QUOTING_POST_ONLY")
	setFloat64(&cfg.Quoting.MinTradeableSize, "QUOTERD_QUOTING_MIN_TRADEABLE_SIZE")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxSessionLossUSDC, "QUOTERD_RISK_MAX_SESSION_LOSS_USDC")
	setFloat64(&cfg.Risk.StopLossPct, "QUOTERD_RISK_STOP_LOSS_PCT")
	setDuration(&cfg.Risk.OneLegTimeout, "QUOTERD_RISK_ONE_LEG_TIMEOUT")
	setDuration(&cfg.Risk.MaxHold, "QUOTERD_RISK_MAX_HOLD")
	setFloat64(&cfg.Risk.ToxicSpreadPct, "QUOTERD_RISK_TOXIC_SPREAD_PCT")
	setFloat64(&cfg.Risk.ToxicMidDriftPct, "QUOTERD_RISK_TOXIC_MID_DRIFT_PCT")
	setInt(&cfg.Risk.MaxAPIFailures, "QUOTERD_RISK_MAX_API_FAILURES")

	// ── Trial ──
	setBool(&cfg.Trial.Enabled, "QUOTERD_TRIAL_ENABLED")
	setInt(&cfg.Trial.MaxOrders, "QUOTERD_TRIAL_MAX_ORDERS")
	setFloat64(&cfg.Trial.MaxNotionalUSDC, "QUOTERD_TRIAL_MAX_NOTIONAL_USDC")

	// ── Winddown ──
	setDuration(&cfg.Winddown.Lead, "QUOTERD_WINDDOWN_LEAD")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "QUOTERD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "QUOTERD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "QUOTERD_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "QUOTERD_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "QUOTERD_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.ChainID, "QUOTERD_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "QUOTERD_POLYMARKET_SIGNATURE_TYPE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "QUOTERD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "QUOTERD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "QUOTERD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "QUOTERD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "QUOTERD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "QUOTERD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "QUOTERD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.MaxConns, "QUOTERD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.MinConns, "QUOTERD_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "QUOTERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "QUOTERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "QUOTERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "QUOTERD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "QUOTERD_REDIS_MAX_RETRIES")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "QUOTERD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "QUOTERD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "QUOTERD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "QUOTERD_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "QUOTERD_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "QUOTERD_METRICS_PORT")

	// ── Top-level ──
	setStr(&cfg.Mode, "QUOTERD_MODE")
	setStr(&cfg.LogLevel, "QUOTERD_LOG_LEVEL")
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
