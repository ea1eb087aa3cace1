// Package config defines the top-level configuration for the quoting agent
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by QUOTERD_* environment
// variables.
type Config struct {
	Market     MarketConfig     `toml:"market"`
	Quoting    QuotingConfig    `toml:"quoting"`
	Risk       RiskConfig       `toml:"risk"`
	Trial      TrialConfig      `toml:"trial"`
	Winddown   WinddownConfig   `toml:"winddown"`
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Notify     NotifyConfig     `toml:"notify"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// MarketConfig identifies the single market this session quotes.
type MarketConfig struct {
	Slug string `toml:"slug"`
}

// QuotingConfig holds the per-cycle quoting parameters.
type QuotingConfig struct {
	OrderSize        float64  `toml:"order_size"`
	LoopInterval     duration `toml:"loop_interval"`
	PostOnly         bool     `toml:"post_only"`
	MinTradeableSize float64  `toml:"min_tradeable_size"`
}

// RiskConfig holds the session safety limits.
type RiskConfig struct {
	MaxSessionLossUSDC float64  `toml:"max_session_loss_usdc"`
	StopLossPct        float64  `toml:"stop_loss_pct"`
	OneLegTimeout      duration `toml:"one_leg_timeout"`
	// MaxHold is the let-resolve cutoff: positions held longer stop being
	// managed and ride to settlement. Zero disables the cutoff.
	MaxHold          duration `toml:"max_hold"`
	ToxicSpreadPct   float64  `toml:"toxic_spread_pct"`
	ToxicMidDriftPct float64  `toml:"toxic_mid_drift_pct"`
	MaxAPIFailures   int      `toml:"max_api_failures"`
}

// TrialConfig caps a supervised trial session.
type TrialConfig struct {
	Enabled         bool    `toml:"enabled"`
	MaxOrders       int     `toml:"max_orders"`
	MaxNotionalUSDC float64 `toml:"max_notional_usdc"` // 0 disables
}

// WinddownConfig controls the forced exit ahead of market resolution.
type WinddownConfig struct {
	Lead duration `toml:"lead"`
}

// WalletConfig holds Ethereum wallet credentials. Only live mode needs them.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
}

// PostgresConfig holds connection parameters for the fill-event store.
// An empty DSN (and Host) disables the store; fills then go to CSV.
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"pool_max_conns"`
	MinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters for the session lock.
// An empty Addr disables the lock.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// FillsCSVPath is where the CSV fill recorder writes when Postgres is not
// configured.
const FillsCSVPath = "fills.csv"

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "500ms", "60s").
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

// Defaults returns a Config populated with the values a cautious first
// session should run with. These match config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "paper",
		LogLevel: "info",
		Quoting: QuotingConfig{
			OrderSize:        5,
			LoopInterval:     duration{500 * time.Millisecond},
			PostOnly:         true,
			MinTradeableSize: 5,
		},
		Risk: RiskConfig{
			MaxSessionLossUSDC: 2.0,
			StopLossPct:        15.0,
			OneLegTimeout:      duration{60 * time.Second},
			MaxHold:            duration{0},
			ToxicSpreadPct:     15.0,
			ToxicMidDriftPct:   25.0,
			MaxAPIFailures:     3,
		},
		Trial: TrialConfig{
			MaxOrders: 999,
		},
		Winddown: WinddownConfig{
			Lead: duration{5 * time.Minute},
		},
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			ChainID:       137,
			SignatureType: 0,
		},
		Postgres: PostgresConfig{
			Port:     5432,
			SSLMode:  "disable",
			MaxConns: 4,
			MinConns: 1,
		},
		Redis: RedisConfig{
			MaxRetries: 3,
		},
		Metrics: MetricsConfig{
			Port: 9190,
		},
	}
}

// Validate checks the configuration for the selected mode. It returns an
// error describing the first problem found.
func (c *Config) Validate() error {
	mode := strings.ToLower(c.Mode)
	if mode != "paper" && mode != "live" {
		return fmt.Errorf("config: mode must be \"paper\" or \"live\", got %q", c.Mode)
	}

	if strings.TrimSpace(c.Market.Slug) == "" {
		return fmt.Errorf("config: market.slug is required")
	}

	if c.Quoting.OrderSize <= 0 {
		return fmt.Errorf("config: quoting.order_size must be positive, got %v", c.Quoting.OrderSize)
	}
	if c.Quoting.LoopInterval.Duration <= 0 {
		return fmt.Errorf("config: quoting.loop_interval must be positive, got %v", c.Quoting.LoopInterval.Duration)
	}
	if c.Quoting.MinTradeableSize < 0 {
		return fmt.Errorf("config: quoting.min_tradeable_size must not be negative")
	}

	if c.Risk.MaxSessionLossUSDC <= 0 {
		return fmt.Errorf("config: risk.max_session_loss_usdc must be positive, got %v", c.Risk.MaxSessionLossUSDC)
	}
	if c.Risk.StopLossPct <= 0 {
		return fmt.Errorf("config: risk.stop_loss_pct must be positive, got %v", c.Risk.StopLossPct)
	}
	if c.Risk.OneLegTimeout.Duration <= 0 {
		return fmt.Errorf("config: risk.one_leg_timeout must be positive, got %v", c.Risk.OneLegTimeout.Duration)
	}
	if c.Risk.MaxHold.Duration < 0 {
		return fmt.Errorf("config: risk.max_hold must not be negative")
	}
	if c.Risk.MaxAPIFailures <= 0 {
		return fmt.Errorf("config: risk.max_api_failures must be positive, got %d", c.Risk.MaxAPIFailures)
	}

	if c.Trial.Enabled && c.Trial.MaxOrders <= 0 && c.Trial.MaxNotionalUSDC <= 0 {
		return fmt.Errorf("config: trial mode enabled but no caps configured")
	}

	if c.Winddown.Lead.Duration <= 0 {
		return fmt.Errorf("config: winddown.lead must be positive, got %v", c.Winddown.Lead.Duration)
	}

	if mode == "live" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			return fmt.Errorf("config: live mode requires wallet.private_key or wallet.encrypted_key_path")
		}
		if c.Polymarket.ClobHost == "" || c.Polymarket.GammaHost == "" {
			return fmt.Errorf("config: live mode requires polymarket.clob_host and polymarket.gamma_host")
		}
	}

	return nil
}

// PostgresEnabled reports whether a fill-event database was configured.
func (c *Config) PostgresEnabled() bool {
	return strings.TrimSpace(c.Postgres.DSN) != "" || strings.TrimSpace(c.Postgres.Host) != ""
}

// RedisEnabled reports whether the session lock backend was configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}
