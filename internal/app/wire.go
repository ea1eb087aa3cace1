package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polyquote/quoterd/internal/cache/redis"
	"github.com/polyquote/quoterd/internal/config"
	"github.com/polyquote/quoterd/internal/crypto"
	"github.com/polyquote/quoterd/internal/domain"
	"github.com/polyquote/quoterd/internal/gateway"
	"github.com/polyquote/quoterd/internal/metrics"
	"github.com/polyquote/quoterd/internal/notify"
	"github.com/polyquote/quoterd/internal/platform/polymarket"
	"github.com/polyquote/quoterd/internal/store/csvfile"
	"github.com/polyquote/quoterd/internal/store/postgres"
)

// sessionLockTTL bounds how long a crashed session can block its market.
const sessionLockTTL = 10 * time.Minute

// Dependencies bundles everything the quoting loop needs. Wire constructs
// them; the returned cleanup releases them in reverse order.
type Dependencies struct {
	Market    domain.Market
	Clob      *polymarket.ClobClient
	Gateway   gateway.Gateway
	FillStore domain.FillStore
	Notifier  *notify.Notifier
	Metrics   *metrics.Metrics
}

// Wire constructs the concrete dependencies for the configured mode.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	deps := &Dependencies{}

	// Market discovery via the Gamma API.
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	market, err := gamma.ResolveMarket(ctx, cfg.Market.Slug)
	if err != nil {
		return fail(fmt.Errorf("resolve market %q: %w", cfg.Market.Slug, err))
	}
	if !market.Active {
		return fail(fmt.Errorf("market %q is not accepting orders", cfg.Market.Slug))
	}
	deps.Market = market
	logger.Info("market resolved",
		"slug", market.Slug, "question", market.Question,
		"tick_size", market.TickSize, "end_date", market.EndDate)

	// Session lock: at most one quoter per market.
	if cfg.RedisEnabled() {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		unlock, err := redis.NewLockManager(rc).Acquire(ctx, "market:"+market.Slug, sessionLockTTL)
		if err != nil {
			return fail(fmt.Errorf("session lock: %w", err))
		}
		closers = append(closers, unlock)
	}

	// Execution gateway.
	mode := strings.ToLower(cfg.Mode)
	if mode == "live" {
		privateKey, err := crypto.LoadKey(
			cfg.Wallet.PrivateKey, cfg.Wallet.EncryptedKeyPath, cfg.Wallet.KeyPassword)
		if err != nil {
			return fail(fmt.Errorf("load wallet key: %w", err))
		}
		signer, err := crypto.NewSigner(privateKey, cfg.Polymarket.ChainID)
		if err != nil {
			return fail(fmt.Errorf("wallet signer: %w", err))
		}
		clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, cfg.Polymarket.SignatureType)
		if err := clob.DeriveAPIKey(ctx); err != nil {
			return fail(fmt.Errorf("derive api key: %w", err))
		}
		deps.Clob = clob
		deps.Gateway = gateway.NewLive(clob)
		logger.Info("live gateway ready", "address", signer.Address().Hex())
	} else {
		// Paper trades against real books, no credentials needed.
		clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, nil, cfg.Polymarket.SignatureType)
		deps.Clob = clob
		deps.Gateway = gateway.NewPaper(gateway.NewLive(clob), gateway.DefaultPaperCollateral, logger)
	}

	// Fill recorder: Postgres when configured, CSV otherwise.
	if cfg.PostgresEnabled() {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		closers = append(closers, pg.Close)
		if err := pg.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("postgres migrations: %w", err))
		}
		deps.FillStore = postgres.NewFillStore(pg.Pool())
	} else {
		fs, err := csvfile.NewFillStore(config.FillsCSVPath)
		if err != nil {
			return fail(fmt.Errorf("csv fill store: %w", err))
		}
		deps.FillStore = fs
	}

	// Notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// Metrics endpoint.
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		deps.Metrics = metrics.New(reg)
		srv := metrics.NewServer(reg, cfg.Metrics.Port, logger)
		srv.Start()
		closers = append(closers, func() { _ = srv.Close() })
	}

	return deps, cleanup, nil
}
