package environment

import (
	"context"
	"log/slog"
	"time"

	"dinedesk/internal/config"
	"dinedesk/internal/infra/sqlite3"
	"dinedesk/internal/infra/yookassa"
)

type Clients struct {
	SQLiteDB *sqlite3.DB
	YooKassa *yookassa.Client
}

func newClients(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Clients, error) {
	sqliteDB, err := provideSQLiteDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Clients{
		SQLiteDB: sqliteDB,
		YooKassa: provideYooKassa(cfg, logger),
	}, nil
}

func provideSQLiteDB(ctx context.Context, cfg config.Config) (*sqlite3.DB, error) {
	maxLifetimeStr := cfg.DB.MaxLifetime
	if maxLifetimeStr == "" {
		maxLifetimeStr = "5m"
	}
	maxLifetime, err := time.ParseDuration(maxLifetimeStr)
	if err != nil {
		return nil, err
	}

	opts := []sqlite3.Option{
		sqlite3.WithDSN(cfg.DB.Path),
		sqlite3.WithMaxOpenConns(cfg.DB.MaxOpenConns),
		sqlite3.WithMaxIdleConns(cfg.DB.MaxIdleConns),
		sqlite3.WithConnMaxLifetime(maxLifetime),
		sqlite3.WithMigrate(),
	}

	return sqlite3.New(ctx, opts...)
}

func provideYooKassa(cfg config.Config, logger *slog.Logger) *yookassa.Client {
	if !cfg.YooKassa.Enabled() {
		logger.Warn("YooKassa is not configured, online payments will be marked not_configured")
	}
	return yookassa.NewClient(
		cfg.YooKassa.ShopID,
		cfg.YooKassa.SecretKey,
		cfg.YooKassa.ReturnURL,
		cfg.YooKassa.Currency,
		logger.With("component", "yookassa"),
	)
}
