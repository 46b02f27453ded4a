// Package infrastructure selects the storage backend named in the config.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/token-ledger/config"
	"github.com/ErlanBelekov/token-ledger/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/token-ledger/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/token-ledger/internal/repository"
)

// Store is everything the processes need from a backend.
type Store interface {
	repository.TokenStore
	repository.TokenReader
	repository.UserLoader
	repository.MaintenanceStore
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and makes sure the schema exists.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("storage ready", "driver", "postgres")
		return postgres.NewTokenStore(pool), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("storage ready", "driver", "sqlite", "path", cfg.SQLitePath)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}
}
