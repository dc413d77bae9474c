// Package store builds the result store selected by configuration.
package store

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/m4bench/cmd/bench/config"
	"github.com/HatiCode/m4bench/pkg/storage"
)

// New returns a MemoryStore or a RedisStore. Both implement io.Closer.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("using redis result store",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.RedisTTL,
		)
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return s, nil

	case "memory", "":
		logger.Info("using in-memory result store")
		return storage.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}
