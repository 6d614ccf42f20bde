package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"storywatch/internal/config"
	"storywatch/internal/database"
	"storywatch/internal/fetch"
	"storywatch/internal/postgres"
	"storywatch/internal/story"
)

// openStore connects to the configured backend and makes sure its schema
// exists. The returned func releases the connection.
func openStore(ctx context.Context, cfg config.Database, logger zerolog.Logger) (story.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		st := postgres.New(pool)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info().Str("driver", cfg.Driver).Msg("Store ready")
		return st, pool.Close, nil
	case "sqlite":
		db, err := database.NewDB(cfg.Path, database.DefaultConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		logger.Info().Str("driver", cfg.Driver).Str("path", cfg.Path).Msg("Store ready")
		return db, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildEngine wires the store, the configured provider and the engine.
func buildEngine(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*story.Engine, func(), error) {
	store, closeStore, err := openStore(ctx, cfg.DB, logger)
	if err != nil {
		return nil, nil, err
	}
	fetcher, err := fetch.New(fetch.Config{
		Provider:   cfg.Fetch.Provider,
		APIKey:     cfg.Fetch.APIKey,
		NewsAPIURL: cfg.Fetch.NewsAPIURL,
		RSSURL:     cfg.Fetch.RSSURL,
		PageSize:   cfg.Fetch.PageSize,
		Timeout:    cfg.Fetch.Timeout,
		RateLimit:  cfg.Fetch.RateLimit,
	}, logger)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("configuring news provider: %w", err)
	}
	engine := story.NewEngine(store, fetcher, logger, story.Config{
		Concurrency:  cfg.Refresh.Concurrency,
		FetchTimeout: cfg.Fetch.Timeout,
	})
	return engine, closeStore, nil
}
