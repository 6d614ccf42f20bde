package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storywatch/internal/auth"
	"storywatch/internal/server"
	"storywatch/internal/story"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and refresh tracked stories on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, logger := a.cfg, a.logger
			logger.Info().
				Str("version", Version).
				Int("port", cfg.Port).
				Str("store", cfg.DB.Driver).
				Str("provider", cfg.Fetch.Provider).
				Dur("refresh_interval", cfg.Refresh.Interval).
				Bool("production", cfg.Production).
				Msg("Starting storywatch")
			if cfg.Auth.JWTSecret == "" {
				logger.Warn().Msg("No JWT secret configured; authenticated endpoints will reject every request")
			}

			engine, closeStore, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			scheduler := story.NewScheduler(engine, cfg.Refresh.Interval, logger)
			scheduler.Start(ctx)
			defer scheduler.Stop()

			srv, err := server.NewServer(engine, auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience), logger, server.Config{
				BaseURL:        cfg.BaseURL,
				AllowedOrigin:  cfg.AllowedOrigin,
				ProductionMode: cfg.Production,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.Start(cfg.GetAddress()) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down server: %w", err)
			}
			return <-errc
		},
	}
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle over every active story and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine, closeStore, err := buildEngine(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer closeStore()

			report, err := engine.RefreshAllTrackedStories(ctx)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func printReport(w io.Writer, r *story.RefreshReport) {
	fmt.Fprintf(w, "Refreshed %d stories in %s: %d articles seen, %d new articles, %d new links\n",
		r.StoriesVisited, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		r.ArticlesSeen, r.NewArticles, r.NewLinks)
	if r.Aborted {
		fmt.Fprintln(w, "Cycle interrupted before every story was visited")
	}
	for _, res := range r.Failures() {
		fmt.Fprintf(w, "  failed %s (%q): %v\n", res.StoryID, res.Keyword, res.Err)
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeStore, err := openStore(cmd.Context(), a.cfg.DB, a.logger)
			if err != nil {
				return err
			}
			closeStore()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", a.cfg.DB.Driver)
			return nil
		},
	}
}
