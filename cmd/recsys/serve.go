package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/simplers/recsys/internal/interfaces/http"
	"github.com/simplers/recsys/internal/pipeline"
	"github.com/simplers/recsys/internal/rules"
	"github.com/simplers/recsys/internal/store"
	"github.com/simplers/recsys/internal/store/postgres"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := postgres.Connect(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	timeout := cfg.Postgres.QueryTimeout()
	users := postgres.NewUsersRepo(db, timeout)
	curations := postgres.NewCurationsRepo(db, timeout)
	snapshots := postgres.NewSnapshotsRepo(db, timeout)
	seen := postgres.NewSeenRepo(db, timeout)

	var (
		candidates store.CandidateStore = postgres.NewCandidatesRepo(db, timeout)
		fallback   store.FallbackSource = postgres.NewFallbackRepo(db, timeout)
	)
	if cfg.Redis.Addr != "" {
		rdb := store.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		candidates = store.NewCandidateCache(candidates, rdb, cfg.Redis.TTL())
		fallback = store.NewCuratedCache(fallback, rdb, cfg.Redis.TTL())
		defer rdb.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis cache enabled")
	}

	registry, err := rules.BuildRegistry()
	if err != nil {
		return fmt.Errorf("building rule registry: %w", err)
	}

	ranker := pipeline.NewRanker(users, curations, candidates, snapshots, seen, fallback,
		registry, cfg.RankerOptions())

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Serve.Host,
		Port:         cfg.Serve.Port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httpapi.NewHandlers(ranker))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
