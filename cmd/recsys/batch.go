package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/simplers/recsys/internal/pipeline"
	"github.com/simplers/recsys/internal/portfolio"
	"github.com/simplers/recsys/internal/rules"
	"github.com/simplers/recsys/internal/store/postgres"
)

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s — candidate generation\n", appName, version)

	db, err := postgres.Connect(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	timeout := cfg.Postgres.QueryTimeout()
	users := postgres.NewUsersRepo(db, timeout)
	curations := postgres.NewCurationsRepo(db, timeout)
	candidates := postgres.NewCandidatesRepo(db, timeout)
	snapshots := postgres.NewSnapshotsRepo(db, timeout)

	pf := portfolio.New(portfolio.Config{
		BaseURL:    cfg.Portfolio.BaseURL,
		Timeout:    cfg.Portfolio.Timeout(),
		TopN:       cfg.Portfolio.TopN,
		RatePerSec: cfg.Portfolio.RatePerSec,
		Burst:      cfg.Portfolio.Burst,
	})

	registry, err := rules.BuildRegistry()
	if err != nil {
		return fmt.Errorf("building rule registry: %w", err)
	}

	batch := pipeline.NewBatch(users, curations, candidates, snapshots, pf, registry, cfg.BatchOptions())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := batch.Run(ctx)
	if err != nil {
		return fmt.Errorf("batch run: %w", err)
	}
	log.Info().
		Int("processed", result.UsersProcessed).
		Int("saved", result.Saved).
		Int("failed", result.UsersFailed).
		Msg("candidate generation finished")
	return nil
}
