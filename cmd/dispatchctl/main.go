package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/bootstrap"
	"github.com/fieldops/dispatch-service/internal/config"
	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/observability"
	"github.com/fieldops/dispatch-service/internal/repository"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Administrative tools for the dispatch service",
		Long:          `dispatchctl manages the dispatch database: migrations, settings seeds, users, tokens and payout maintenance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(),
		newSeedCommand(),
		newUsersCommand(),
		newTokenCommand(),
		newRecalcBonusesCommand(),
		newNormalizeLegacyCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// initEnv loads configuration and a logger.
func initEnv() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// openRuntime opens the Postgres-backed runtime. The in-memory store would discard
// everything a command writes, so a DSN is required.
func openRuntime(ctx context.Context) (*bootstrap.Runtime, error) {
	cfg, logger, err := initEnv()
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	return bootstrap.Open(ctx, cfg, logger)
}

// loadActor resolves the directory user a command acts as.
func loadActor(ctx context.Context, users repository.UserRepository, id string) (domain.Actor, error) {
	if id == "" {
		return domain.Actor{}, errors.New("--actor is required")
	}
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.Actor{}, fmt.Errorf("actor %s not found", id)
		}
		return domain.Actor{}, err
	}
	if !user.Active {
		return domain.Actor{}, fmt.Errorf("actor %s is inactive", id)
	}
	return domain.Actor{UserID: user.ID, Role: user.Role}, nil
}
