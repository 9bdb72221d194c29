package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/persistence"
)

var steps int

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply, roll back and inspect the embedded goose migrations.`,
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE:  runMigrateDown,
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE:  runMigrateUp,
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE:  runMigrateStatus,
		},
	)
	return cmd
}

func openPostgres(cmd *cobra.Command) (*persistence.Postgres, *zap.Logger, error) {
	cfg, logger, err := initEnv()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, nil, errors.New("POSTGRES_DSN is required")
	}
	pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
	if err != nil {
		return nil, nil, err
	}
	return pg, logger, nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	pg, logger, err := openPostgres(cmd)
	if err != nil {
		return err
	}
	defer pg.Close()
	return persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger)
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	if steps < 1 {
		return errors.New("--steps must be at least 1")
	}
	pg, logger, err := openPostgres(cmd)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := persistence.MigrateDown(cmd.Context(), pg.PoolHandle(), logger, steps); err != nil {
		return err
	}
	logger.Info("migrations rolled back", zap.Int("steps", steps))
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	pg, logger, err := openPostgres(cmd)
	if err != nil {
		return err
	}
	defer pg.Close()
	return persistence.MigrationStatus(cmd.Context(), pg.PoolHandle(), logger)
}
