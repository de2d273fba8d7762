package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/rahnavardnetwork/sos/common/database"
	"github.com/rahnavardnetwork/sos/common/logging"
)

var migrationsSource string

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down]",
	Short: "Apply or roll back database migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}
		return runMigrations(cfg.Database.Postgres.DSN(), direction, logger)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsSource, "source", "file://migrations", "migration source URL")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrations(dsn, direction string, logger *logging.Logger) error {
	m, err := migrate.New(migrationsSource, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()
	m.LockTimeout = database.MigrationTimeout

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return verr
	}
	logger.Info("database migrations completed", "version", version, "dirty", dirty)
	return nil
}
