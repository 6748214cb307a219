package cli

import (
	"context"
	"fmt"

	"duel-trivia-service/internal/config"
	"duel-trivia-service/internal/infra/postgres"
	"duel-trivia-service/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format)
			db, err := openMigrated(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

// openMigrated opens the configured Postgres database and brings its schema up to date.
func openMigrated(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*bun.DB, error) {
	if cfg.Postgres.URL == "" {
		return nil, fmt.Errorf("postgres url not configured")
	}
	db := postgres.OpenDB(cfg.Postgres.URL)
	group, err := postgres.Migrate(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if group.IsZero() {
		log.Info("database schema is up to date")
	} else {
		log.WithField("group", group.String()).Info("migrations applied")
	}
	return db, nil
}
