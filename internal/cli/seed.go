package cli

import (
	"time"

	"duel-trivia-service/internal/config"
	"duel-trivia-service/internal/domain"
	"duel-trivia-service/internal/infra/postgres"
	redisstore "duel-trivia-service/internal/infra/redis"
	"duel-trivia-service/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads the built-in question catalog into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the question catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format)

			db, err := openMigrated(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := postgres.SeedCatalog(ctx, db, domain.DefaultCatalog())
			if err != nil {
				return err
			}
			log.WithField("items", n).Info("catalog seeded")

			if cfg.Redis.Addr != "" {
				client := newRedisClient(cfg)
				defer client.Close()
				cache := redisstore.NewCatalogCache(client, nil, time.Minute)
				if err := cache.Invalidate(ctx); err != nil {
					log.WithError(err).Warn("catalog cache invalidation failed")
				}
			}
			return nil
		},
	}
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
