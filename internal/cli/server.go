package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"duel-trivia-service/internal/app"
	"duel-trivia-service/internal/config"
	"duel-trivia-service/internal/domain"
	"duel-trivia-service/internal/infra/memory"
	"duel-trivia-service/internal/infra/postgres"
	redisstore "duel-trivia-service/internal/infra/redis"
	"duel-trivia-service/internal/logging"
	transport "duel-trivia-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backends holds the storage and notification wiring chosen from config.
type backends struct {
	store    app.MatchStore
	catalog  app.CatalogSource
	notifier app.Notifier
	closers  []func() error
}

func (b *backends) close(log logrus.FieldLogger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.WithError(err).Warn("close failed")
		}
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := buildBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close(log)

	questionCount := cfg.Game.QuestionCount
	bank := app.NewQuestionBank(b.catalog)
	store := b.store
	if _, isMemory := store.(*memory.MatchStore); !isMemory {
		store = app.NewResilientStore(store, memory.NewMatchStore(), bank, questionCount, log)
	}
	service := app.NewMatchService(store, bank, b.notifier, app.Options{
		QuestionCount: questionCount,
		TimeLimit:     config.TTLDuration(cfg.Game.TimeLimit, 30*time.Second),
		Logger:        log,
	})

	auth, err := newAuthenticator(cfg, log)
	if err != nil {
		return err
	}
	api := transport.NewAPI(service, auth, log)
	ws := transport.NewWSHandler(service, auth, log)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(api, ws),
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", finalPort).Info("starting duel service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildBackends picks Postgres, then Redis, then memory for match storage.
// The catalog comes from Postgres when configured and is cached in Redis or memory.
// Change signals use Redis pub/sub when Redis is configured, with polling as the fallback.
func buildBackends(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backends, error) {
	b := &backends{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = newRedisClient(cfg)
		b.closers = append(b.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable at startup")
		}
	}

	var source app.CatalogSource = memory.NewStaticCatalog(domain.DefaultCatalog())
	if cfg.Postgres.URL != "" {
		db, err := openMigrated(ctx, cfg, log)
		if err != nil {
			b.close(log)
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.store = postgres.NewMatchStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close(log)
			return nil, err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		source = postgres.NewCatalogLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	if redisClient != nil {
		b.catalog = redisstore.NewCatalogCache(redisClient, source, catalogTTL)
		if b.store == nil {
			b.store = redisstore.NewMatchStore(redisClient)
		}
	} else {
		b.catalog = memory.NewCachedCatalog(source, catalogTTL)
	}
	if b.store == nil {
		b.store = memory.NewMatchStore()
	}

	poller, err := app.NewPoller(config.TTLDuration(cfg.Notifier.PollInterval, app.DefaultPollInterval))
	if err != nil {
		b.close(log)
		return nil, err
	}
	b.closers = append(b.closers, poller.Close)

	var push app.Notifier = memory.NewNotifier()
	if redisClient != nil {
		push = redisstore.NewNotifier(redisClient)
	}
	b.notifier = app.NewResilientNotifier(push, poller, log)

	log.WithFields(logrus.Fields{
		"store":    storeName(b.store),
		"redis":    redisClient != nil,
		"postgres": cfg.Postgres.URL != "",
	}).Info("backends ready")
	return b, nil
}

func storeName(store app.MatchStore) string {
	switch store.(type) {
	case *postgres.MatchStore:
		return "postgres"
	case *redisstore.MatchStore:
		return "redis"
	}
	return "memory"
}

func newAuthenticator(cfg config.Config, log logrus.FieldLogger) (*transport.Authenticator, error) {
	if cfg.Auth.Secret != "" {
		return transport.NewAuthenticator([]byte(cfg.Auth.Secret)), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	log.Warn("auth secret not configured; using a random one, tokens will not survive a restart")
	return transport.NewAuthenticator(secret), nil
}
