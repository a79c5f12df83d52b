package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/cache"
	"github.com/lucasfragadev/gym-dev/internal/config"
	"github.com/lucasfragadev/gym-dev/internal/database"
	"github.com/lucasfragadev/gym-dev/internal/events"
	"github.com/lucasfragadev/gym-dev/internal/handlers"
	"github.com/lucasfragadev/gym-dev/internal/jobs"
	"github.com/lucasfragadev/gym-dev/internal/log"
	"github.com/lucasfragadev/gym-dev/internal/metrics"
	"github.com/lucasfragadev/gym-dev/internal/repository"
	"github.com/lucasfragadev/gym-dev/internal/security"
	"github.com/lucasfragadev/gym-dev/internal/server"
	"github.com/lucasfragadev/gym-dev/internal/service"
	"github.com/lucasfragadev/gym-dev/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	codec, err := security.NewTokenCodec(cfg.Security)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token configuration")
	}

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	users := repository.NewUserRepository(dbPool)
	checkIns := repository.NewCheckInRepository(dbPool)
	publisher := events.NewStreamPublisher(redisClient, cfg.Redis.Stream, cfg.Redis.MaxLen)
	hasher := security.NewPasswordHasher(security.DefaultArgon2Params)
	m := metrics.New()

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Config:   cfg,
		Log:      logger,
		Codec:    codec,
		Auth:     service.NewAuthService(users, hasher, codec, publisher, m, logger),
		Users:    service.NewUserService(users, hasher, publisher, logger),
		CheckIns: service.NewCheckInService(checkIns, users, logger),
		Photos:   service.NewPhotoService(users, objectStore, cfg.Storage.MaxPhotoBytes, logger),
		Metrics:  m,
		Checks: map[string]handlers.Pinger{
			"postgres": dbPool,
			"redis":    cache.Pinger{Client: redisClient},
			"storage":  objectStore,
		},
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, m)

	scheduler := jobs.NewScheduler(publisher, cfg.Audit.PruneSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
