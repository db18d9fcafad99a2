package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"portfolio/api/internal/apperr"
	"portfolio/api/internal/cache"
	"portfolio/api/internal/config"
	"portfolio/api/internal/database"
	"portfolio/api/internal/handlers"
	"portfolio/api/internal/jobs"
	"portfolio/api/internal/log"
	"portfolio/api/internal/ratelimit"
	"portfolio/api/internal/repository"
	"portfolio/api/internal/security"
	"portfolio/api/internal/server"
	"portfolio/api/internal/service"
	"portfolio/api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)
	if cfg.Security.UsingDevSecret {
		logger.Warn().Msg("security.sessionsecret not set, using the development fallback secret")
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
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	tokens, err := security.NewSessionTokens([]byte(cfg.Security.SessionSecret), cfg.Security.SessionTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init session tokens")
	}

	var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Backend == "redis" && redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient)
	}
	limits := ratelimit.NewSet(cfg.RateLimit, cfg.IsProduction(), limitStore, logger)

	reporter := apperr.NewReporter(logger, cfg.IsProduction())
	admins := repository.NewAdminRepository(dbPool)

	probes := []handlers.Probe{
		{Name: "postgres", Check: dbPool.Ping},
		{Name: "storage", Check: objectStore.Ping},
	}
	if redisClient != nil {
		probes = append(probes, handlers.Probe{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Config:   cfg,
		Log:      logger,
		Auth:     service.NewAuthService(admins, tokens, reporter, logger),
		Uploads:  service.NewUploadService(objectStore, cfg.Storage.MaxUploadBytes, reporter, logger),
		Limits:   limits,
		Reporter: reporter,
		Probes:   probes,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(limits, cfg.RateLimit.SweepSchedule, logger)
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

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("sweep still running at shutdown")
	}

	db.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
