package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medicarehq/booking-engine/internal/api"
	"github.com/medicarehq/booking-engine/internal/booking"
	"github.com/medicarehq/booking-engine/internal/config"
	"github.com/medicarehq/booking-engine/internal/db"
	"github.com/medicarehq/booking-engine/internal/notify"
	redisclient "github.com/medicarehq/booking-engine/internal/redis"
)

const version = "0.3.0"

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "api-server").Logger()
	log.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreBackend).
		Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routerCfg := api.RouterConfig{
		Env:     cfg.Env,
		Version: version,
		Logger:  log,
	}

	var repo booking.Repository
	var locker booking.Locker
	var emitter booking.Emitter = notify.NewLogEmitter(log)

	switch cfg.StoreBackend {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		log.Info().Msg("connected to Postgres")

		rdb, err := redisclient.Connect(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Msg("connected to Redis")

		repo = booking.NewPgRepository(pgPool)
		locker = redisclient.NewSlotLocker(rdb, cfg.LockTTL)
		emitter = notify.Fanout{
			notify.NewLogEmitter(log),
			notify.NewRedisEmitter(rdb, cfg.EventChannel),
		}
		routerCfg.PgPool = pgPool
		routerCfg.Redis = rdb

	case config.StoreMemory:
		log.Info().Msg("using in-memory store")
		repo = booking.NewMemoryRepository()
		locker = booking.NewLocalLocker()
	}

	svc := booking.NewService(repo, locker, emitter, cfg.HoursCacheTTL, log)
	routerCfg.Service = svc

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	log.Info().Msg("api-server stopped")
}
