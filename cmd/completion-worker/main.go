package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medicarehq/booking-engine/internal/booking"
	"github.com/medicarehq/booking-engine/internal/config"
	"github.com/medicarehq/booking-engine/internal/db"
	"github.com/medicarehq/booking-engine/internal/notify"
	redisclient "github.com/medicarehq/booking-engine/internal/redis"
)

// The completion worker owns the booked|rescheduled → completed
// transition: it periodically sweeps active appointments whose end time
// has passed and marks them completed through the ledger.
func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "completion-worker").Logger()
	log.Info().Msg("completion-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	if cfg.StoreBackend != config.StorePostgres {
		log.Fatal().Str("store", cfg.StoreBackend).Msg("completion worker requires the postgres backend")
	}

	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("running completion worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewSlotLocker(rdb, cfg.LockTTL)
	emitter := notify.Fanout{
		notify.NewLogEmitter(log),
		notify.NewRedisEmitter(rdb, cfg.EventChannel),
	}
	svc := booking.NewService(repo, locker, emitter, cfg.HoursCacheTTL, log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.CompletePast(runCtx, time.Now()); err != nil {
		log.Error().Err(err).Msg("completion run error")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("completion run complete")
}
