// Package app wires the pieces both binaries share.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"upscaled/internal/admission"
	"upscaled/internal/config"
	"upscaled/internal/pkg/logger"
	"upscaled/internal/pkg/shutdown"
	"upscaled/internal/repositories"
	"upscaled/internal/upscale"
	"upscaled/internal/upscaler"
)

// ConnectPostgres opens and pings a pool, closing it on shutdown. With
// migrate set it also creates the jobs schema.
func ConnectPostgres(ctx context.Context, cfg config.Config, log *logger.Logger, mgr *shutdown.Manager) (*pgxpool.Pool, error) {
	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	mgr.RegisterSimple("postgres", pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	log.Info("PostgreSQL connected")

	if cfg.DBMigrate {
		if err := repositories.NewJobRepository(pool).EnsureSchema(ctx); err != nil {
			return nil, err
		}
		log.Info("jobs schema ensured")
	}
	return pool, nil
}

// ConnectRedis opens and pings a client, closing it on shutdown.
func ConnectRedis(ctx context.Context, addr string, log *logger.Logger, mgr *shutdown.Manager) (*redis.Client, error) {
	log.Info("connecting to Redis")
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	mgr.Register("redis", func(context.Context) error {
		return rdb.Close()
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Info("Redis connected")
	return rdb, nil
}

// NewUpscaler returns the remote client when UPSCALER_REMOTE_URL is set and a
// local worker-backed service otherwise. program is what the deep health check
// looks up on PATH; it is empty for the remote client.
func NewUpscaler(cfg config.Config, log *logger.Logger) (up upscaler.Upscaler, program string, maxJobs int64) {
	if cfg.Upscaler.RemoteURL != "" {
		log.Info("using remote upscaler", "url", cfg.Upscaler.RemoteURL)
		return upscaler.NewClient(cfg.Upscaler.RemoteURL, nil), "", 0
	}

	runner := upscale.NewRunner(upscale.RunnerConfig{
		Executable:  cfg.Upscaler.Executable,
		Interpreter: cfg.Upscaler.Interpreter,
		WaitDelay:   cfg.Upscaler.WaitDelay,
	})
	ctrl := admission.New(cfg.Admission, log)
	log.Info("using local upscaler",
		"program", runner.Program(),
		"admission_interval", cfg.Admission.Interval.String(),
		"max_jobs", ctrl.MaxJobs(),
	)

	return upscaler.New(upscaler.Deps{
		Runner:    runner,
		Admission: ctrl,
		TempDir:   cfg.Upscaler.TempDir,
		Log:       log,
	}), runner.Program(), ctrl.MaxJobs()
}

// Serve starts server in the background and registers its graceful stop.
func Serve(server *http.Server, name string, log *logger.Logger, mgr *shutdown.Manager) {
	mgr.Register(name, func(ctx context.Context) error {
		log.Info("shutting down HTTP server", "server", name)
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "server", name, "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("HTTP server failed", err, "server", name)
		}
	}()
}

// NewServer applies the timeouts both binaries use. The write timeout is
// left unset because /upscale holds the response open for the whole job.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
}
