package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"upscaled/internal/app"
	"upscaled/internal/config"
	"upscaled/internal/pkg/logger"
	"upscaled/internal/pkg/shutdown"
	"upscaled/internal/repositories"
	"upscaled/internal/storage"
	"upscaled/internal/worker"
	"upscaled/internal/worker/processor"
	"upscaled/internal/worker/queue"
)

func main() {
	log := logger.New(logger.FromEnv("upscaled-worker"))
	log.Info("starting upscaled worker")

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	if err := cfg.RequireJobs(); err != nil {
		log.LogFatal("worker needs the job stores", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr := shutdown.NewManager(log, shutdown.DefaultTimeout)

	pool, err := app.ConnectPostgres(ctx, cfg, log, mgr)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	rdb, err := app.ConnectRedis(ctx, cfg.RedisAddr, log, mgr)
	if err != nil {
		log.LogFatal("failed to connect to Redis", err)
	}
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		app.Serve(app.NewServer(cfg.MetricsAddr, mux), "metrics", log, mgr)
	}

	up, _, _ := app.NewUpscaler(cfg, log)
	p := processor.New(processor.Deps{
		Jobs:          repositories.NewJobRepository(pool),
		Storage:       sp,
		Upscaler:      up,
		MaxInputBytes: cfg.MaxUploadBytes,
		Log:           log,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := worker.Run(ctx, worker.Deps{
			Queue:       queue.NewRedisQueue(rdb, cfg.QueueName),
			Processor:   p,
			Concurrency: cfg.WorkerConcurrency,
			Log:         log,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", "error", err.Error())
		}
	}()

	// Registered last so it runs first: consumers drain before the stores close.
	mgr.Register("consumers", func(sctx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})

	if err := mgr.Wait(context.Background()); err != nil {
		log.LogFatal("shutdown failed", err)
	}
}
