package main

import (
	"context"

	"upscaled/internal/app"
	"upscaled/internal/config"
	"upscaled/internal/httpapi"
	"upscaled/internal/httpapi/handlers"
	"upscaled/internal/pkg/logger"
	"upscaled/internal/pkg/shutdown"
	"upscaled/internal/repositories"
	"upscaled/internal/storage"
	"upscaled/internal/worker/queue"
)

func main() {
	log := logger.New(logger.FromEnv("upscaled-api"))
	log.Info("starting upscaled API")

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	ctx := context.Background()
	mgr := shutdown.NewManager(log, shutdown.DefaultTimeout)

	up, program, maxJobs := app.NewUpscaler(cfg, log)
	hd := handlers.Deps{
		Upscaler:       up,
		Program:        program,
		MaxJobs:        maxJobs,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	if cfg.JobsEnabled() {
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
		log.Info("storage provider initialized", "provider", sp.Provider())

		hd.Jobs = repositories.NewJobRepository(pool)
		hd.Queue = queue.NewRedisQueue(rdb, cfg.QueueName)
		hd.Storage = sp
		hd.Postgres = pool
		hd.Redis = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		log.Info("job endpoints disabled, set DATABASE_URL and REDIS_ADDR to enable them")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers:           hd,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		JobsRequestTimeout: cfg.JobsRequestTimeout,
		Log:                log,
	})
	app.Serve(app.NewServer(":"+cfg.HTTPPort, router), "api", log, mgr)

	if err := mgr.Wait(ctx); err != nil {
		log.LogFatal("shutdown failed", err)
	}
}
