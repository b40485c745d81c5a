package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"upscaled/internal/pkg/logger"
)

// popRetryDelay is the pause after a failed queue read.
const popRetryDelay = time.Second

// Run consumes the queue until ctx is cancelled. Each consumer finishes its
// current job before returning.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	n := d.Concurrency
	if n < 1 {
		n = 1
	}
	log.Info("worker started", "concurrency", n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		consumerLog := log.WithFields(map[string]any{"consumer": i})
		g.Go(func() error {
			return consume(gctx, d, consumerLog)
		})
	}
	return g.Wait()
}

func consume(ctx context.Context, d Deps, log *logger.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			log.Info("consumer stopping")
			return err
		}

		jobID, err := d.Queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("consumer stopping")
				return ctx.Err()
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
			case <-time.After(popRetryDelay):
			}
			continue
		}
		if jobID == "" {
			continue
		}

		// A job in flight outlives shutdown so its row is never left RUNNING.
		jobCtx := logger.ContextWithJobID(context.WithoutCancel(ctx), jobID)
		jobLog := log.WithJobID(jobID)

		jobLog.Info("processing job")
		start := time.Now()
		if err := d.Processor.ProcessJob(jobCtx, jobID); err != nil {
			jobLog.Error("job failed",
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			continue
		}
		jobLog.Info("job finished", "duration_ms", time.Since(start).Milliseconds())
	}
}
