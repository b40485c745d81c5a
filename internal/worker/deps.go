package worker

import (
	"context"

	"upscaled/internal/pkg/logger"
	"upscaled/internal/worker/processor"
)

// Queue hands out job ids. Pop returns "" when nothing arrived in time.
type Queue interface {
	Pop(ctx context.Context) (string, error)
}

type Deps struct {
	Queue     Queue
	Processor *processor.Processor
	// Concurrency is how many jobs are consumed at once. Values below one
	// mean one.
	Concurrency int
	Log         *logger.Logger
}
