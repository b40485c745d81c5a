package handlers

import (
	"context"

	"upscaled/internal/models"
	"upscaled/internal/pkg/logger"
	"upscaled/internal/ports"
	"upscaled/internal/upscaler"
)

// JobStore is the part of the job repository the API uses.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, status models.JobStatus, limit int) ([]models.JobSummary, error)
	MarkFailed(ctx context.Context, id, reason string) error
}

// Queue accepts job ids for the worker.
type Queue interface {
	Push(ctx context.Context, jobID string) error
}

// Pinger is a dependency the deep health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Deps struct {
	Upscaler upscaler.Upscaler

	// Jobs, Queue and Storage back the /jobs endpoints. They are nil when
	// the job flow is disabled.
	Jobs    JobStore
	Queue   Queue
	Storage ports.StorageProvider

	// Postgres and Redis are probed by the deep health check when set.
	Postgres Pinger
	Redis    Pinger
	// Program is the worker executable or interpreter, looked up on PATH by
	// the deep health check. Empty skips the check.
	Program string
	MaxJobs int64

	// MaxUploadBytes caps the decoded original.
	MaxUploadBytes int64
	Log            *logger.Logger
}

type Handler struct {
	upscaler  upscaler.Upscaler
	jobs      JobStore
	queue     Queue
	sp        ports.StorageProvider
	postgres  Pinger
	redis     Pinger
	program   string
	maxJobs   int64
	maxUpload int64
	log       *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		upscaler:  d.Upscaler,
		jobs:      d.Jobs,
		queue:     d.Queue,
		sp:        d.Storage,
		postgres:  d.Postgres,
		redis:     d.Redis,
		program:   d.Program,
		maxJobs:   d.MaxJobs,
		maxUpload: d.MaxUploadBytes,
		log:       log.WithComponent("http"),
	}
}

// JobsEnabled reports whether the /jobs endpoints can be served.
func (h *Handler) JobsEnabled() bool {
	return h.jobs != nil && h.queue != nil && h.sp != nil
}

// Log is the handler's logger, for wrapping its methods.
func (h *Handler) Log() *logger.Logger {
	return h.log
}
