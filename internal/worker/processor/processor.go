package processor

import (
	"bytes"
	"context"
	"io"
	"time"

	v1 "upscaled/internal/contracts/upscale/v1"
	"upscaled/internal/metrics"
	"upscaled/internal/models"
	"upscaled/internal/pkg/errors"
	"upscaled/internal/pkg/logger"
	"upscaled/internal/ports"
	"upscaled/internal/upscaler"
)

// OutputContentType is what every result is stored as.
const OutputContentType = "image/png"

// JobStore is the part of the job repository the processor drives.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	MarkRunning(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, outputKey string, width, height uint32) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type Deps struct {
	Jobs     JobStore
	Storage  ports.StorageProvider
	Upscaler upscaler.Upscaler
	// MaxInputBytes caps how much of a stored original is read.
	MaxInputBytes int64
	Log           *logger.Logger
}

// Processor takes one queued job id through the upscaler and records the
// outcome on the job row.
type Processor struct {
	jobs     JobStore
	sp       ports.StorageProvider
	upscaler upscaler.Upscaler
	maxInput int64
	log      *logger.Logger
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Processor{
		jobs:     d.Jobs,
		sp:       d.Storage,
		upscaler: d.Upscaler,
		maxInput: d.MaxInputBytes,
		log:      log.WithComponent("processor"),
	}
}

// ProcessJob runs jobID. A job that is not QUEUED is skipped. Failures after
// the job was claimed are recorded on the row and returned.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return errors.Wrap(err, "processor.fetch", "load job")
	}
	if job.Status != models.JobQueued {
		log.Warn("skipping job that is not queued", "status", string(job.Status))
		return nil
	}

	if err := p.jobs.MarkRunning(ctx, jobID); err != nil {
		if errors.IsCode(err, errors.CodeConflict) {
			log.Warn("job claimed elsewhere, skipping")
			return nil
		}
		return errors.Wrap(err, "processor.status", "mark job running")
	}

	start := time.Now()
	res, err := p.run(ctx, job)
	if err != nil {
		return p.failJob(ctx, jobID, err)
	}

	if err := p.jobs.MarkDone(ctx, jobID, res.outputKey, res.width, res.height); err != nil {
		return errors.Wrap(err, "processor.done", "mark job done")
	}
	metrics.RecordJob(string(models.JobDone))
	log.Info("job done",
		"width", res.width,
		"height", res.height,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

type outcome struct {
	outputKey     string
	width, height uint32
}

func (p *Processor) run(ctx context.Context, job *models.Job) (*outcome, error) {
	desc, err := job.Params.Descriptor()
	if err != nil {
		return nil, err
	}
	if err := v1.ValidateExt(job.InputExt); err != nil {
		return nil, err
	}

	original, err := p.readInput(ctx, job.InputKey)
	if err != nil {
		return nil, err
	}

	res, err := p.upscaler.Upscale(ctx, upscaler.Request{
		Original:   original,
		Ext:        job.InputExt,
		Descriptor: desc,
	})
	if err != nil {
		return nil, err
	}

	out, err := p.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   models.JobOutputKey(job.ID),
		ContentType: OutputContentType,
		Reader:      bytes.NewReader(res.Upscaled),
		Size:        int64(len(res.Upscaled)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "processor.output", "store result")
	}

	return &outcome{outputKey: out.ObjectKey, width: res.Res.Width, height: res.Res.Height}, nil
}

func (p *Processor) readInput(ctx context.Context, key string) ([]byte, error) {
	rc, _, _, err := p.sp.GetObject(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "processor.input", "load original")
	}
	defer rc.Close()

	r := io.Reader(rc)
	if p.maxInput > 0 {
		r = io.LimitReader(rc, p.maxInput+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "processor.input", "read original")
	}
	if p.maxInput > 0 && int64(len(data)) > p.maxInput {
		return nil, errors.New(errors.CodeTooLarge, "original exceeds size limit")
	}
	return data, nil
}

// failJob stores the cause on the row and returns it.
func (p *Processor) failJob(ctx context.Context, jobID string, cause error) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	var appErr *errors.Error
	if errors.As(cause, &appErr) {
		log.Error("job failed",
			"code", string(appErr.Code),
			"op", appErr.Op,
			"error", cause.Error(),
		)
	} else {
		log.Error("job failed", "error", cause.Error())
	}

	if err := p.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		log.Error("failed to record job failure", "error", err.Error())
	}
	metrics.RecordJob(string(models.JobFailed))
	return cause
}
