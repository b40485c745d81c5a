// Package upscaler runs one upscale job end to end: scratch files, admission,
// the worker process and the result.
package upscaler

import (
	"context"
	"time"

	"upscaled/internal/admission"
	"upscaled/internal/metrics"
	"upscaled/internal/pkg/errors"
	"upscaled/internal/pkg/logger"
	"upscaled/internal/upscale"
)

// stderrLogLimit caps how much worker stderr goes into a log record.
const stderrLogLimit = 2048

// Request is one image and how to upscale it.
type Request struct {
	Original []byte
	// Ext is the original's file extension, used for the input temp file.
	Ext        string
	Descriptor upscale.Descriptor
}

// Result is the upscaled PNG and the size the worker reported.
type Result struct {
	Upscaled []byte
	Res      upscale.Dimensions
}

// Upscaler is implemented by the local Service and the remote Client.
type Upscaler interface {
	Upscale(ctx context.Context, req Request) (*Result, error)
}

type Deps struct {
	Runner *upscale.Runner
	// Admission gates each run. Nil means no throttle and no permit limit.
	Admission *admission.Controller
	// TempDir holds scratch files. Empty means os.TempDir.
	TempDir string
	Log     *logger.Logger
}

// Service upscales images with a local worker process.
type Service struct {
	runner    *upscale.Runner
	admission *admission.Controller
	tempDir   string
	log       *logger.Logger
}

func New(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	ctrl := d.Admission
	if ctrl == nil {
		ctrl = admission.New(admission.Config{}, log)
	}
	return &Service{
		runner:    d.Runner,
		admission: ctrl,
		tempDir:   d.TempDir,
		log:       log.WithComponent("upscaler"),
	}
}

// Upscale runs req to completion. Cancelling ctx does not stop the job; only
// the descriptor's timeout does.
func (s *Service) Upscale(ctx context.Context, req Request) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	log := s.log.FromContext(ctx)

	scratch, err := upscale.NewScratch(s.tempDir, req.Ext, req.Original)
	if err != nil {
		return nil, errors.Wrap(err, "upscaler.scratch", "prepare temp files")
	}
	defer func() {
		if err := scratch.Close(); err != nil {
			log.Warn("failed to remove temp files", "error", err.Error())
		}
	}()

	permit := s.admission.Admit(ctx)
	start := time.Now()
	res, err := s.runner.Run(ctx, req.Descriptor, scratch.Input, scratch.Output)
	permit.Release()
	elapsed := time.Since(start)

	if err != nil {
		kind := upscale.KindOf(err)
		metrics.RecordRun(string(kind), elapsed)
		s.logFailure(log, err, elapsed)
		return nil, errors.Wrap(err, "upscaler.run", "upscale failed").WithField("kind", string(kind))
	}
	metrics.RecordRun(metrics.OutcomeOK, elapsed)

	data, err := scratch.ReadOutput()
	if err != nil {
		return nil, errors.Wrap(err, "upscaler.output", "read upscaled image")
	}

	log.Info("upscale completed",
		"width", res.Width,
		"height", res.Height,
		"bytes_in", len(req.Original),
		"bytes_out", len(data),
		"duration_ms", elapsed.Milliseconds(),
	)
	return &Result{Upscaled: data, Res: res}, nil
}

func (s *Service) logFailure(log *logger.Logger, err error, elapsed time.Duration) {
	args := []any{
		"kind", string(upscale.KindOf(err)),
		"program", s.runner.Program(),
		"duration_ms", elapsed.Milliseconds(),
	}
	var uerr *upscale.Error
	if errors.As(err, &uerr) {
		if uerr.Kind == upscale.KindExec {
			args = append(args, "exit_code", uerr.ExitCode)
		}
		if len(uerr.Stderr) > 0 {
			args = append(args, "stderr", string(tail(uerr.Stderr, stderrLogLimit)))
		}
	}
	log.Error("upscale failed", append(args, "error", err.Error())...)
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
