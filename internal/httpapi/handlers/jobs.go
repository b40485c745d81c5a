package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"upscaled/internal/httpkit"
	"upscaled/internal/models"
	"upscaled/internal/pkg/errors"
	"upscaled/internal/ports"
	"upscaled/internal/util"
)

// PostJob stores the original, records a QUEUED job and hands its id to the
// worker.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	req, _, err := h.decodeUpscaleRequest(w, r)
	if err != nil {
		return err
	}

	jobID := util.NewID("job")
	log := h.log.FromContext(ctx).WithJobID(jobID)
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.OriginalExt), "."))

	stored, err := h.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey: models.JobInputKey(jobID, ext),
		Reader:    bytes.NewReader(req.OriginalFile),
		Size:      int64(len(req.OriginalFile)),
	})
	if err != nil {
		return errors.Wrap(err, "jobs.store_input", "store original").WithField("job_id", jobID)
	}

	job := &models.Job{
		ID:       jobID,
		Params:   req.Options,
		InputKey: stored.ObjectKey,
		InputExt: ext,
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		h.discard(ctx, stored.ObjectKey)
		return err
	}

	if err := h.queue.Push(ctx, jobID); err != nil {
		if ferr := h.jobs.MarkFailed(context.WithoutCancel(ctx), jobID, "enqueue failed"); ferr != nil {
			log.Error("failed to mark unqueued job", "error", ferr.Error())
		}
		return err
	}

	log.Info("job queued", "input_bytes", len(req.OriginalFile))
	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"job": job})
	return nil
}

func (h *Handler) discard(ctx context.Context, key string) {
	if err := h.sp.DeleteObject(context.WithoutCancel(ctx), key); err != nil {
		h.log.FromContext(ctx).Warn("failed to delete orphaned original", "object_key", key, "error", err.Error())
	}
}

// ListJobs returns the newest jobs. ?status filters, ?limit caps the page.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	status := models.JobStatus(strings.ToUpper(strings.TrimSpace(q.Get("status"))))
	if status != "" && !status.Valid() {
		return errors.ValidationField("status", "unknown status").WithField("value", string(status))
	}

	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return errors.ValidationField("limit", "limit must be a positive integer")
		}
		limit = v
	}

	jobs, err := h.jobs.List(r.Context(), status, limit)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	return nil
}

// GetJob returns one job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
	return nil
}

// GetJobOutput streams a finished job's PNG.
func (h *Handler) GetJobOutput(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobId")

	job, err := h.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobDone || job.OutputKey == "" {
		return errors.New(errors.CodeFailedPrecond, "job has no output yet").
			WithField("job_id", jobID).
			WithField("status", string(job.Status))
	}

	rc, _, size, err := h.sp.GetObject(ctx, job.OutputKey)
	if err != nil {
		return errors.Wrap(err, "jobs.output", "load result").WithField("job_id", jobID)
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(ctx).Warn("output stream interrupted", "job_id", jobID, "error", err.Error())
	}
	return nil
}
