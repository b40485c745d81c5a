package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"upscaled/internal/models"
	"upscaled/internal/pkg/errors"
)

// MaxErrorLen bounds the failure text stored on a job, in runes.
const MaxErrorLen = 2000

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		status      TEXT NOT NULL,
		params_json JSONB NOT NULL DEFAULT '{}'::jsonb,
		input_key   TEXT NOT NULL,
		input_ext   TEXT NOT NULL,
		output_key  TEXT,
		width       BIGINT,
		height      BIGINT,
		error       TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at  TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_status_created_at_idx ON jobs (status, created_at DESC)`,
}

type JobRepository struct {
	db DB
}

func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

// EnsureSchema creates the jobs table and its index when missing.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "jobs.schema", "create jobs schema")
		}
	}
	return nil
}

// Create inserts j as QUEUED and fills CreatedAt.
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	params, err := json.Marshal(j.Params)
	if err != nil {
		return errors.Wrap(err, "jobs.create", "encode params")
	}

	j.Status = models.JobQueued
	err = r.db.QueryRow(ctx, `
		INSERT INTO jobs (id, status, params_json, input_key, input_ext)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, j.ID, string(j.Status), params, j.InputKey, j.InputExt).Scan(&j.CreatedAt)
	if err != nil {
		return dbError(err, "jobs.create", "insert job").WithField("job_id", j.ID)
	}
	return nil
}

// Get loads one job.
func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	var (
		j             models.Job
		status        string
		params        []byte
		width, height *int64
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, status, params_json, input_key, input_ext,
		       COALESCE(output_key, ''), width, height, COALESCE(error, ''),
		       created_at, started_at, finished_at
		FROM jobs WHERE id = $1
	`, id).Scan(
		&j.ID, &status, &params, &j.InputKey, &j.InputExt,
		&j.OutputKey, &width, &height, &j.Error,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("job", id)
	}
	if err != nil {
		return nil, dbError(err, "jobs.get", "select job").WithField("job_id", id)
	}

	j.Status = models.JobStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &j.Params); err != nil {
			return nil, errors.Wrap(err, "jobs.get", "decode params").WithField("job_id", id)
		}
	}
	j.Width = toUint32(width)
	j.Height = toUint32(height)
	return &j, nil
}

// List returns the newest jobs, optionally filtered by status. limit is
// clamped to [1, MaxListLimit]; zero means DefaultListLimit.
func (r *JobRepository) List(ctx context.Context, status models.JobStatus, limit int) ([]models.JobSummary, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = r.db.Query(ctx, `
			SELECT id, status, created_at, finished_at
			FROM jobs WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, string(status), limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT id, status, created_at, finished_at
			FROM jobs
			ORDER BY created_at DESC
			LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, dbError(err, "jobs.list", "select jobs")
	}
	defer rows.Close()

	out := make([]models.JobSummary, 0, limit)
	for rows.Next() {
		var (
			s      models.JobSummary
			status string
		)
		if err := rows.Scan(&s.ID, &status, &s.CreatedAt, &s.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "jobs.list", "scan job")
		}
		s.Status = models.JobStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "jobs.list", "iterate jobs")
	}
	return out, nil
}

// MarkRunning moves a QUEUED job to RUNNING. A job in any other state is a
// conflict, which keeps a redelivered id from being processed twice.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE jobs SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4
	`, id, string(models.JobRunning), time.Now().UTC(), string(models.JobQueued))
	if err != nil {
		return dbError(err, "jobs.mark_running", "update job").WithField("job_id", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeConflict, "job is not queued").WithField("job_id", id)
	}
	return nil
}

// MarkDone records the output and the worker-reported size.
func (r *JobRepository) MarkDone(ctx context.Context, id, outputKey string, width, height uint32) error {
	return r.finish(ctx, "jobs.mark_done", `
		UPDATE jobs SET status = $2, output_key = $3, width = $4, height = $5, error = NULL, finished_at = $6
		WHERE id = $1
	`, id, string(models.JobDone), outputKey, int64(width), int64(height), time.Now().UTC())
}

// MarkFailed records why a job failed. The text is cut to MaxErrorLen runes.
func (r *JobRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.finish(ctx, "jobs.mark_failed", `
		UPDATE jobs SET status = $2, error = $3, finished_at = $4
		WHERE id = $1
	`, id, string(models.JobFailed), truncateRunes(strings.ToValidUTF8(reason, "\uFFFD"), MaxErrorLen), time.Now().UTC())
}

func (r *JobRepository) finish(ctx context.Context, op, sql string, args ...any) error {
	id, _ := args[0].(string)
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return dbError(err, op, "update job").WithField("job_id", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("job", id)
	}
	return nil
}

func dbError(err error, op, msg string) *errors.Error {
	switch {
	case IsUndefinedTable(err):
		return errors.WrapWithCode(err, errors.CodeFailedPrecond, op, "jobs table missing, start with DB_MIGRATE=true")
	case IsUniqueViolation(err):
		return errors.WrapWithCode(err, errors.CodeConflict, op, "job already exists")
	default:
		return errors.Wrap(err, op, msg)
	}
}

func toUint32(v *int64) *uint32 {
	if v == nil {
		return nil
	}
	u := uint32(*v)
	return &u
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
