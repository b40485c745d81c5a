package models

import (
	"time"

	v1 "upscaled/internal/contracts/upscale/v1"
)

type JobStatus string

const (
	JobQueued  JobStatus = "QUEUED"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobDone, JobFailed:
		return true
	}
	return false
}

// Job is an asynchronous upscale request. The original and the result live in
// blob storage under InputKey and OutputKey.
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Params     v1.Options `json:"params"`
	InputKey   string     `json:"input_key"`
	InputExt   string     `json:"input_ext"`
	OutputKey  string     `json:"output_key,omitempty"`
	Width      *uint32    `json:"width,omitempty"`
	Height     *uint32    `json:"height,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobSummary is a row of the job listing.
type JobSummary struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobInputKey is the storage key for a job's original.
func JobInputKey(jobID, ext string) string {
	return "jobs/" + jobID + "/original." + ext
}

// JobOutputKey is the storage key for a job's result.
func JobOutputKey(jobID string) string {
	return "jobs/" + jobID + "/upscaled.png"
}
