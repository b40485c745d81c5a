// Package config loads upscaled settings from the environment. Both binaries
// read the same variables; each uses the parts it needs.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"upscaled/internal/admission"
)

const (
	DefaultHTTPPort           = "8080"
	DefaultQueueName          = "upscaled:jobs"
	DefaultJobsRequestTimeout = 30 * time.Second
	DefaultMaxUploadBytes     = 64 << 20
)

type Config struct {
	HTTPPort string
	// MetricsAddr is where the worker serves /metrics. Empty disables it.
	MetricsAddr string

	// DatabaseURL and RedisAddr are both required for the job endpoints and
	// the worker.
	DatabaseURL string
	RedisAddr   string
	QueueName   string
	DBMigrate   bool

	Upscaler  UpscalerConfig
	Admission admission.Config
	Storage   StorageConfig

	WorkerConcurrency  int
	CORSAllowedOrigins []string
	JobsRequestTimeout time.Duration
	MaxUploadBytes     int64
}

type UpscalerConfig struct {
	Executable  string
	Interpreter string
	TempDir     string
	WaitDelay   time.Duration
	// RemoteURL makes the worker forward jobs instead of running them.
	RemoteURL string
}

type StorageConfig struct {
	// Provider is "localfs" or "gdrive".
	Provider  string
	LocalRoot string
	GDrive    GDriveConfig
}

type GDriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string
}

// JobsEnabled reports whether the asynchronous job flow has its backing stores.
func (c Config) JobsEnabled() bool {
	return c.DatabaseURL != "" && c.RedisAddr != ""
}

// Load reads the process environment.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	e := newEnv(lookup)

	cfg := Config{
		HTTPPort:    e.String("HTTP_PORT", DefaultHTTPPort),
		MetricsAddr: e.String("METRICS_ADDR", ""),
		DatabaseURL: e.String("DATABASE_URL", ""),
		RedisAddr:   e.String("REDIS_ADDR", ""),
		QueueName:   e.String("JOB_QUEUE_NAME", DefaultQueueName),
		DBMigrate:   e.Bool("DB_MIGRATE", false),
		Upscaler: UpscalerConfig{
			Executable:  e.String("UPSCALER_EXECUTABLE", ""),
			Interpreter: e.String("UPSCALER_INTERPRETER", ""),
			TempDir:     e.String("UPSCALER_TEMP_DIR", ""),
			WaitDelay:   e.Duration("UPSCALER_WAIT_DELAY", 0),
			RemoteURL:   e.String("UPSCALER_REMOTE_URL", ""),
		},
		Admission: admission.Config{
			Interval: e.Duration("ADMISSION_INTERVAL", admission.DefaultInterval),
			MaxJobs:  e.Int("ADMISSION_MAX_JOBS", 0),
		},
		Storage: StorageConfig{
			Provider:  e.String("STORAGE_PROVIDER", "localfs"),
			LocalRoot: e.String("STORAGE_LOCAL_ROOT", "/data"),
			GDrive: GDriveConfig{
				ClientID:     e.String("GDRIVE_CLIENT_ID", ""),
				ClientSecret: e.String("GDRIVE_CLIENT_SECRET", ""),
				RefreshToken: e.String("GDRIVE_REFRESH_TOKEN", ""),
				FolderID:     e.String("GDRIVE_FOLDER_ID", ""),
			},
		},
		WorkerConcurrency: int(e.Int("WORKER_CONCURRENCY", 1)),
		CORSAllowedOrigins: e.CSV("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:8081",
		}),
		JobsRequestTimeout: e.Duration("JOBS_REQUEST_TIMEOUT", DefaultJobsRequestTimeout),
		MaxUploadBytes:     e.Int("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
	}

	errs := e.errs
	if cfg.Admission.Interval < 0 {
		errs = append(errs, errors.New("ADMISSION_INTERVAL cannot be negative"))
	}
	if cfg.Admission.MaxJobs < 0 {
		errs = append(errs, errors.New("ADMISSION_MAX_JOBS cannot be negative"))
	}
	if cfg.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	if cfg.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if cfg.JobsRequestTimeout <= 0 {
		errs = append(errs, errors.New("JOBS_REQUEST_TIMEOUT must be positive"))
	}
	switch cfg.Storage.Provider {
	case "localfs", "gdrive":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_PROVIDER %q", cfg.Storage.Provider))
	}

	return cfg, errors.Join(errs...)
}

// RequireJobs fails unless DATABASE_URL and REDIS_ADDR are both set.
func (c Config) RequireJobs() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("missing DATABASE_URL"))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("missing REDIS_ADDR"))
	}
	return errors.Join(errs...)
}
