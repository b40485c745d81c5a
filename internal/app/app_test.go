package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"upscaled/internal/admission"
	"upscaled/internal/config"
	"upscaled/internal/pkg/logger"
	"upscaled/internal/upscaler"
)

func TestNewUpscalerLocal(t *testing.T) {
	cfg := config.Config{
		Upscaler:  config.UpscalerConfig{Executable: "/opt/waifu2x/run"},
		Admission: admission.Config{Interval: time.Millisecond, MaxJobs: 3},
	}

	up, program, maxJobs := NewUpscaler(cfg, logger.Discard())
	assert.IsType(t, &upscaler.Service{}, up)
	assert.Equal(t, "/opt/waifu2x/run", program)
	assert.Equal(t, int64(3), maxJobs)
}

func TestNewUpscalerRemote(t *testing.T) {
	cfg := config.Config{Upscaler: config.UpscalerConfig{RemoteURL: "http://gpu:8080/"}}

	up, program, maxJobs := NewUpscaler(cfg, logger.Discard())
	assert.IsType(t, &upscaler.Client{}, up)
	assert.Empty(t, program)
	assert.Zero(t, maxJobs)
}

func TestNewServer(t *testing.T) {
	srv := NewServer(":0", nil)
	assert.Equal(t, ":0", srv.Addr)
	assert.Zero(t, srv.WriteTimeout)
	assert.Positive(t, srv.ReadHeaderTimeout)
}
