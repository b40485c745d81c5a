//go:build unix

package upscaler

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upscaled/internal/admission"
	"upscaled/internal/pkg/errors"
	"upscaled/internal/pkg/logger"
	"upscaled/internal/upscale"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeWorker(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newService(t *testing.T, worker string) (*Service, string) {
	t.Helper()
	scratchDir := t.TempDir()
	svc := New(Deps{
		Runner:    upscale.NewRunner(upscale.RunnerConfig{Executable: worker}),
		Admission: admission.New(admission.Config{MaxJobs: 1}, logger.Discard()),
		TempDir:   scratchDir,
		Log:       logger.Discard(),
	})
	return svc, scratchDir
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files left behind")
}

func TestUpscaleEndToEnd(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "upscaled.png")
	require.NoError(t, os.WriteFile(fixture, encodePNG(t, 200, 400), 0o644))
	t.Setenv("UPSCALED_TEST_FIXTURE", fixture)

	worker := writeWorker(t, `
[ "$UPSCALE_SCALING_FACTOR" = 2 ] || { echo "bad factor: $UPSCALE_SCALING_FACTOR" >&2; exit 9; }
cp "$UPSCALED_TEST_FIXTURE" "$UPSCALE_DESTINATION"
echo 200x400
`)
	svc, scratchDir := newService(t, worker)

	var d upscale.Descriptor
	d.SetScale(2)

	res, err := svc.Upscale(context.Background(), Request{
		Original:   encodePNG(t, 100, 200),
		Ext:        "png",
		Descriptor: d,
	})
	require.NoError(t, err)
	assert.Equal(t, upscale.Dimensions{Width: 200, Height: 400}, res.Res)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Upscaled))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 400, cfg.Height)

	requireEmptyDir(t, scratchDir)
}

func TestUpscaleWritesOriginalToInput(t *testing.T) {
	worker := writeWorker(t, `
case "$UPSCALE_SOURCE" in *.jpeg) ;; *) exit 7 ;; esac
cp "$UPSCALE_SOURCE" "$UPSCALE_DESTINATION"
echo 1x1
`)
	svc, scratchDir := newService(t, worker)

	res, err := svc.Upscale(context.Background(), Request{Original: []byte("not really a jpeg"), Ext: ".jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "not really a jpeg", string(res.Upscaled))
	requireEmptyDir(t, scratchDir)
}

func TestUpscaleFailureCleansUp(t *testing.T) {
	worker := writeWorker(t, `
echo partial > "$UPSCALE_DESTINATION"
echo "CUDA out of memory" >&2
exit 1
`)
	svc, scratchDir := newService(t, worker)

	_, err := svc.Upscale(context.Background(), Request{Original: []byte("x"), Ext: "png"})
	require.Error(t, err)

	assert.Equal(t, upscale.KindExec, upscale.KindOf(err))
	assert.Equal(t, string(upscale.KindExec), errors.GetFields(err)["kind"])
	assert.Equal(t, "internal server error", errors.PublicMessage(err))

	requireEmptyDir(t, scratchDir)
}

func TestUpscaleParseFailure(t *testing.T) {
	worker := writeWorker(t, "echo done\n")
	svc, scratchDir := newService(t, worker)

	_, err := svc.Upscale(context.Background(), Request{Original: []byte("x"), Ext: "png"})
	require.Error(t, err)
	assert.Equal(t, upscale.KindParse, upscale.KindOf(err))
	requireEmptyDir(t, scratchDir)
}

func TestUpscaleIgnoresCallerCancellation(t *testing.T) {
	worker := writeWorker(t, "sleep 0.2\necho 4x4\n")
	svc, _ := newService(t, worker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Upscale(ctx, Request{Original: []byte("x"), Ext: "png"})
	require.NoError(t, err)
	assert.Equal(t, upscale.Dimensions{Width: 4, Height: 4}, res.Res)
}

func TestUpscaleRejectsBadExtension(t *testing.T) {
	svc, scratchDir := newService(t, writeWorker(t, "echo 1x1\n"))

	_, err := svc.Upscale(context.Background(), Request{Original: []byte("x"), Ext: "../../etc"})
	require.Error(t, err)
	requireEmptyDir(t, scratchDir)
}

func TestUpscaleTimeoutCleansUp(t *testing.T) {
	svc, scratchDir := newService(t, writeWorker(t, "echo partial > \"$UPSCALE_DESTINATION\"\nsleep 30\n"))

	var d upscale.Descriptor
	d.SetTimeout(200 * time.Millisecond)

	start := time.Now()
	_, err := svc.Upscale(context.Background(), Request{Original: []byte("x"), Ext: "png", Descriptor: d})
	require.Error(t, err)
	assert.Equal(t, upscale.KindTimeout, upscale.KindOf(err))
	assert.Less(t, time.Since(start), 10*time.Second)

	requireEmptyDir(t, scratchDir)
}

func TestUpscaleBoundsConcurrentWorkers(t *testing.T) {
	runDir := t.TempDir()
	logFile := filepath.Join(t.TempDir(), "running.log")
	t.Setenv("UPSCALED_TEST_RUNDIR", runDir)
	t.Setenv("UPSCALED_TEST_LOG", logFile)

	worker := writeWorker(t, `
touch "$UPSCALED_TEST_RUNDIR/running.$$"
ls "$UPSCALED_TEST_RUNDIR" | grep -c '^running\.' >> "$UPSCALED_TEST_LOG"
sleep 0.3
rm -f "$UPSCALED_TEST_RUNDIR/running.$$"
echo 1x1
`)
	scratchDir := t.TempDir()
	svc := New(Deps{
		Runner:    upscale.NewRunner(upscale.RunnerConfig{Executable: worker}),
		Admission: admission.New(admission.Config{MaxJobs: 2}, logger.Discard()),
		TempDir:   scratchDir,
		Log:       logger.Discard(),
	})

	const jobs = 6
	var wg sync.WaitGroup
	errs := make([]error, jobs)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Upscale(context.Background(), Request{Original: []byte("x"), Ext: "png"})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Fields(string(raw))
	require.Len(t, lines, jobs)

	peak := 0
	for _, line := range lines {
		n, err := strconv.Atoi(line)
		require.NoError(t, err)
		peak = max(peak, n)
	}
	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)

	requireEmptyDir(t, scratchDir)
}

func TestUpscaleWithoutAdmissionController(t *testing.T) {
	scratchDir := t.TempDir()
	svc := New(Deps{
		Runner:  upscale.NewRunner(upscale.RunnerConfig{Executable: writeWorker(t, "echo 3x5\n")}),
		TempDir: scratchDir,
		Log:     logger.Discard(),
	})

	res, err := svc.Upscale(context.Background(), Request{Original: []byte("x"), Ext: "png"})
	require.NoError(t, err)
	assert.Equal(t, upscale.Dimensions{Width: 3, Height: 5}, res.Res)
	requireEmptyDir(t, scratchDir)
}

func TestTail(t *testing.T) {
	assert.Equal(t, []byte("abc"), tail([]byte("abc"), 5))
	assert.Equal(t, []byte("cde"), tail([]byte("abcde"), 3))
}
