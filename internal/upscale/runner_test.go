//go:build unix

package upscale

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWorker creates an executable shell script and returns its path.
func writeWorker(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// runPaths returns a source file and a png destination inside a temp dir.
func runPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "in.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg"), 0o644))
	return src, filepath.Join(dir, "out.png")
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, kind, uerr.Kind, "error: %v", err)
	return uerr
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	return pid
}

// processRunning treats zombies as gone: they hold no resources but a pid.
func processRunning(pid int) bool {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err == nil {
		// pid (comm) STATE ...
		if i := bytes.LastIndexByte(stat, ')'); i >= 0 && i+2 < len(stat) {
			return stat[i+2] != 'Z'
		}
		return true
	}
	if errors.Is(err, os.ErrNotExist) {
		if _, statErr := os.Stat("/proc/self"); statErr == nil {
			return false
		}
	}
	return syscall.Kill(pid, 0) == nil
}

func TestRunnerExecutableSuccess(t *testing.T) {
	t.Setenv("UPSCALED_TEST_MARKER", "inherited")
	worker := writeWorker(t, `
printf '%s|%s|%s' "$UPSCALE_SCALING_FACTOR" "$UPSCALE_SOURCE" "$UPSCALED_TEST_MARKER" > "$UPSCALE_DESTINATION"
echo 200x400
`)
	src, dst := runPaths(t)

	var d Descriptor
	d.SetScale(2)

	res, err := NewRunner(RunnerConfig{Executable: worker}).Run(context.Background(), d, src, dst)
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 200, Height: 400}, res)

	written, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "2|"+src+"|inherited", string(written))
}

func TestRunnerRejectsNonPNGDestination(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "spawned")
	worker := writeWorker(t, "touch "+marker+"\necho 1x1\n")

	for _, dst := range []string{"out.jpg", "out", "out.png.bak", ""} {
		t.Run(dst, func(t *testing.T) {
			_, err := NewRunner(RunnerConfig{Executable: worker}).
				Run(context.Background(), Descriptor{}, filepath.Join(dir, "in.png"), filepath.Join(dir, dst))
			requireKind(t, err, KindInvalidDestination)
			assert.NoFileExists(t, marker)
		})
	}
}

func TestRunnerAcceptsUppercasePNG(t *testing.T) {
	worker := writeWorker(t, "echo 3x4\n")
	src, _ := runPaths(t)

	res, err := NewRunner(RunnerConfig{Executable: worker}).
		Run(context.Background(), Descriptor{}, src, filepath.Join(t.TempDir(), "OUT.PNG"))
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 3, Height: 4}, res)
}

func TestRunnerFeedsScriptOnStdin(t *testing.T) {
	src, dst := runPaths(t)
	runner := NewRunner(RunnerConfig{
		Interpreter:     "/bin/sh",
		InterpreterArgs: []string{"-s"},
		Script:          []byte(`echo "${UPSCALE_TARGET_WIDTH}x${UPSCALE_TARGET_HEIGHT}"` + "\n"),
	})

	var d Descriptor
	d.SetTarget(640, 480)

	res, err := runner.Run(context.Background(), d, src, dst)
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 640, Height: 480}, res)
}

func TestRunnerDefaults(t *testing.T) {
	r := NewRunner(RunnerConfig{})
	assert.Equal(t, DefaultInterpreter, r.Program())
	assert.Equal(t, []string{"-"}, r.interpreterArgs)
	assert.Equal(t, DefaultScript(), r.script)
	assert.Contains(t, string(r.script), "UPSCALE_DESTINATION")

	r = NewRunner(RunnerConfig{Executable: " /opt/worker "})
	assert.Equal(t, "/opt/worker", r.Program())
}

func TestRunnerExecFailure(t *testing.T) {
	worker := writeWorker(t, "echo boom >&2\necho 10x10\nexit 3\n")
	src, dst := runPaths(t)

	_, err := NewRunner(RunnerConfig{Executable: worker}).Run(context.Background(), Descriptor{}, src, dst)
	uerr := requireKind(t, err, KindExec)
	assert.Equal(t, 3, uerr.ExitCode)
	assert.Equal(t, "boom\n", string(uerr.Stderr))
	assert.NotContains(t, err.Error(), "boom")
}

func TestRunnerParseFailure(t *testing.T) {
	worker := writeWorker(t, "echo bogus\n")
	src, dst := runPaths(t)

	_, err := NewRunner(RunnerConfig{Executable: worker}).Run(context.Background(), Descriptor{}, src, dst)
	uerr := requireKind(t, err, KindParse)
	assert.Equal(t, "bogus\n", string(uerr.Raw))
}

func TestRunnerSpawnFailure(t *testing.T) {
	src, dst := runPaths(t)

	_, err := NewRunner(RunnerConfig{Executable: filepath.Join(t.TempDir(), "missing")}).
		Run(context.Background(), Descriptor{}, src, dst)
	requireKind(t, err, KindSpawn)
}

func TestRunnerScriptWriteFailure(t *testing.T) {
	src, dst := runPaths(t)
	runner := NewRunner(RunnerConfig{
		Interpreter:     "/bin/sh",
		InterpreterArgs: []string{"-c", "exec 0<&-; echo 1x1"},
		// Larger than any pipe buffer, so the write cannot complete.
		Script: bytes.Repeat([]byte("#"), 4<<20),
	})

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), Descriptor{}, src, dst)
		done <- err
	}()

	select {
	case err := <-done:
		requireKind(t, err, KindSpawn)
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not return after the worker closed stdin")
	}
}

func TestRunnerTimeoutKillsWorkerAndChildren(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "worker.pid")
	childFile := filepath.Join(dir, "child.pid")
	worker := writeWorker(t, `
echo $$ > `+pidFile+`
sleep 30 &
echo $! > `+childFile+`
wait
echo 1x1
`)
	src, dst := runPaths(t)

	var d Descriptor
	d.SetTimeout(300 * time.Millisecond)

	start := time.Now()
	_, err := NewRunner(RunnerConfig{Executable: worker}).Run(context.Background(), d, src, dst)
	elapsed := time.Since(start)

	uerr := requireKind(t, err, KindTimeout)
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, uerr, context.DeadlineExceeded)
	assert.Equal(t, -1, uerr.ExitCode, "killed by signal")
	assert.Less(t, elapsed, 10*time.Second)

	workerPID := readPID(t, pidFile)
	childPID := readPID(t, childFile)
	assert.False(t, processRunning(workerPID), "worker still running")
	assert.Eventually(t, func() bool { return !processRunning(childPID) },
		5*time.Second, 20*time.Millisecond, "worker child still running")
}

func TestRunnerWithoutTimeoutWaits(t *testing.T) {
	worker := writeWorker(t, "sleep 0.3\necho 5x6\n")
	src, dst := runPaths(t)

	res, err := NewRunner(RunnerConfig{Executable: worker}).Run(context.Background(), Descriptor{}, src, dst)
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 5, Height: 6}, res)
}

func TestRunnerCallerCancel(t *testing.T) {
	worker := writeWorker(t, "sleep 30\n")
	src, dst := runPaths(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	_, err := NewRunner(RunnerConfig{Executable: worker}).Run(ctx, Descriptor{}, src, dst)
	uerr := requireKind(t, err, KindExec)
	assert.ErrorIs(t, uerr, context.Canceled)
}

func TestRunnerDropsInheritedWorkerVariables(t *testing.T) {
	t.Setenv(EnvTargetWidth, "999")
	t.Setenv(EnvMinHeight, "777")
	t.Setenv("UPSCALED_TEST_MARKER", "kept")
	worker := writeWorker(t, `
printf '%s|%s|%s|%s' "$UPSCALE_SCALING_FACTOR" "$UPSCALE_TARGET_WIDTH" "$UPSCALE_MIN_HEIGHT" "$UPSCALED_TEST_MARKER" > "$UPSCALE_DESTINATION"
echo 1x1
`)
	src, dst := runPaths(t)

	var d Descriptor
	d.SetScale(2)

	_, err := NewRunner(RunnerConfig{Executable: worker}).Run(context.Background(), d, src, dst)
	require.NoError(t, err)

	written, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "2|||kept", string(written))
}

func TestRunnerLeftoverChildAfterSuccess(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	worker := writeWorker(t, "sleep 8 &\necho $! > "+pidFile+"\necho 2x2\nexit 0\n")
	src, dst := runPaths(t)

	start := time.Now()
	res, err := NewRunner(RunnerConfig{Executable: worker, WaitDelay: 200 * time.Millisecond}).
		Run(context.Background(), Descriptor{}, src, dst)
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 2, Height: 2}, res)
	assert.Less(t, time.Since(start), 5*time.Second)

	child := readPID(t, pidFile)
	assert.Eventually(t, func() bool { return !processRunning(child) }, 2*time.Second, 20*time.Millisecond)
}

func TestRunnerLeftoverChildAfterFailure(t *testing.T) {
	worker := writeWorker(t, "sleep 8 &\necho boom >&2\nexit 3\n")
	src, dst := runPaths(t)

	_, err := NewRunner(RunnerConfig{Executable: worker, WaitDelay: 200 * time.Millisecond}).
		Run(context.Background(), Descriptor{}, src, dst)
	uerr := requireKind(t, err, KindExec)
	assert.Equal(t, 3, uerr.ExitCode)
}

func TestInheritedEnv(t *testing.T) {
	got := inheritedEnv([]string{"PATH=/bin", "UPSCALE_DENOISE=3", "UPSCALED_X=1", "HOME=/root"})
	assert.Equal(t, []string{"PATH=/bin", "UPSCALED_X=1", "HOME=/root"}, got)
}
