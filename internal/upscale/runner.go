package upscale

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultInterpreter runs the embedded script when no executable is configured.
const DefaultInterpreter = "python"

// defaultWaitDelay bounds how long Wait keeps reading pipes inherited by
// grandchildren after the worker itself has exited or been killed.
const defaultWaitDelay = 5 * time.Second

// RunnerConfig selects and tunes the worker process.
type RunnerConfig struct {
	// Executable is an explicit worker. When empty, Interpreter is started with
	// InterpreterArgs and Script is written to its stdin.
	Executable string
	// Interpreter defaults to DefaultInterpreter.
	Interpreter string
	// InterpreterArgs defaults to []string{"-"}, which makes python read stdin.
	InterpreterArgs []string
	// Script defaults to the embedded waifu2x script.
	Script []byte
	// WaitDelay defaults to 5s.
	WaitDelay time.Duration
}

// Runner starts one worker per call to Run. It holds no per-job state and is safe
// for concurrent use.
type Runner struct {
	executable      string
	interpreter     string
	interpreterArgs []string
	script          []byte
	waitDelay       time.Duration
	environ         func() []string
}

// NewRunner builds a Runner, filling unset fields with defaults.
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		executable:      strings.TrimSpace(cfg.Executable),
		interpreter:     strings.TrimSpace(cfg.Interpreter),
		interpreterArgs: cfg.InterpreterArgs,
		script:          cfg.Script,
		waitDelay:       cfg.WaitDelay,
		environ:         os.Environ,
	}
	if r.interpreter == "" {
		r.interpreter = DefaultInterpreter
	}
	if r.interpreterArgs == nil {
		r.interpreterArgs = []string{"-"}
	}
	if r.script == nil {
		r.script = DefaultScript()
	}
	if r.waitDelay <= 0 {
		r.waitDelay = defaultWaitDelay
	}
	return r
}

// Program returns the binary Run starts: the executable if set, else the interpreter.
func (r *Runner) Program() string {
	if r.executable != "" {
		return r.executable
	}
	return r.interpreter
}

// Run executes the worker for one job and returns the dimensions it reports.
//
// destination must have a .png extension. With d.Timeout set, the worker and
// anything it started are killed once the deadline passes. Cancelling ctx has
// the same effect.
func (r *Runner) Run(ctx context.Context, d Descriptor, source, destination string) (Dimensions, error) {
	if !strings.EqualFold(filepath.Ext(destination), ".png") {
		return Dimensions{}, &Error{
			Kind: KindInvalidDestination,
			Err:  errors.New("destination file must be png"),
		}
	}

	runCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	cmd := r.command(runCtx)
	cmd.Env = append(inheritedEnv(r.environ()), d.Environ(source, destination)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	feedScript := r.executable == ""
	var stdin io.WriteCloser
	if feedScript {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return Dimensions{}, &Error{Kind: KindSpawn, Err: err}
		}
		stdin = pipe
	}

	if err := cmd.Start(); err != nil {
		return Dimensions{}, &Error{Kind: KindSpawn, Err: err}
	}

	// The script is written while Wait runs, so a worker that never reads stdin
	// cannot stall us past the deadline; Wait closes the pipe once it exits.
	feedErr := make(chan error, 1)
	if feedScript {
		go func() {
			_, werr := stdin.Write(r.script)
			cerr := stdin.Close()
			if werr != nil {
				feedErr <- werr
				return
			}
			feedErr <- cerr
		}()
	} else {
		feedErr <- nil
	}

	waitErr := cmd.Wait()
	writeErr := <-feedErr

	if waitErr != nil && runCtx.Err() != nil {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Dimensions{}, &Error{
				Kind:     KindTimeout,
				ExitCode: exitCode(cmd),
				Stderr:   stderr.Bytes(),
				Err:      runCtx.Err(),
			}
		}
		return Dimensions{}, &Error{
			Kind:     KindExec,
			ExitCode: exitCode(cmd),
			Stderr:   stderr.Bytes(),
			Err:      ctx.Err(),
		}
	}

	if writeErr != nil {
		return Dimensions{}, &Error{Kind: KindSpawn, Stderr: stderr.Bytes(), Err: writeErr}
	}

	// The worker exited 0 but something it started kept stdout open past the
	// wait delay. Its output is complete; the stragglers are killed.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		_ = killTree(cmd)
		waitErr = nil
	}

	if waitErr != nil {
		return Dimensions{}, &Error{
			Kind:     KindExec,
			ExitCode: exitCode(cmd),
			Stderr:   stderr.Bytes(),
			Err:      waitErr,
		}
	}

	return ParseResolution(stdout.Bytes())
}

// inheritedEnv drops worker variables from the service's own environment so
// only the descriptor decides what the worker sees.
func inheritedEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, EnvPrefix) {
			out = append(out, kv)
		}
	}
	return out
}

func (r *Runner) command(ctx context.Context) *exec.Cmd {
	var cmd *exec.Cmd
	if r.executable != "" {
		cmd = exec.CommandContext(ctx, r.executable)
	} else {
		cmd = exec.CommandContext(ctx, r.interpreter, r.interpreterArgs...)
	}
	setProcAttr(cmd)
	cmd.Cancel = func() error { return killTree(cmd) }
	cmd.WaitDelay = r.waitDelay
	return cmd
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}
