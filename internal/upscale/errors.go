package upscale

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a run failed.
type Kind string

const (
	KindInvalidDestination Kind = "invalid_destination_format"
	KindSpawn              Kind = "process_spawn_failure"
	KindExec               Kind = "process_exec_failure"
	KindTimeout            Kind = "process_timeout"
	KindParse              Kind = "output_parse_failure"
)

// Error is returned by Runner.Run and ParseResolution.
// Stderr and Raw are kept for diagnostics only.
type Error struct {
	Kind Kind
	// ExitCode is set for KindExec and KindTimeout; -1 when the worker did
	// not exit normally.
	ExitCode int
	// Stderr is the worker's captured standard error.
	Stderr []byte
	// Raw is the unparseable stdout for KindParse.
	Raw []byte
	Err error
}

// Error formats the failure without the captured output.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("upscale: ")
	b.WriteString(string(e.Kind))

	switch e.Kind {
	case KindExec:
		fmt.Fprintf(&b, " (exit=%d)", e.ExitCode)
	case KindParse:
		fmt.Fprintf(&b, " (output=%q)", truncate(e.Raw, 64))
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout reports whether err is a worker timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
