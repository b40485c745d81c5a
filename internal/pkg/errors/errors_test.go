package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := Newf(CodeValidation, "scale %d out of range", 0)

	if err.Code != CodeValidation {
		t.Errorf("code = %s", err.Code)
	}
	if err.Message != "scale 0 out of range" {
		t.Errorf("message = %q", err.Message)
	}
	if len(err.Stack) == 0 {
		t.Error("expected a captured stack")
	}
	if !strings.Contains(err.StackTrace(), "errors_test.go:") {
		t.Errorf("stack should start in the caller, got:\n%s", err.StackTrace())
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{New(CodeValidation, "invalid"), "[VALIDATION_ERROR] invalid"},
		{&Error{Code: CodeInternal, Op: "jobs.create", Message: "insert failed"}, "jobs.create: [INTERNAL_ERROR] insert failed"},
		{&Error{Message: "read output", Err: fmt.Errorf("eof")}, "read output: eof"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "op", "msg") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if WrapWithCode(nil, CodeTimeout, "op", "msg") != nil {
		t.Error("WrapWithCode(nil) should be nil")
	}

	cause := fmt.Errorf("exit status 1")
	wrapped := Wrap(cause, "upscaler.run", "upscale failed")
	if wrapped.Code != CodeInternal || wrapped.Op != "upscaler.run" {
		t.Errorf("unexpected wrap %+v", wrapped)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause should stay in the chain")
	}

	inner := NotFound("job", "job_1")
	outer := Wrap(inner, "jobs.get", "load job")
	if outer.Code != CodeNotFound {
		t.Errorf("code not preserved: %s", outer.Code)
	}
	if outer.Fields["id"] != "job_1" {
		t.Errorf("fields not preserved: %v", outer.Fields)
	}
	outer.WithField("id", "changed")
	if inner.Fields["id"] != "job_1" {
		t.Error("wrapping must copy fields, not share them")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeValidation:    http.StatusBadRequest,
		CodeNotFound:      http.StatusNotFound,
		CodeConflict:      http.StatusConflict,
		CodeTooLarge:      http.StatusRequestEntityTooLarge,
		CodeFailedPrecond: http.StatusPreconditionFailed,
		CodeTimeout:       http.StatusGatewayTimeout,
		CodeUnavailable:   http.StatusServiceUnavailable,
		CodeInternal:      http.StatusInternalServerError,
		Code("UNKNOWN"):   http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := (&Error{Code: code}).HTTPStatus(); got != want {
			t.Errorf("%s: status = %d, want %d", code, got, want)
		}
	}

	if GetHTTPStatus(fmt.Errorf("plain")) != http.StatusInternalServerError {
		t.Error("plain errors should map to 500")
	}
	if GetHTTPStatus(fmt.Errorf("ctx: %w", Validation("bad"))) != http.StatusBadRequest {
		t.Error("wrapped coded errors should keep their status")
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(Validation("scale must be between 1 and 255")); got != "scale must be between 1 and 255" {
		t.Errorf("validation message hidden: %q", got)
	}
	secret := Wrap(fmt.Errorf("stderr: CUDA out of memory"), "upscaler.run", "worker exited with 1")
	if got := PublicMessage(secret); got != "internal server error" {
		t.Errorf("internal message leaked: %q", got)
	}
	if got := PublicMessage(fmt.Errorf("plain")); got != "internal server error" {
		t.Errorf("plain message leaked: %q", got)
	}
}

func TestHelpers(t *testing.T) {
	nf := NotFound("job", "job_9")
	if !IsNotFound(nf) || IsValidation(nf) {
		t.Error("IsNotFound/IsValidation mismatch")
	}
	if nf.Message != "job not found: job_9" {
		t.Errorf("message = %q", nf.Message)
	}

	vf := ValidationField("scale", "must be positive")
	if !IsValidation(vf) || GetFields(vf)["field"] != "scale" {
		t.Errorf("unexpected %+v", vf)
	}

	un := Unavailable("redis")
	if un.Code != CodeUnavailable || un.Fields["service"] != "redis" {
		t.Errorf("unexpected %+v", un)
	}

	if GetCode(fmt.Errorf("plain")) != CodeInternal {
		t.Error("plain errors should report CodeInternal")
	}
	if GetFields(fmt.Errorf("plain")) != nil {
		t.Error("plain errors have no fields")
	}
	if Internal("x").Code != CodeInternal {
		t.Error("Internal code")
	}
}

func TestIsMatchesCode(t *testing.T) {
	a := New(CodeNotFound, "a")
	b := New(CodeNotFound, "b")
	c := New(CodeValidation, "c")

	if !errors.Is(a, b) {
		t.Error("same code should match")
	}
	if errors.Is(a, c) {
		t.Error("different codes should not match")
	}

	var target *Error
	if !As(fmt.Errorf("outer: %w", a), &target) || target != a {
		t.Error("As should find the coded error")
	}
	if !Is(fmt.Errorf("outer: %w", a), b) {
		t.Error("Is should match through wrapping")
	}
}
