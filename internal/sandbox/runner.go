// Package sandbox compiles and runs untrusted C programs under
// resource limits. Two implementations exist: ProcessRunner executes
// directly on the host (development), DockerRunner executes inside
// disposable containers (production).
package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrInfrastructure marks failures of the execution environment itself
// (missing compiler, docker daemon down, workdir not writable) as
// opposed to failures of the submitted program.
var ErrInfrastructure = errors.New("sandbox infrastructure failure")

// Request describes one compile-and-run of a complete C program.
type Request struct {
	SubmissionID string
	TestID       string
	Source       string
	Stdin        string
	Timeout      time.Duration
	// MemoryLimitBytes caps the program's memory. Zero means the
	// runner default.
	MemoryLimitBytes int64
	// OutputLimitBytes truncates stdout/stderr capture past this size.
	OutputLimitBytes int64
}

// Result reports the outcome of one Request. A non-nil CompileError
// means the program never ran; the remaining fields are zero.
type Result struct {
	Stdout          string
	Stderr          string
	ExitCode        *int
	CompileError    *string
	Duration        time.Duration
	TimedOut        bool
	OutputTruncated bool
}

// Runner executes a single compile-and-run request to completion.
// Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
	// Ping reports whether the runner's backing infrastructure is
	// reachable (compiler present, docker daemon responding).
	Ping(ctx context.Context) error
}
