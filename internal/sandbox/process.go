package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	defaultOutputLimit = 64 * 1024

	// Grace period for exec.Cmd.Wait after the group kill; bounds how
	// long an orphaned pipe holder can stall us.
	killWaitDelay = time.Second
)

// ProcessRunner compiles and runs submissions directly on the host.
// Intended for development and CI where a container runtime is not
// available. Memory limits are not enforced in this mode.
type ProcessRunner struct {
	compiler       string
	workRoot       string
	compileTimeout time.Duration
}

// NewProcessRunner creates a runner that invokes the given compiler
// binary and stages work under workRoot.
func NewProcessRunner(compiler, workRoot string) (*ProcessRunner, error) {
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create work root: %v", ErrInfrastructure, err)
	}
	return &ProcessRunner{compiler: compiler, workRoot: workRoot, compileTimeout: compileTimeout}, nil
}

// Ping verifies the compiler is on PATH.
func (r *ProcessRunner) Ping(ctx context.Context) error {
	if _, err := exec.LookPath(r.compiler); err != nil {
		return fmt.Errorf("%w: compiler %q not found", ErrInfrastructure, r.compiler)
	}
	return nil
}

// Run compiles req.Source and, if compilation succeeds, executes the
// binary with req.Stdin under the request timeout.
func (r *ProcessRunner) Run(ctx context.Context, req Request) (*Result, error) {
	workDir := filepath.Join(r.workRoot, uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create work dir: %v", ErrInfrastructure, err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "main.c")
	binPath := filepath.Join(workDir, "prog")
	if err := os.WriteFile(srcPath, []byte(req.Source), 0o644); err != nil {
		return nil, fmt.Errorf("%w: failed to write source: %v", ErrInfrastructure, err)
	}

	// Compile step, under its own deadline so a pathological
	// translation unit cannot stall the worker. A compiler diagnostic
	// is a normal outcome, not an infrastructure error.
	compileCtx, cancelCompile := context.WithTimeout(ctx, r.compileTimeout)
	defer cancelCompile()

	compileCmd := exec.CommandContext(compileCtx, r.compiler, srcPath, "-o", binPath, "-Wall", "-lm")
	killGroupOnCancel(compileCmd)
	compileOut, err := compileCmd.CombinedOutput()
	if errors.Is(compileCtx.Err(), context.DeadlineExceeded) {
		msg := "compilation timed out"
		return &Result{CompileError: &msg}, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(string(compileOut))
			if msg == "" {
				msg = "compilation failed"
			}
			return &Result{CompileError: &msg}, nil
		}
		return nil, fmt.Errorf("%w: compile: %v", ErrInfrastructure, err)
	}

	outputLimit := req.OutputLimitBytes
	if outputLimit <= 0 {
		outputLimit = defaultOutputLimit
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	stdout := newLimitWriter(outputLimit)
	stderr := newLimitWriter(outputLimit)
	runCmd := exec.CommandContext(runCtx, binPath)
	killGroupOnCancel(runCmd)
	runCmd.Stdin = strings.NewReader(req.Stdin)
	runCmd.Stdout = stdout
	runCmd.Stderr = stderr

	start := time.Now()
	runErr := runCmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		Duration:        duration,
		OutputTruncated: stdout.Truncated() || stderr.Truncated(),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		slog.Debug("submission timed out",
			"submission_id", req.SubmissionID, "test_id", req.TestID, "timeout", req.Timeout)
		return result, nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("%w: run: %v", ErrInfrastructure, runErr)
		}
	}
	if runCmd.ProcessState != nil {
		if code := runCmd.ProcessState.ExitCode(); code >= 0 {
			result.ExitCode = &code
		}
	}
	return result, nil
}

// killGroupOnCancel runs cmd in its own process group and, on context
// cancellation, kills the whole group. The default CommandContext
// behavior signals only the direct child; a submission that forks
// would leave a grandchild holding the stdout/stderr pipes, keeping
// Wait blocked past the deadline for as long as the grandchild likes.
// WaitDelay bounds the pipe drain in case the group kill misses a
// re-parented straggler.
func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killWaitDelay
}

// limitWriter buffers writes up to a byte cap and records whether any
// output was dropped.
type limitWriter struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func newLimitWriter(limit int64) *limitWriter {
	return &limitWriter{limit: limit}
}

func (w *limitWriter) Write(p []byte) (int, error) {
	n := len(p)
	remain := w.limit - int64(w.buf.Len())
	if remain <= 0 {
		if n > 0 {
			w.truncated = true
		}
		return n, nil
	}
	if int64(n) > remain {
		p = p[:remain]
		w.truncated = true
	}
	w.buf.Write(p)
	return n, nil
}

func (w *limitWriter) String() string  { return w.buf.String() }
func (w *limitWriter) Truncated() bool { return w.truncated }
