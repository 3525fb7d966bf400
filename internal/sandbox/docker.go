package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
)

const (
	compileTimeout = 30 * time.Second
	workMount      = "/work"
)

// DockerRunner compiles and runs submissions inside disposable
// containers with no network and hard resource limits. The work root
// must be a host path that the docker daemon can bind-mount.
type DockerRunner struct {
	docker   *client.Client
	image    string
	workRoot string
}

// NewDockerRunner connects to the docker daemon and ensures the
// sandbox image is present.
func NewDockerRunner(ctx context.Context, host, image, workRoot string) (*DockerRunner, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create docker client: %v", ErrInfrastructure, err)
	}

	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create work root: %v", ErrInfrastructure, err)
	}

	r := &DockerRunner{docker: cli, image: image, workRoot: workRoot}
	if err := r.ensureImage(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Ping checks docker daemon connectivity.
func (r *DockerRunner) Ping(ctx context.Context) error {
	if _, err := r.docker.Ping(ctx); err != nil {
		return fmt.Errorf("%w: docker ping failed: %v", ErrInfrastructure, err)
	}
	return nil
}

// ensureImage pulls the sandbox image if not present locally.
func (r *DockerRunner) ensureImage(ctx context.Context) error {
	if _, _, err := r.docker.ImageInspectWithRaw(ctx, r.image); err == nil {
		return nil
	}

	slog.Info("pulling sandbox image", "image", r.image)
	out, err := r.docker.ImagePull(ctx, r.image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("%w: failed to pull image %s: %v", ErrInfrastructure, r.image, err)
	}
	defer out.Close()
	_, _ = io.Copy(io.Discard, out)
	return nil
}

// Run stages the source into a per-request work directory, compiles it
// in one container and runs the binary in a second one. All program
// I/O goes through files in the bind-mounted directory.
func (r *DockerRunner) Run(ctx context.Context, req Request) (*Result, error) {
	workDir := filepath.Join(r.workRoot, uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create work dir: %v", ErrInfrastructure, err)
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, "main.c"), []byte(req.Source), 0o644); err != nil {
		return nil, fmt.Errorf("%w: failed to write source: %v", ErrInfrastructure, err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "input.txt"), []byte(req.Stdin), 0o644); err != nil {
		return nil, fmt.Errorf("%w: failed to write stdin: %v", ErrInfrastructure, err)
	}

	// Compile step.
	compileScript := fmt.Sprintf("gcc %s/main.c -o %s/prog -Wall -lm 2>%s/compile.log", workMount, workMount, workMount)
	compileCode, compileTimedOut, err := r.runContainer(ctx, workDir, compileScript, compileTimeout, req)
	if err != nil {
		return nil, err
	}
	if compileTimedOut {
		msg := "compilation timed out"
		return &Result{CompileError: &msg}, nil
	}
	if compileCode != 0 {
		log, _ := readCapped(filepath.Join(workDir, "compile.log"), defaultOutputLimit)
		msg := strings.TrimSpace(log)
		if msg == "" {
			msg = "compilation failed"
		}
		return &Result{CompileError: &msg}, nil
	}

	// Run step.
	runScript := fmt.Sprintf("%s/prog <%s/input.txt >%s/stdout.log 2>%s/stderr.log", workMount, workMount, workMount, workMount)
	start := time.Now()
	exitCode, timedOut, err := r.runContainer(ctx, workDir, runScript, req.Timeout, req)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	outputLimit := req.OutputLimitBytes
	if outputLimit <= 0 {
		outputLimit = defaultOutputLimit
	}

	stdout, stdoutTruncated := readCapped(filepath.Join(workDir, "stdout.log"), outputLimit)
	stderr, stderrTruncated := readCapped(filepath.Join(workDir, "stderr.log"), outputLimit)

	result := &Result{
		Stdout:          stdout,
		Stderr:          stderr,
		Duration:        duration,
		TimedOut:        timedOut,
		OutputTruncated: stdoutTruncated || stderrTruncated,
	}
	if !timedOut {
		result.ExitCode = &exitCode
	}
	return result, nil
}

// runContainer creates, starts and waits on a one-shot container
// executing script under sh. Returns the exit code, or timedOut=true
// if the container had to be killed.
func (r *DockerRunner) runContainer(ctx context.Context, workDir, script string, timeout time.Duration, req Request) (int, bool, error) {
	memory := req.MemoryLimitBytes
	if memory <= 0 {
		memory = 128 * 1024 * 1024
	}

	containerConfig := &container.Config{
		Image:           r.image,
		Cmd:             []string{"sh", "-c", script},
		NetworkDisabled: true,
		Labels: map[string]string{
			"quest.submission": req.SubmissionID,
			"quest.test":       req.TestID,
			"quest.managed":    "true",
		},
	}

	hostConfig := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:%s", workDir, workMount)},
		Resources: container.Resources{
			Memory:    memory,
			NanoCPUs:  1_000_000_000,
			PidsLimit: int64Ptr(64),
		},
		NetworkMode: container.NetworkMode("none"),
		AutoRemove:  false,
	}

	resp, err := r.docker.ContainerCreate(ctx, containerConfig, hostConfig, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return 0, false, fmt.Errorf("%w: failed to create container: %v", ErrInfrastructure, err)
	}
	defer func() {
		_ = r.docker.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}()

	if err := r.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return 0, false, fmt.Errorf("%w: failed to start container: %v", ErrInfrastructure, err)
	}

	waitCh, errCh := r.docker.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case status := <-waitCh:
		return int(status.StatusCode), false, nil
	case err := <-errCh:
		return 0, false, fmt.Errorf("%w: container wait failed: %v", ErrInfrastructure, err)
	case <-time.After(timeout):
		_ = r.docker.ContainerKill(context.Background(), resp.ID, "KILL")
		return 0, true, nil
	case <-ctx.Done():
		_ = r.docker.ContainerKill(context.Background(), resp.ID, "KILL")
		return 0, false, fmt.Errorf("%w: %v", ErrInfrastructure, ctx.Err())
	}
}

// readCapped reads at most limit bytes from a file and reports whether
// anything was cut off. A missing file reads as empty.
func readCapped(path string, limit int64) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", false
	}

	truncated := false
	if info, err := f.Stat(); err == nil && info.Size() > limit {
		truncated = true
	}
	return string(data), truncated
}

func int64Ptr(v int64) *int64 { return &v }
