package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/workspace"
)

const (
	defaultMemoryBytes = 1 << 30
	defaultCPUs        = 2.0
	containerWorkdir   = "/workspace"
)

// DockerRunner runs each command in a fresh container with the working
// directory bind-mounted, no capabilities, a read-only root filesystem and,
// unless configured otherwise, no network.
type DockerRunner struct {
	client *client.Client
	config Config
}

// NewDockerRunner connects to the daemon from the environment and pings it.
func NewDockerRunner(ctx context.Context, cfg Config) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("docker daemon not reachable: %w", err)
	}
	return &DockerRunner{client: cli, config: cfg}, nil
}

// Close releases the docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

// RunCmd runs name inside a container built from the project's image.
func (r *DockerRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	img := ImageFor(workspace.DetectProjectType(dir), r.config)
	if err := r.ensureImage(ctx, img); err != nil {
		return Result{}, fmt.Errorf("ensure image %s: %w", img, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", dir, err)
	}

	cfg := &container.Config{
		Image:           img,
		Cmd:             append([]string{name}, args...),
		WorkingDir:      containerWorkdir,
		User:            "1000:1000",
		Env:             []string{"HOME=/tmp"},
		NetworkDisabled: !r.config.Network,
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{Type: mount.TypeBind, Source: absDir, Target: containerWorkdir}},
		Resources: container.Resources{
			Memory:   memoryBytes(r.config.Memory),
			NanoCPUs: int64(cpus(r.config.CPU) * 1e9),
			Ulimits:  []*units.Ulimit{{Name: "nofile", Soft: 1024, Hard: 1024}},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=100m"},
	}

	created, err := r.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("create container: %w", err)
	}
	id := created.ID
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(rctx, id, container.RemoveOptions{Force: true})
	}()

	ectx, cancel := context.WithTimeout(ctx, effectiveTimeout(timeout, r.config))
	defer cancel()
	if err := r.client.ContainerStart(ectx, id, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(ectx, id, container.WaitConditionNotRunning)
	var code int64
	select {
	case <-ectx.Done():
		kctx, kcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer kcancel()
		_ = r.client.ContainerKill(kctx, id, "SIGKILL")
		return Result{Code: 1, TimedOut: true, Stderr: "command timed out"}, ectx.Err()
	case err := <-errCh:
		if err != nil {
			return Result{}, fmt.Errorf("wait for container: %w", err)
		}
	case st := <-statusCh:
		code = st.StatusCode
	}

	logs, err := r.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Result{}, fmt.Errorf("read container logs: %w", err)
	}
	defer logs.Close()
	stdout, stderr, err := demuxLogs(logs)
	if err != nil {
		return Result{}, fmt.Errorf("read container logs: %w", err)
	}

	res := Result{Stdout: stdout, Stderr: stderr, Code: int(code)}
	if code != 0 {
		return res, fmt.Errorf("%s exited with code %d", name, code)
	}
	return res, nil
}

func (r *DockerRunner) ensureImage(ctx context.Context, name string) error {
	if _, err := r.client.ImageInspect(ctx, name); err == nil {
		return nil
	}
	rc, err := r.client.ImagePull(ctx, name, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// demuxLogs splits the multiplexed docker log stream.
func demuxLogs(r io.Reader) (stdout, stderr string, err error) {
	var out, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &errBuf, r); err != nil {
		return "", "", err
	}
	return out.String(), errBuf.String(), nil
}

// memoryBytes parses sizes such as "1g" or "512m", defaulting to 1 GiB.
func memoryBytes(s string) int64 {
	if strings.TrimSpace(s) == "" {
		return defaultMemoryBytes
	}
	n, err := units.RAMInBytes(s)
	if err != nil || n <= 0 {
		return defaultMemoryBytes
	}
	return n
}

func cpus(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return defaultCPUs
	}
	return v
}
