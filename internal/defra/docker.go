package defra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

const (
	DefaultImage         = "sourcenetwork/defradb:latest"
	DefaultContainerName = "storyboard-defra"
	DefaultPort          = "9181"
	DefaultReadyTimeout  = 30 * time.Second
	ContainerPort        = "9181/tcp"
	DataDir              = "/data"
	Label                = "storyboard-defra"
)

// ErrContainerConflict is returned when a container with the configured
// name exists but was created with a different port or data directory.
var ErrContainerConflict = errors.New("existing defradb container does not match config")

// ContainerStatus represents the state of the DefraDB container.
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not_found"
	StatusStarting ContainerStatus = "starting"
)

func statusOf(state string) ContainerStatus {
	switch state {
	case "running":
		return StatusRunning
	case "exited", "dead":
		return StatusStopped
	case "created", "restarting":
		return StatusStarting
	default:
		return ContainerStatus(state)
	}
}

// Container is what the manager knows about an existing container.
type Container struct {
	ID       string
	Status   ContainerStatus
	HostPort string // host port bound to ContainerPort, empty when unbound
	DataPath string // host path mounted at DataDir, empty when none
}

// DockerConfig holds configuration for the Docker manager.
type DockerConfig struct {
	ContainerName string
	Image         string
	DataPath      string
	HostPort      string
	Labels        map[string]string
	ReadyTimeout  time.Duration
}

func (c DockerConfig) withDefaults() DockerConfig {
	if c.ContainerName == "" {
		c.ContainerName = DefaultContainerName
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.HostPort == "" {
		c.HostPort = DefaultPort
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	labels := map[string]string{Label: "true"}
	maps.Copy(labels, c.Labels)
	c.Labels = labels
	return c
}

// containerSpec returns the create options for a fresh store container:
// badger storage under DataDir, the API bound to loopback only.
func (c DockerConfig) containerSpec() (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image: c.Image,
		Cmd: []string{
			"start",
			"--no-keyring",
			"--url", "0.0.0.0:9181",
			"--store", "badger",
			"--rootdir", DataDir,
		},
		Labels:       c.Labels,
		ExposedPorts: nat.PortSet{ContainerPort: struct{}{}},
	}
	host := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: c.HostPort}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	if c.DataPath != "" {
		host.Mounts = []mount.Mount{{Type: mount.TypeBind, Source: c.DataPath, Target: DataDir}}
	}
	return cfg, host
}

// conflict reports how an existing container differs from the config.
func (c DockerConfig) conflict(existing *Container) error {
	if existing.HostPort != c.HostPort {
		return fmt.Errorf("%w: %s is bound to port %q, config wants %q",
			ErrContainerConflict, c.ContainerName, existing.HostPort, c.HostPort)
	}
	if c.DataPath != "" && existing.DataPath != c.DataPath {
		return fmt.Errorf("%w: %s keeps data in %q, config wants %q",
			ErrContainerConflict, c.ContainerName, existing.DataPath, c.DataPath)
	}
	return nil
}

// describe builds a Container from inspect data.
func describe(id, state string, bindings nat.PortMap, mounts []container.MountPoint) *Container {
	c := &Container{ID: id, Status: statusOf(state)}
	if b := bindings[ContainerPort]; len(b) > 0 {
		c.HostPort = b[0].HostPort
	}
	for _, m := range mounts {
		if m.Destination == DataDir {
			c.DataPath = m.Source
			break
		}
	}
	return c
}

// DockerManager runs the DefraDB container behind the defra store backend.
type DockerManager struct {
	cli *client.Client
	cfg DockerConfig
}

// NewDockerManager creates a manager; it does not contact Docker.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerManager{cli: cli, cfg: cfg.withDefaults()}, nil
}

// Close closes the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// URL returns the DefraDB API URL.
func (m *DockerManager) URL() string {
	return "http://localhost:" + m.cfg.HostPort
}

// Client returns a DefraDB client for the managed container.
func (m *DockerManager) Client() *Client {
	return NewClient(m.URL())
}

// Ensure brings the container up and waits until DefraDB answers. An
// existing container is reused only when it matches the configured port
// and data directory; otherwise ErrContainerConflict is returned and the
// container is left alone.
func (m *DockerManager) Ensure(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}
	existing, err := m.find(ctx)
	if err != nil {
		return err
	}

	switch {
	case existing == nil:
		if err := m.create(ctx); err != nil {
			return err
		}
	case existing.Status == StatusRunning:
		if err := m.cfg.conflict(existing); err != nil {
			return err
		}
	default:
		if err := m.cfg.conflict(existing); err != nil {
			return err
		}
		if err := m.cli.ContainerStart(ctx, existing.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start container %s: %w", m.cfg.ContainerName, err)
		}
	}
	return m.WaitReady(ctx, m.cfg.ReadyTimeout)
}

// Stop stops the container, keeping it and its data.
func (m *DockerManager) Stop(ctx context.Context) error {
	existing, err := m.find(ctx)
	if err != nil || existing == nil || existing.Status == StatusStopped {
		return err
	}
	timeout := 10
	if err := m.cli.ContainerStop(ctx, existing.ID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// Remove deletes the container. The bind-mounted data directory is kept.
func (m *DockerManager) Remove(ctx context.Context) error {
	existing, err := m.find(ctx)
	if err != nil || existing == nil {
		return err
	}
	if err := m.cli.ContainerRemove(ctx, existing.ID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Status returns the current status of the container.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	existing, err := m.find(ctx)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return StatusNotFound, nil
	}
	return existing.Status, nil
}

// Logs returns the last tail lines of the container's stdout and stderr.
func (m *DockerManager) Logs(ctx context.Context, tail string) (string, error) {
	existing, err := m.find(ctx)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return "", fmt.Errorf("container %s not found", m.cfg.ContainerName)
	}

	rc, err := m.cli.ContainerLogs(ctx, existing.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return out.String(), nil
}

// WaitReady polls the DefraDB health check until it passes or timeout
// elapses.
func (m *DockerManager) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db := m.Client()
	err := retry.Do(
		func() error { return db.HealthCheck(ctx) },
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("defradb at %s not ready after %s: %w", m.URL(), timeout, err)
	}
	return nil
}

// find returns the container with the configured name, or nil.
func (m *DockerManager) find(ctx context.Context) (*Container, error) {
	list, err := m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+m.cfg.ContainerName+"$")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}

	info, err := m.cli.ContainerInspect(ctx, list[0].ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	var bindings nat.PortMap
	if info.HostConfig != nil {
		bindings = info.HostConfig.PortBindings
	}
	return describe(list[0].ID, string(list[0].State), bindings, info.Mounts), nil
}

func (m *DockerManager) create(ctx context.Context) error {
	if err := m.pull(ctx); err != nil {
		return err
	}
	cfg, host := m.cfg.containerSpec()
	resp, err := m.cli.ContainerCreate(ctx, cfg, host, nil, nil, m.cfg.ContainerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// pull fetches the image when it is not present locally.
func (m *DockerManager) pull(ctx context.Context) error {
	if _, err := m.cli.ImageInspect(ctx, m.cfg.Image); err == nil {
		return nil
	}
	rc, err := m.cli.ImagePull(ctx, m.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", m.cfg.Image, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}
