package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
)

// CleanupLabel marks containers started by tests. Its value is the test name.
const CleanupLabel = "storyboard-test"

// RequireDocker skips t in -short mode or when no Docker daemon answers.
// Otherwise it removes the containers labeled for t when t ends, including
// ones left behind by an interrupted earlier run of the same test.
func RequireDocker(t *testing.T) *client.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Docker test in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skipf("docker is not running: %v", err)
	}

	removeLabeled(t, cli)
	t.Cleanup(func() {
		removeLabeled(t, cli)
		cli.Close()
	})
	return cli
}

// ContainerName returns a container name unique to this test run:
// storyboard-test-<prefix>-<test name>-<random>.
func ContainerName(t testing.TB, prefix string) string {
	return strings.Join([]string{CleanupLabel, prefix, containerSafe(t.Name()), uuid.NewString()[:8]}, "-")
}

// ContainerLabels returns the labels RequireDocker cleans up after.
func ContainerLabels(t testing.TB) map[string]string {
	return map[string]string{CleanupLabel: t.Name()}
}

func removeLabeled(t testing.TB, cli *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	list, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", CleanupLabel+"="+t.Name())),
	})
	if err != nil {
		t.Logf("list test containers: %v", err)
		return
	}
	for _, c := range list {
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			t.Logf("remove container %v: %v", c.Names, err)
		}
	}
}

// containerSafe maps a test name onto the characters Docker allows in
// container names, capped at 30.
func containerSafe(name string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '/' || r == '_' || r == '-':
			return '-'
		default:
			return -1
		}
	}, name)
	if len(s) > 30 {
		s = s[:30]
	}
	return s
}
