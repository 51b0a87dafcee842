package defra

import (
	"errors"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/google/go-cmp/cmp"
)

func TestDockerConfig_Defaults(t *testing.T) {
	cfg := DockerConfig{Labels: map[string]string{"storyboard-test": "TestX"}}.withDefaults()

	if cfg.ContainerName != DefaultContainerName || cfg.Image != DefaultImage || cfg.HostPort != DefaultPort {
		t.Errorf("withDefaults() = %+v", cfg)
	}
	if cfg.ReadyTimeout != DefaultReadyTimeout {
		t.Errorf("ReadyTimeout = %v, want %v", cfg.ReadyTimeout, DefaultReadyTimeout)
	}
	want := map[string]string{Label: "true", "storyboard-test": "TestX"}
	if diff := cmp.Diff(want, cfg.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestDockerConfig_ContainerSpec(t *testing.T) {
	cfg := DockerConfig{HostPort: "19181", DataPath: "/home/me/.storyboard/defradb"}.withDefaults()
	c, host := cfg.containerSpec()

	if c.Image != DefaultImage {
		t.Errorf("image = %q", c.Image)
	}
	if _, ok := c.ExposedPorts[ContainerPort]; !ok {
		t.Errorf("port %s not exposed", ContainerPort)
	}
	bindings := host.PortBindings[ContainerPort]
	if len(bindings) != 1 || bindings[0].HostIP != "127.0.0.1" || bindings[0].HostPort != "19181" {
		t.Errorf("bindings = %+v, want loopback:19181", bindings)
	}
	if len(host.Mounts) != 1 || host.Mounts[0].Source != cfg.DataPath || host.Mounts[0].Target != DataDir {
		t.Errorf("mounts = %+v", host.Mounts)
	}

	t.Run("no data path means no mount", func(t *testing.T) {
		_, host := DockerConfig{}.withDefaults().containerSpec()
		if len(host.Mounts) != 0 {
			t.Errorf("mounts = %+v, want none", host.Mounts)
		}
	})
}

func TestDescribe(t *testing.T) {
	bindings := nat.PortMap{ContainerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "9181"}}}
	mounts := []container.MountPoint{
		{Source: "/tmp/other", Destination: "/etc/other"},
		{Source: "/srv/defradb", Destination: DataDir},
	}

	got := describe("abc", "exited", bindings, mounts)
	want := &Container{ID: "abc", Status: StatusStopped, HostPort: "9181", DataPath: "/srv/defradb"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("describe() mismatch (-want +got):\n%s", diff)
	}

	if got := describe("abc", "running", nil, nil); got.HostPort != "" || got.DataPath != "" || got.Status != StatusRunning {
		t.Errorf("describe() without bindings = %+v", got)
	}
}

func TestStatusOf(t *testing.T) {
	tests := map[string]ContainerStatus{
		"running":    StatusRunning,
		"exited":     StatusStopped,
		"dead":       StatusStopped,
		"created":    StatusStarting,
		"restarting": StatusStarting,
		"paused":     ContainerStatus("paused"),
	}
	for state, want := range tests {
		if got := statusOf(state); got != want {
			t.Errorf("statusOf(%q) = %q, want %q", state, got, want)
		}
	}
}

func TestDockerConfig_Conflict(t *testing.T) {
	cfg := DockerConfig{HostPort: "9181", DataPath: "/srv/defradb"}.withDefaults()

	tests := []struct {
		name     string
		existing Container
		wantErr  bool
	}{
		{"matching", Container{HostPort: "9181", DataPath: "/srv/defradb"}, false},
		{"other port", Container{HostPort: "9999", DataPath: "/srv/defradb"}, true},
		{"unbound", Container{DataPath: "/srv/defradb"}, true},
		{"other data dir", Container{HostPort: "9181", DataPath: "/tmp/defradb"}, true},
		{"no mount", Container{HostPort: "9181"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cfg.conflict(&tt.existing)
			if tt.wantErr != (err != nil) {
				t.Fatalf("conflict() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrContainerConflict) {
				t.Errorf("conflict() error = %v, want ErrContainerConflict", err)
			}
		})
	}

	t.Run("data dir not checked without a configured path", func(t *testing.T) {
		loose := DockerConfig{HostPort: "9181"}.withDefaults()
		if err := loose.conflict(&Container{HostPort: "9181", DataPath: "/anywhere"}); err != nil {
			t.Errorf("conflict() error = %v", err)
		}
	})
}
