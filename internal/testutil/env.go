package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// DefraTestConfig holds DefraDB container configuration without importing defra package.
// This breaks the import cycle between testutil and defra.
type DefraTestConfig struct {
	ContainerName string
	HostPort      string
	Labels        map[string]string
}

// ServerConfig returns configuration values for creating a test server.
// This avoids importing the server package directly.
type ServerConfig struct {
	Host        string
	Port        string
	HomeDir     string
	ConfigFile  string
	Backend     string
	DefraConfig DefraTestConfig
	Logger      *slog.Logger
}

// NewServerConfig creates configuration for a DefraDB-backed test server
// with unique ports and writes its config file. It skips t when Docker is
// unavailable.
func NewServerConfig(t *testing.T) ServerConfig {
	t.Helper()
	RequireDocker(t)

	httpPort, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port for HTTP: %v", err)
	}
	defraPort, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port for DefraDB: %v", err)
	}

	cfg := ServerConfig{
		Host:    "127.0.0.1",
		Port:    httpPort,
		HomeDir: t.TempDir(),
		Backend: "defra",
		DefraConfig: DefraTestConfig{
			ContainerName: ContainerName(t, "defra"),
			HostPort:      defraPort,
			Labels:        ContainerLabels(t),
		},
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	cfg.ConfigFile = filepath.Join(cfg.HomeDir, "config.yaml")
	cfg.WriteConfig(t)
	return cfg
}

// WriteConfig writes a config file that selects the mock renderer, turns
// off retry delays and picks the configured store backend.
func (c ServerConfig) WriteConfig(t *testing.T) {
	t.Helper()
	doc := map[string]any{
		"defaults":   map[string]any{"renderer": "mock"},
		"generation": map[string]any{"retry_delay_ms": 0},
		"store":      map[string]any{"backend": c.Backend},
		"defra": map[string]any{
			"container_name": c.DefraConfig.ContainerName,
			"port":           c.DefraConfig.HostPort,
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(c.ConfigFile, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// URL returns the server URL for the given config.
func (c ServerConfig) URL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(c.Host, c.Port))
}

// WaitForServer polls the /ready endpoint until the store is healthy.
func WaitForServer(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url + "/ready")
		if err == nil {
			var ready struct {
				Status string `json:"status"`
				Store  string `json:"store"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&ready)
			resp.Body.Close()
			if decodeErr == nil && resp.StatusCode == http.StatusOK && ready.Store == "ok" {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}

// WaitForShutdown waits for a channel to receive a value or timeout.
func WaitForShutdown(done <-chan error, timeout time.Duration) error {
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for shutdown")
	}
}

// FindFreePort finds an available TCP port and returns it as a string.
func FindFreePort() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port), nil
}

// StartServer is a helper type for managing server lifecycle in tests.
// Usage:
//
//	cfg := testutil.NewServerConfig(t)
//	srv, err := server.New(server.Config{...from cfg...})
//	starter := testutil.StartServer{Cancel: cancel, Done: done}
//	t.Cleanup(func() { starter.Stop() })
type StartServer struct {
	Cancel context.CancelFunc
	Done   <-chan error
}

// Stop cancels the server context and waits for shutdown.
func (s *StartServer) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
	if s.Done != nil {
		<-s.Done
	}
}

// StatusResponse matches the server's StatusResponse structure.
type StatusResponse struct {
	Server    string `json:"server"`
	Renderers struct {
		Active    string   `json:"active"`
		Available []string `json:"available"`
	} `json:"renderers"`
	Store struct {
		Backend string `json:"backend"`
		Health  string `json:"health"`
	} `json:"store"`
	Defra *struct {
		Container string `json:"container"`
		URL       string `json:"url"`
	} `json:"defra"`
	Jobs struct {
		Running int `json:"running"`
		Total   int `json:"total"`
	} `json:"jobs"`
}

// GetStatus fetches the /status endpoint and returns the parsed response.
func GetStatus(url string) (*StatusResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url + "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}
