package server

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/storyboard/internal/config"
	"github.com/jackzampolin/storyboard/internal/defra"
	"github.com/jackzampolin/storyboard/internal/home"
	"github.com/jackzampolin/storyboard/internal/jobs"
	"github.com/jackzampolin/storyboard/internal/testutil"
)

func TestServer_DefraLifecycle(t *testing.T) {
	cfg := testutil.NewServerConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	h, err := home.New(cfg.HomeDir)
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	cm, err := config.NewManager(cfg.ConfigFile)
	if err != nil {
		t.Fatalf("config.NewManager() error = %v", err)
	}

	srv, err := New(Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		Home:          h,
		ConfigManager: cm,
		DefraConfig: defra.DockerConfig{
			ContainerName: cfg.DefraConfig.ContainerName,
			HostPort:      cfg.DefraConfig.HostPort,
			Labels:        cfg.DefraConfig.Labels,
		},
		Logger: cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Start(serverCtx) }()
	starter := testutil.StartServer{Cancel: serverCancel, Done: done}

	if err := testutil.WaitForServer(cfg.URL(), 90*time.Second); err != nil {
		starter.Stop()
		t.Fatalf("server did not start: %v", err)
	}

	t.Run("status", func(t *testing.T) {
		status, err := testutil.GetStatus(cfg.URL())
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if status.Store.Backend != config.BackendDefra || status.Store.Health != "ok" {
			t.Errorf("store = %+v, want healthy defra", status.Store)
		}
		if status.Defra == nil || status.Defra.Container != "running" {
			t.Errorf("defra = %+v, want running container", status.Defra)
		}
		if status.Renderers.Active != "mock" {
			t.Errorf("active renderer = %q, want mock", status.Renderers.Active)
		}
	})

	t.Run("import_and_generate", func(t *testing.T) {
		resp, err := http.Post(cfg.URL()+"/api/projects/import", "application/x-yaml", strings.NewReader(testBundle))
		if err != nil {
			t.Fatalf("import request error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("import status = %d, want 200", resp.StatusCode)
		}

		resp, err = http.Post(cfg.URL()+"/api/targets/hero/portrait/generate", "application/json", strings.NewReader(`{"wait": true}`))
		if err != nil {
			t.Fatalf("generate request error = %v", err)
		}
		var snap jobs.Snapshot
		decodeBody(t, resp, http.StatusOK, &snap)
		if snap.Status != jobs.StatusCompleted || snap.Result == nil || snap.Result.URL == "" {
			t.Errorf("snapshot = %+v, want a completed render", snap)
		}
	})

	serverCancel()
	if err := testutil.WaitForShutdown(done, 60*time.Second); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}
	if srv.IsRunning() {
		t.Error("server still running after shutdown")
	}
}
