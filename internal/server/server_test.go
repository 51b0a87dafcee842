package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/storyboard/internal/config"
	"github.com/jackzampolin/storyboard/internal/home"
	"github.com/jackzampolin/storyboard/internal/jobs"
	"github.com/jackzampolin/storyboard/internal/providers"
	"github.com/jackzampolin/storyboard/internal/server/endpoints"
	"github.com/jackzampolin/storyboard/internal/store"
)

const testConfig = `
defaults:
  renderer: mock
generation:
  retry_delay_ms: 0
store:
  backend: sqlite
`

const testBundle = `
project:
  id: pilot
  name: Pilot
  global_style: ink wash
entities:
  - id: hero
    name: Hero
    anchor: tall, red cloak
    portrait_prompt: Hero standing on a cliff
shots:
  - id: s1
    sequence: 1
    start_prompt: Meet [Hero] at dawn
    end_prompt: "[Hero] turns away"
  - id: s2
    sequence: 2
    start_prompt: same
    video_mode: start_only
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server on a temp home with the sqlite backend and
// the mock renderer, initializes it and serves its handler.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	h, err := home.New(dir)
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	cfgFile := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgFile, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		t.Fatalf("config.NewManager() error = %v", err)
	}

	srv, err := New(Config{Home: h, ConfigManager: cm, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.shutdown() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func importBundle(t *testing.T, base string) {
	t.Helper()
	resp, err := http.Post(base+"/api/projects/import", "application/x-yaml", strings.NewReader(testBundle))
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	var res store.ImportResult
	decodeBody(t, resp, http.StatusOK, &res)
	if res.ProjectID != "pilot" || res.Entities != 1 || res.Shots != 2 {
		t.Errorf("import result = %+v", res)
	}
}

// decodeBody checks the status code and decodes the JSON body into v.
func decodeBody(t *testing.T, resp *http.Response, wantStatus int, v any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s status = %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, wantStatus, body)
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestServer_NotInitialized(t *testing.T) {
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(Config{Home: h, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	decodeBody(t, do(t, "GET", ts.URL+"/health", ""), http.StatusOK, nil)
	decodeBody(t, do(t, "GET", ts.URL+"/api/projects", ""), http.StatusServiceUnavailable, nil)

	var ready endpoints.HealthResponse
	decodeBody(t, do(t, "GET", ts.URL+"/ready", ""), http.StatusServiceUnavailable, &ready)
	if ready.Store != "not_initialized" {
		t.Errorf("ready.Store = %q, want not_initialized", ready.Store)
	}
}

func TestServer_New_RequiresHome(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() without a home directory should fail")
	}
}

func TestServer_Health(t *testing.T) {
	_, base := newTestServer(t)

	var health endpoints.HealthResponse
	decodeBody(t, do(t, "GET", base+"/health", ""), http.StatusOK, &health)
	if health.Status != "ok" {
		t.Errorf("health.Status = %q, want ok", health.Status)
	}

	var ready endpoints.HealthResponse
	decodeBody(t, do(t, "GET", base+"/ready", ""), http.StatusOK, &ready)
	if ready.Store != "ok" {
		t.Errorf("ready.Store = %q, want ok", ready.Store)
	}

	var status endpoints.StatusResponse
	decodeBody(t, do(t, "GET", base+"/status", ""), http.StatusOK, &status)
	if status.Server != "running" {
		t.Errorf("status.Server = %q, want running", status.Server)
	}
	if status.Renderers.Active != providers.MockRendererName {
		t.Errorf("active renderer = %q, want mock", status.Renderers.Active)
	}
	if !slices.Contains(status.Renderers.Available, providers.MockRendererName) {
		t.Errorf("available renderers = %v, want mock listed", status.Renderers.Available)
	}
	if diff := cmp.Diff(endpoints.StoreStatus{Backend: config.BackendSQLite, Health: "ok"}, status.Store); diff != "" {
		t.Errorf("store status mismatch (-want +got):\n%s", diff)
	}
	if status.Defra != nil {
		t.Errorf("status.Defra = %+v, want nil for sqlite", status.Defra)
	}
}

func TestServer_TargetReferences(t *testing.T) {
	_, base := newTestServer(t)
	importBundle(t, base)

	var target endpoints.TargetResponse
	decodeBody(t, do(t, "GET", base+"/api/targets/s1/start", ""), http.StatusOK, &target)
	if target.Target.Prompt != "Meet [Hero] at dawn" || target.Target.Manual {
		t.Fatalf("target = %+v, want the imported prompt in auto mode", target.Target)
	}
	if len(target.References) != 0 {
		t.Errorf("references before the portrait exists = %v, want none", target.References)
	}

	var snap jobs.Snapshot
	decodeBody(t, do(t, "POST", base+"/api/targets/hero/portrait/generate", `{"wait": true}`), http.StatusOK, &snap)
	if snap.Status != jobs.StatusCompleted || snap.Result == nil {
		t.Fatalf("portrait job = %+v, want completed", snap)
	}
	portrait := snap.Result.URL

	var refs endpoints.ReferencesResponse
	decodeBody(t, do(t, "GET", base+"/api/targets/s1/start/references", ""), http.StatusOK, &refs)
	if diff := cmp.Diff([]string{portrait}, refs.References); diff != "" {
		t.Errorf("auto references (-want +got):\n%s", diff)
	}

	decodeBody(t, do(t, "DELETE", base+"/api/targets/s1/start/references?url="+url.QueryEscape(portrait), ""), http.StatusOK, &target)
	if !target.Target.Manual || len(target.References) != 0 {
		t.Errorf("after remove: manual=%v references=%v", target.Target.Manual, target.References)
	}
	if diff := cmp.Diff([]string{portrait}, target.Target.Tombstones); diff != "" {
		t.Errorf("tombstones (-want +got):\n%s", diff)
	}

	decodeBody(t, do(t, "POST", base+"/api/targets/s1/start/references", `{"url": "https://cdn/extra.png"}`), http.StatusOK, &target)
	if diff := cmp.Diff([]string{"https://cdn/extra.png"}, target.References); diff != "" {
		t.Errorf("after add (-want +got):\n%s", diff)
	}

	decodeBody(t, do(t, "DELETE", base+"/api/targets/s1/start/tombstones", ""), http.StatusOK, &target)
	if diff := cmp.Diff([]string{"https://cdn/extra.png", portrait}, target.References); diff != "" {
		t.Errorf("after clearing tombstones (-want +got):\n%s", diff)
	}

	decodeBody(t, do(t, "PATCH", base+"/api/targets/s1/start", `{"prompt": "[Hero] alone", "references": ["`+portrait+`"]}`), http.StatusOK, &target)
	if target.Target.Prompt != "[Hero] alone" {
		t.Errorf("prompt = %q, want updated", target.Target.Prompt)
	}
	if diff := cmp.Diff([]string{portrait}, target.References); diff != "" {
		t.Errorf("after reorder (-want +got):\n%s", diff)
	}

	decodeBody(t, do(t, "POST", base+"/api/targets/s1/start/references", `{}`), http.StatusBadRequest, nil)
	decodeBody(t, do(t, "DELETE", base+"/api/targets/s1/start/references", ""), http.StatusBadRequest, nil)
}

func TestServer_GenerateErrors(t *testing.T) {
	_, base := newTestServer(t)
	importBundle(t, base)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"nothing to inherit", "/api/targets/s2/start/generate", http.StatusUnprocessableEntity},
		{"unknown kind", "/api/targets/s1/poster/generate", http.StatusUnprocessableEntity},
		{"unknown owner", "/api/targets/s9/start/generate", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decodeBody(t, do(t, "POST", base+tt.path, `{"wait": true}`), tt.status, nil)
		})
	}
}

func TestServer_GenerateBatches(t *testing.T) {
	srv, base := newTestServer(t)
	importBundle(t, base)

	var snap jobs.Snapshot
	decodeBody(t, do(t, "POST", base+"/api/projects/pilot/generate/entities", `{"wait": true}`), http.StatusOK, &snap)
	if snap.Status != jobs.StatusCompleted || snap.Entities == nil || snap.Entities.Generated != 1 {
		t.Errorf("entities job = %+v, want one generated", snap)
	}

	decodeBody(t, do(t, "POST", base+"/api/projects/pilot/generate/shots", `{"ids": ["s1"]}`), http.StatusAccepted, &snap)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done, err := srv.JobManager().Wait(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if done.Status != jobs.StatusCompleted || done.Shots == nil || done.Shots.Generated != 1 {
		t.Errorf("shots job = %+v, want s1 generated", done)
	}

	var list endpoints.ListJobsResponse
	decodeBody(t, do(t, "GET", base+"/api/jobs?project=pilot", ""), http.StatusOK, &list)
	if len(list.Jobs) != 2 {
		t.Errorf("listed %d jobs, want 2", len(list.Jobs))
	}

	var shots endpoints.ListShotsResponse
	decodeBody(t, do(t, "GET", base+"/api/projects/pilot/shots", ""), http.StatusOK, &shots)
	if len(shots.Shots) != 2 || shots.Shots[0].ID != "s1" || shots.Shots[0].StartFrameURL == "" {
		t.Errorf("shots = %+v, want s1 first with a start frame", shots.Shots)
	}
}

func TestServer_ProjectBusyAndCancel(t *testing.T) {
	srv, base := newTestServer(t)
	importBundle(t, base)

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var once sync.Once
	t.Cleanup(func() { once.Do(func() { close(release) }) })

	blocking := providers.NewMockRenderer()
	blocking.OnCall = func(providers.MockCall) {
		started <- struct{}{}
		<-release
	}
	srv.Registry().Register("blocking", blocking)
	srv.Renderer().SetName("blocking")

	var snap jobs.Snapshot
	decodeBody(t, do(t, "POST", base+"/api/targets/hero/portrait/generate", ""), http.StatusAccepted, &snap)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("render call never started")
	}

	decodeBody(t, do(t, "POST", base+"/api/projects/pilot/generate/shots", `{}`), http.StatusConflict, nil)

	var running endpoints.ListJobsResponse
	decodeBody(t, do(t, "GET", base+"/api/jobs?status=running", ""), http.StatusOK, &running)
	if len(running.Jobs) != 1 || running.Jobs[0].ID != snap.ID {
		t.Errorf("running jobs = %+v, want only %s", running.Jobs, snap.ID)
	}

	decodeBody(t, do(t, "POST", base+"/api/jobs/"+snap.ID+"/cancel", ""), http.StatusOK, nil)
	once.Do(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := srv.JobManager().Wait(ctx, snap.ID); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	var got jobs.Snapshot
	decodeBody(t, do(t, "GET", base+"/api/jobs/"+snap.ID, ""), http.StatusOK, &got)
	if got.Status != jobs.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	decodeBody(t, do(t, "GET", base+"/api/jobs/missing", ""), http.StatusNotFound, nil)
	decodeBody(t, do(t, "POST", base+"/api/jobs/missing/cancel", ""), http.StatusNotFound, nil)
}

func TestServer_Projects(t *testing.T) {
	_, base := newTestServer(t)

	decodeBody(t, do(t, "POST", base+"/api/projects/import", `{"entities": []}`), http.StatusBadRequest, nil)
	importBundle(t, base)

	var projects endpoints.ListProjectsResponse
	decodeBody(t, do(t, "GET", base+"/api/projects", ""), http.StatusOK, &projects)
	if len(projects.Projects) != 1 || projects.Projects[0].ID != "pilot" {
		t.Errorf("projects = %+v", projects.Projects)
	}

	var entities endpoints.ListEntitiesResponse
	decodeBody(t, do(t, "GET", base+"/api/projects/pilot/entities", ""), http.StatusOK, &entities)
	if len(entities.Entities) != 1 || entities.Entities[0].Name != "Hero" {
		t.Errorf("entities = %+v", entities.Entities)
	}

	var injected endpoints.InjectResponse
	decodeBody(t, do(t, "POST", base+"/api/projects/pilot/inject", `{"text": "Meet [Hero] at dawn"}`), http.StatusOK, &injected)
	want := endpoints.InjectResponse{Text: "Meet [Hero](tall, red cloak) at dawn", Changed: true}
	if diff := cmp.Diff(want, injected); diff != "" {
		t.Errorf("inject mismatch (-want +got):\n%s", diff)
	}
	decodeBody(t, do(t, "POST", base+"/api/projects/nope/inject", `{"text": "x"}`), http.StatusNotFound, nil)

	// Mock renders have no file behind them, so there is nothing to lay out yet.
	decodeBody(t, do(t, "GET", base+"/api/projects/pilot/storyboard.pdf", ""), http.StatusUnprocessableEntity, nil)
	decodeBody(t, do(t, "GET", base+"/api/projects/nope/storyboard.pdf", ""), http.StatusNotFound, nil)
}

func TestServer_AssetsAndDocs(t *testing.T) {
	srv, base := newTestServer(t)

	assetURL, err := srv.assets.Save([]byte("frame"), "png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	name := assetURL[strings.LastIndex(assetURL, "/")+1:]

	resp := do(t, "GET", base+"/assets/"+name, "")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "frame" {
		t.Errorf("asset = %d %q, want 200 frame", resp.StatusCode, body)
	}

	resp = do(t, "GET", base+"/assets/missing.png", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing asset status = %d, want 404", resp.StatusCode)
	}

	var doc struct {
		Swagger string         `json:"swagger"`
		Paths   map[string]any `json:"paths"`
	}
	decodeBody(t, do(t, "GET", base+"/swagger.json", ""), http.StatusOK, &doc)
	if _, ok := doc.Paths["/api/targets/{owner}/{kind}/generate"]; !ok {
		t.Errorf("swagger paths missing generate route: %v", doc.Paths)
	}
}

func TestServer_ConfigReloadSwitchesRenderer(t *testing.T) {
	srv, _ := newTestServer(t)
	if got := srv.Renderer().Name(); got != providers.MockRendererName {
		t.Fatalf("renderer = %q, want mock", got)
	}

	// OnChange callbacks are what a config file write triggers.
	conf := config.DefaultConfig()
	conf.Defaults.Renderer = "studio"
	conf.Renderers["studio"] = config.RendererCfg{Type: providers.RenderServiceType, BaseURL: "http://render.local", Enabled: true}
	srv.cfg.ConfigManager.Set(conf)

	if got := srv.Renderer().Name(); got != "studio" {
		t.Errorf("renderer after reload = %q, want studio", got)
	}
	if !srv.Registry().Has("studio") {
		t.Error("studio renderer not registered after reload")
	}
}
