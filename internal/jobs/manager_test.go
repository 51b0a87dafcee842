package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/storyboard/internal/generation"
	"github.com/jackzampolin/storyboard/internal/providers"
	"github.com/jackzampolin/storyboard/internal/store"
	"github.com/jackzampolin/storyboard/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*generation.Engine, *providers.MockRenderer) {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "storyboard.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	for _, p := range []string{"p1", "p2"} {
		if err := st.SaveProject(ctx, &types.Project{ID: p, Name: p}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.SaveShot(ctx, &types.Shot{ID: "s1", ProjectID: "p1", Sequence: 1, VideoMode: types.ModeStartOnly}); err != nil {
		t.Fatal(err)
	}
	for id, prompt := range map[string]string{"s1/start": "dawn", "s1/video": "pan"} {
		owner, kind, _ := types.SplitTargetID(id)
		target := &types.Target{ID: id, ProjectID: "p1", OwnerID: owner, Kind: kind, Prompt: prompt}
		if err := st.SaveTarget(ctx, target); err != nil {
			t.Fatal(err)
		}
	}

	mock := providers.NewMockRenderer()
	engine := generation.NewEngine(st, mock, generation.Config{RetryDelay: -1, Logger: discardLogger()})
	return engine, mock
}

// blockRenderer makes every render call wait for release. started receives
// once per call.
func blockRenderer(mock *providers.MockRenderer) (started chan struct{}, release chan struct{}) {
	started = make(chan struct{}, 16)
	release = make(chan struct{})
	mock.OnCall = func(providers.MockCall) {
		started <- struct{}{}
		<-release
	}
	return started, release
}

func waitStarted(t *testing.T, started chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("render call never started")
	}
}

func waitJob(t *testing.T, m *Manager, id string) *Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s) error = %v", id, err)
	}
	return snap
}

func TestManager_ShotBatch(t *testing.T) {
	engine, mock := newTestEngine(t)
	m := NewManager(engine, t.TempDir(), discardLogger())

	snap, err := m.Submit(context.Background(), Request{Kind: KindShots, ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if snap.ID == "" || snap.Status != StatusQueued {
		t.Errorf("submitted snapshot = %+v", snap)
	}

	done := waitJob(t, m, snap.ID)
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", done.Status, done.Error)
	}
	if done.Shots == nil || done.Shots.Generated != 1 {
		t.Errorf("shot tally = %+v", done.Shots)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps not recorded")
	}
	if mock.RequestCount() != 2 {
		t.Errorf("render calls = %d, want 2", mock.RequestCount())
	}
	if _, busy := m.Active("p1"); busy {
		t.Error("project still marked active after the run")
	}
}

func TestManager_SingleResolvesProject(t *testing.T) {
	engine, _ := newTestEngine(t)
	m := NewManager(engine, "", discardLogger())

	snap, err := m.Submit(context.Background(), Request{Kind: KindSingle, TargetID: "s1/start", OverridePrompt: "dusk"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if snap.ProjectID != "p1" {
		t.Errorf("project = %q, want p1", snap.ProjectID)
	}
	done := waitJob(t, m, snap.ID)
	if done.Status != StatusCompleted || done.Result == nil || done.Result.Prompt != "dusk" {
		t.Errorf("done = %+v", done)
	}
}

func TestManager_ProjectBusy(t *testing.T) {
	engine, mock := newTestEngine(t)
	lockDir := t.TempDir()
	m := NewManager(engine, lockDir, discardLogger())
	started, release := blockRenderer(mock)

	first, err := m.Submit(context.Background(), Request{Kind: KindShots, ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitStarted(t, started)

	if _, err := m.Submit(context.Background(), Request{Kind: KindEntities, ProjectID: "p1"}); !errors.Is(err, ErrProjectBusy) {
		t.Errorf("second submit error = %v, want ErrProjectBusy", err)
	}

	other := NewManager(engine, lockDir, discardLogger())
	if _, err := other.Submit(context.Background(), Request{Kind: KindShots, ProjectID: "p1"}); !errors.Is(err, ErrProjectBusy) {
		t.Errorf("second manager submit error = %v, want ErrProjectBusy from the lock file", err)
	}

	p2, err := m.Submit(context.Background(), Request{Kind: KindEntities, ProjectID: "p2"})
	if err != nil {
		t.Fatalf("other project should not be blocked: %v", err)
	}
	waitJob(t, m, p2.ID)

	close(release)
	waitJob(t, m, first.ID)

	again, err := other.Submit(context.Background(), Request{Kind: KindEntities, ProjectID: "p1"})
	if err != nil {
		t.Fatalf("submit after release error = %v", err)
	}
	waitJob(t, other, again.ID)
}

func TestManager_Cancel(t *testing.T) {
	engine, mock := newTestEngine(t)
	m := NewManager(engine, t.TempDir(), discardLogger())
	started, release := blockRenderer(mock)

	snap, err := m.Submit(context.Background(), Request{Kind: KindShots, ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitStarted(t, started)

	if _, err := m.Cancel(snap.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	close(release)

	done := waitJob(t, m, snap.ID)
	if done.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", done.Status)
	}
	// the start frame call was in flight and completes; the video never starts
	if mock.RequestCount() != 1 {
		t.Errorf("render calls = %d, want 1", mock.RequestCount())
	}

	if _, err := m.Cancel("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Cancel(nope) error = %v, want ErrJobNotFound", err)
	}
}

func TestManager_InvalidRequests(t *testing.T) {
	engine, _ := newTestEngine(t)
	m := NewManager(engine, "", discardLogger())

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown kind", Request{Kind: "poster", ProjectID: "p1"}, ErrInvalidRequest},
		{"batch without project", Request{Kind: KindShots}, ErrInvalidRequest},
		{"single without target", Request{Kind: KindSingle, ProjectID: "p1"}, ErrInvalidRequest},
		{"single with unknown owner", Request{Kind: KindSingle, TargetID: "s9/start"}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Submit(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v, want %v", err, tt.want)
			}
		})
	}
	if jobs := m.List(ListFilter{}); len(jobs) != 0 {
		t.Errorf("rejected requests should not be recorded, got %d jobs", len(jobs))
	}
}

func TestManager_List(t *testing.T) {
	engine, _ := newTestEngine(t)
	m := NewManager(engine, "", discardLogger())

	var ids []string
	for _, p := range []string{"p2", "p1", "p2"} {
		snap, err := m.Submit(context.Background(), Request{Kind: KindEntities, ProjectID: p})
		if err != nil {
			t.Fatalf("Submit(%s) error = %v", p, err)
		}
		waitJob(t, m, snap.ID)
		ids = append(ids, snap.ID)
	}

	all := m.List(ListFilter{})
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Errorf("List() should be newest first, got %d jobs", len(all))
	}
	if got := m.List(ListFilter{ProjectID: "p2"}); len(got) != 2 {
		t.Errorf("List(p2) = %d jobs, want 2", len(got))
	}
	if got := m.List(ListFilter{Status: StatusRunning}); len(got) != 0 {
		t.Errorf("List(running) = %d jobs, want 0", len(got))
	}
	if got := m.List(ListFilter{Limit: 1}); len(got) != 1 {
		t.Errorf("List(limit 1) = %d jobs", len(got))
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestManager_Shutdown(t *testing.T) {
	engine, mock := newTestEngine(t)
	m := NewManager(engine, "", discardLogger())
	started, release := blockRenderer(mock)

	snap, err := m.Submit(context.Background(), Request{Kind: KindShots, ProjectID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	waitStarted(t, started)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	got, _ := m.Get(snap.ID)
	if !got.Status.Terminal() {
		t.Errorf("status after shutdown = %s", got.Status)
	}
}

func TestManager_ResubmitAsSoonAsIdle(t *testing.T) {
	engine, _ := newTestEngine(t)
	m := NewManager(engine, t.TempDir(), discardLogger())

	for i := range 20 {
		snap, err := m.Submit(context.Background(), Request{Kind: KindShots, ProjectID: "p1"})
		if err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
		deadline := time.Now().Add(5 * time.Second)
		for {
			if _, busy := m.Active("p1"); !busy {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("job %s never finished", snap.ID)
			}
		}
	}
}

func TestManager_SnapshotLiveImages(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	if err := engine.Store().SaveEntity(ctx, &types.Entity{ID: "hero", ProjectID: "p1", Name: "Hero"}); err != nil {
		t.Fatal(err)
	}
	if err := engine.Store().SaveEntity(ctx, &types.Entity{ID: "inn", ProjectID: "p1", Name: "Inn", ImageURL: "https://cdn/inn.png"}); err != nil {
		t.Fatal(err)
	}
	m := NewManager(engine, "", discardLogger())

	snap, err := m.Submit(ctx, Request{Kind: KindEntities, ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	done := waitJob(t, m, snap.ID)
	want := map[string]string{"hero": "mock://image/1", "inn": "https://cdn/inn.png"}
	if diff := cmp.Diff(want, done.Live); diff != "" {
		t.Errorf("live images mismatch (-want +got):\n%s", diff)
	}
}
