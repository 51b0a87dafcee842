package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jackzampolin/storyboard/internal/generation"
)

const defaultListLimit = 100

// Manager starts generation runs and tracks them until they finish.
type Manager struct {
	engine  *generation.Engine
	lockDir string
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	jobs   map[string]*job
	order  []string
	active map[string]string // project id -> job id
}

// NewManager creates a job manager. lockDir holds the per-project lock
// files; an empty lockDir disables cross-process locking.
func NewManager(engine *generation.Engine, lockDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine:  engine,
		lockDir: lockDir,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*job),
		active:  make(map[string]string),
	}
}

// Submit validates req, claims the project and starts the run in the
// background. It returns ErrProjectBusy when the project already has an
// active run in this or another process.
func (m *Manager) Submit(ctx context.Context, req Request) (*Snapshot, error) {
	if err := m.normalize(ctx, &req); err != nil {
		return nil, err
	}
	if other, busy := m.Active(req.ProjectID); busy {
		return nil, fmt.Errorf("%w: project %s (job %s)", ErrProjectBusy, req.ProjectID, other)
	}

	lock, err := m.lockProject(req.ProjectID)
	if err != nil {
		return nil, err
	}

	sess := generation.NewSession()
	j := &job{
		id:        sess.ID,
		req:       req,
		session:   sess,
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
		status:    StatusQueued,
	}

	m.mu.Lock()
	if other, busy := m.active[req.ProjectID]; busy {
		m.mu.Unlock()
		unlock(lock)
		return nil, fmt.Errorf("%w: project %s (job %s)", ErrProjectBusy, req.ProjectID, other)
	}
	m.active[req.ProjectID] = j.id
	m.jobs[j.id] = j
	m.order = append(m.order, j.id)
	snap := j.snapshot()
	m.mu.Unlock()

	m.logger.Info("job submitted", "id", j.id, "kind", req.Kind, "project", req.ProjectID)

	m.wg.Add(1)
	go m.run(j, lock)
	return snap, nil
}

func (m *Manager) normalize(ctx context.Context, req *Request) error {
	switch req.Kind {
	case KindSingle:
		if req.TargetID == "" {
			return fmt.Errorf("%w: target_id is required", ErrInvalidRequest)
		}
		if req.ProjectID == "" {
			view, err := m.engine.Target(ctx, req.TargetID)
			if err != nil {
				return err
			}
			req.ProjectID = view.Target.ProjectID
		}
	case KindEntities, KindShots:
		if req.ProjectID == "" {
			return fmt.Errorf("%w: project_id is required", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	return nil
}

// lockProject takes the cross-process lock file for a project.
func (m *Manager) lockProject(projectID string) (*flock.Flock, error) {
	if m.lockDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(m.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(m.lockDir, url.PathEscape(projectID)+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock project %s: %w", projectID, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: project %s is locked by another process", ErrProjectBusy, projectID)
	}
	return lock, nil
}

func unlock(lock *flock.Flock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}

func (m *Manager) run(j *job, lock *flock.Flock) {
	defer m.wg.Done()
	defer close(j.done)

	now := time.Now().UTC()
	m.mu.Lock()
	j.status = StatusRunning
	j.startedAt = &now
	m.mu.Unlock()

	var (
		result *generation.Result
		err    error
	)
	switch j.req.Kind {
	case KindSingle:
		result, err = m.engine.GenerateSingle(m.ctx, j.session, j.req.TargetID, generation.Options{OverridePrompt: j.req.OverridePrompt})
	case KindEntities:
		_, err = m.engine.GenerateBatchEntities(m.ctx, j.session, j.req.ProjectID, j.req.IDs)
	case KindShots:
		_, err = m.engine.GenerateBatchShots(m.ctx, j.session, j.req.ProjectID, j.req.IDs)
	}

	status := StatusCompleted
	switch {
	case errors.Is(err, generation.ErrCancelled) || j.session.Cancelled():
		status = StatusCancelled
	case err != nil:
		status = StatusFailed
	}

	finished := time.Now().UTC()
	m.mu.Lock()
	j.status = status
	j.completedAt = &finished
	j.result = result
	j.err = err
	// The lock file goes before the project is marked idle, so a Submit
	// that sees the project free can always take the lock.
	unlock(lock)
	delete(m.active, j.req.ProjectID)
	m.mu.Unlock()

	if status == StatusFailed {
		m.logger.Error("job failed", "id", j.id, "kind", j.req.Kind, "error", err)
		return
	}
	m.logger.Info("job finished", "id", j.id, "kind", j.req.Kind, "status", status, "duration", finished.Sub(now))
}

// Get returns a job snapshot by id.
func (m *Manager) Get(jobID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return j.snapshot(), nil
}

// List returns jobs matching the filter, newest first.
func (m *Manager) List(filter ListFilter) []*Snapshot {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Snapshot, 0, min(limit, len(m.order)))
	for _, id := range slices.Backward(m.order) {
		j := m.jobs[id]
		if filter.Status != "" && j.status != filter.Status {
			continue
		}
		if filter.ProjectID != "" && j.req.ProjectID != filter.ProjectID {
			continue
		}
		out = append(out, j.snapshot())
		if len(out) == limit {
			break
		}
	}
	return out
}

// Active returns the id of the project's running job, if any.
func (m *Manager) Active(projectID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.active[projectID]
	return id, ok
}

// Cancel stops a job before its next render attempt. The call in flight,
// if any, runs to completion. Cancelling a finished job is a no-op.
func (m *Manager) Cancel(jobID string) (*Snapshot, error) {
	m.mu.RLock()
	j, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	j.session.Cancel()
	m.logger.Info("job cancel requested", "id", jobID)
	return m.Get(jobID)
}

// Wait blocks until the job finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, jobID string) (*Snapshot, error) {
	m.mu.RLock()
	j, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	select {
	case <-j.done:
		return m.Get(jobID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels every active job and waits for them to stop. When ctx
// expires first, in-flight render calls are aborted.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, id := range m.active {
		m.jobs[id].session.Cancel()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
