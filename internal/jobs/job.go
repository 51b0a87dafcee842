// Package jobs runs generation sessions in the background.
//
// A Manager owns every run started through the API. Only one run per project
// may be active at a time: the manager tracks active projects in process and
// holds a lock file per project so a second storyboard process cannot drive
// the same project concurrently.
package jobs

import (
	"errors"
	"time"

	"github.com/jackzampolin/storyboard/internal/generation"
)

var (
	// ErrProjectBusy is returned when a project already has an active run.
	ErrProjectBusy = errors.New("project already has an active generation run")
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidRequest is returned when a request is missing required fields.
	ErrInvalidRequest = errors.New("invalid job request")
)

// Kind identifies what a job generates.
type Kind string

const (
	KindSingle   Kind = "single"
	KindEntities Kind = "entities"
	KindShots    Kind = "shots"
)

// Status represents the current state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Request describes a run to start. TargetID is required for KindSingle;
// the project is looked up from it when ProjectID is empty. IDs restricts a
// batch to these entities or shots.
type Request struct {
	Kind           Kind     `json:"kind"`
	ProjectID      string   `json:"project_id,omitempty"`
	TargetID       string   `json:"target_id,omitempty"`
	IDs            []string `json:"ids,omitempty"`
	OverridePrompt string   `json:"override_prompt,omitempty"`
}

// Snapshot is a point-in-time view of a job, safe to serialize while the
// run is still going.
type Snapshot struct {
	ID          string                  `json:"id"`
	Kind        Kind                    `json:"kind"`
	ProjectID   string                  `json:"project_id"`
	TargetID    string                  `json:"target_id,omitempty"`
	Status      Status                  `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Result      *generation.Result      `json:"result,omitempty"`
	Shots       *generation.ShotTally   `json:"shots,omitempty"`
	Entities    *generation.EntityTally `json:"entities,omitempty"`
	Slots       []generation.SlotStatus `json:"slots,omitempty"`
	// Live maps entity ids to the image urls the run has seen or generated.
	Live map[string]string `json:"live,omitempty"`

	// Cause is the run's terminal error, for callers that map it with errors.Is.
	Cause error `json:"-"`
}

// ListFilter specifies criteria for listing jobs.
type ListFilter struct {
	Status    Status // Filter by status (empty = all)
	ProjectID string // Filter by project (empty = all)
	Limit     int    // Max results (0 = default 100)
}

// job is the manager's record of one run.
type job struct {
	id        string
	req       Request
	session   *generation.Session
	createdAt time.Time
	done      chan struct{}

	// guarded by Manager.mu
	status      Status
	startedAt   *time.Time
	completedAt *time.Time
	err         error
	result      *generation.Result
}

func (j *job) snapshot() *Snapshot {
	return &Snapshot{
		ID:          j.id,
		Kind:        j.req.Kind,
		ProjectID:   j.req.ProjectID,
		TargetID:    j.req.TargetID,
		Status:      j.status,
		CreatedAt:   j.createdAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
		Error:       errString(j.err),
		Cause:       j.err,
		Result:      j.result,
		Shots:       j.session.ShotTally(),
		Entities:    j.session.EntityTally(),
		Slots:       j.session.Slots(),
		Live:        j.session.Live.Snapshot(),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
