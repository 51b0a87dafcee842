package generation

import (
	"context"
	"fmt"

	"github.com/jackzampolin/storyboard/internal/store"
	"github.com/jackzampolin/storyboard/internal/types"
)

// GenerateBatchShots walks a project's shots in sequence order and, for
// each shot without a finished video, ensures its start frame, end frame
// and video, skipping the frames its video mode does not use. ids
// restricts which shots are generated; inheritance still looks at the shot
// just before each one in the full sequence.
//
// A failed step ends that shot only. The only error returned is
// ErrCancelled, or a failure to load the project.
func (e *Engine) GenerateBatchShots(ctx context.Context, sess *Session, projectID string, ids []string) (*ShotTally, error) {
	if sess == nil {
		sess = NewSession()
	}
	pc, err := e.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	shots, err := e.store.ListShots(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sess.updateShots(func(t *ShotTally) { *t = ShotTally{} })

	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	for _, id := range ids {
		if !containsShot(shots, id) && selected[id] {
			selected[id] = false
			item := Item{ID: id, Outcome: OutcomeFailed, Error: fmt.Sprintf("shot %q: %v", id, store.ErrNotFound)}
			sess.updateShots(func(t *ShotTally) { t.add(item) })
		}
	}

	e.logger.Info("shot batch started", "project", projectID, "shots", len(shots), "session", sess.ID)

	// prev is a local shadow of the shot just handled, so the next shot's
	// inheritance sees fresh urls without a store read.
	var prev *types.Shot
	for i := range shots {
		shot := shots[i].Clone()
		if len(ids) > 0 && !selected[shot.ID] {
			prev = &shot
			continue
		}
		if sess.Cancelled() || ctx.Err() != nil {
			return sess.ShotTally(), fmt.Errorf("shot batch %s: %w", projectID, ErrCancelled)
		}

		item := e.generateShot(ctx, sess, pc, &shot, prev)
		sess.updateShots(func(t *ShotTally) { t.add(item) })
		prev = &shot
	}

	if sess.Cancelled() {
		return sess.ShotTally(), fmt.Errorf("shot batch %s: %w", projectID, ErrCancelled)
	}
	tally := sess.ShotTally()
	e.logger.Info("shot batch finished",
		"project", projectID,
		"generated", tally.Generated,
		"failed", tally.Failed,
		"skipped", tally.Skipped)
	return tally, nil
}

func containsShot(shots []types.Shot, id string) bool {
	for i := range shots {
		if shots[i].ID == id {
			return true
		}
	}
	return false
}

// shotSteps returns the targets a shot's video mode needs, in order.
func shotSteps(mode types.VideoMode) []types.TargetKind {
	var steps []types.TargetKind
	if mode.NeedsStart() {
		steps = append(steps, types.TargetStart)
	}
	if mode.NeedsEnd() {
		steps = append(steps, types.TargetEnd)
	}
	return append(steps, types.TargetVideo)
}

// generateShot runs one shot's steps. shot is updated in place as steps
// succeed.
func (e *Engine) generateShot(ctx context.Context, sess *Session, pc *projectContext, shot, prev *types.Shot) Item {
	item := Item{ID: shot.ID}
	if shot.Done() {
		item.Outcome = OutcomeSkipped
		item.URL = shot.VideoURL
		return item
	}

	for _, kind := range shotSteps(shot.Mode()) {
		if shot.AssetURL(kind) != "" {
			continue
		}
		target, err := e.loadTarget(ctx, types.ShotTargetID(shot.ID, kind), shot.ProjectID, shot.ID, kind, nil)
		if err != nil {
			item.Outcome = OutcomeFailed
			item.Error = err.Error()
			return item
		}
		tr := &targetRun{pc: pc, target: target, shot: shot, prev: prev}

		res, err := e.generate(ctx, sess, tr, Options{})
		item.Steps = append(item.Steps, *res)
		if err != nil {
			item.Outcome = res.Outcome
			item.Error = err.Error()
			e.logger.Warn("shot step failed", "shot", shot.ID, "step", kind, "error", err)
			return item
		}
	}

	item.Outcome = OutcomeGenerated
	item.URL = shot.VideoURL
	return item
}
