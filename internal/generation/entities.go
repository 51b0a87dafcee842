package generation

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackzampolin/storyboard/internal/mentions"
	"github.com/jackzampolin/storyboard/internal/store"
	"github.com/jackzampolin/storyboard/internal/types"
)

// GenerateBatchEntities generates portraits for a project's entities that
// have no image, dependencies first. ids restricts and orders the queue;
// when empty every entity without an image is queued in registry order.
//
// Every queued entity is attempted once. Per-entity failures are recorded
// in the tally and never stop the batch. The only error returned is
// ErrCancelled, or a failure to load the project.
func (e *Engine) GenerateBatchEntities(ctx context.Context, sess *Session, projectID string, ids []string) (*EntityTally, error) {
	if sess == nil {
		sess = NewSession()
	}
	pc, err := e.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sess.Live.Seed(pc.registry)
	sess.updateEntities(func(t *EntityTally) { *t = EntityTally{} })

	queue, preset := entityQueue(pc.registry, ids)
	for _, item := range preset {
		sess.updateEntities(func(t *EntityTally) { t.add(item) })
	}

	e.logger.Info("entity batch started", "project", projectID, "queued", len(queue), "session", sess.ID)
	sched := NewScheduler(queue, pc.registry, sess.Live)
	for {
		step, ok := sched.Next()
		if !ok {
			break
		}
		sess.updateEntities(func(t *EntityTally) { t.Rounds = sched.Rounds() })
		if step.Outcome == StepForced {
			e.logger.Warn("dependencies unmet, forcing progress", "entity", step.Batch[0].ID)
		}

		for _, ent := range step.Batch {
			if sess.Cancelled() || ctx.Err() != nil {
				return sess.EntityTally(), fmt.Errorf("entity batch %s: %w", projectID, ErrCancelled)
			}
			item := e.generateEntity(ctx, sess, pc, sched, ent, step.Outcome == StepForced)
			sched.Complete(ent.ID, item.URL)
			sess.updateEntities(func(t *EntityTally) { t.add(item) })
		}
	}

	tally := sess.EntityTally()
	e.logger.Info("entity batch finished",
		"project", projectID,
		"generated", tally.Generated,
		"failed", tally.Failed,
		"rounds", tally.Rounds)
	return tally, nil
}

// entityQueue builds the scheduler queue. preset holds items decided
// without generating: entities that already have an image and unknown ids.
func entityQueue(registry *mentions.Registry, ids []string) (queue []types.Entity, preset []Item) {
	if len(ids) == 0 {
		for _, ent := range registry.Entities() {
			if !ent.HasImage() {
				queue = append(queue, ent)
			}
		}
		return queue, nil
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		ent := registry.Get(id)
		switch {
		case ent == nil:
			preset = append(preset, Item{ID: id, Outcome: OutcomeFailed, Error: fmt.Sprintf("entity %q: %v", id, store.ErrNotFound)})
		case ent.HasImage():
			preset = append(preset, Item{ID: id, Outcome: OutcomeSkipped, URL: ent.ImageURL})
		default:
			queue = append(queue, *ent)
		}
	}
	return queue, preset
}

func (e *Engine) generateEntity(ctx context.Context, sess *Session, pc *projectContext, sched *Scheduler, ent types.Entity, forced bool) Item {
	entity := ent
	entity.Dependencies = slices.Clone(ent.Dependencies)
	item := Item{ID: entity.ID, Forced: forced}

	target, err := e.loadTarget(ctx, types.PortraitTargetID(entity.ID), pc.project.ID, entity.ID, types.TargetPortrait, &entity)
	if err != nil {
		item.Outcome = OutcomeFailed
		item.Error = err.Error()
		return item
	}
	tr := &targetRun{
		pc:     pc,
		target: target,
		entity: &entity,
		deps:   sched.DependencyURLs(&entity),
	}

	res, err := e.generate(ctx, sess, tr, Options{})
	item.Outcome = res.Outcome
	item.Steps = []Result{*res}
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.URL = res.URL
	return item
}
