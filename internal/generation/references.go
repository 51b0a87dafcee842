package generation

import (
	"context"

	"github.com/jackzampolin/storyboard/internal/refs"
	"github.com/jackzampolin/storyboard/internal/types"
)

// TargetView is a target together with the reference list a generation
// would use right now.
type TargetView struct {
	Target     types.Target `json:"target"`
	References []string     `json:"references"`
}

// Target returns a target and its resolved references. Targets that were
// never saved come back in auto mode.
func (e *Engine) Target(ctx context.Context, targetID string) (*TargetView, error) {
	tr, err := e.loadRun(ctx, targetID, nil)
	if err != nil {
		return nil, err
	}
	return e.view(tr), nil
}

// UpdatePrompt replaces a target's prompt. The reference mode is unchanged.
func (e *Engine) UpdatePrompt(ctx context.Context, targetID, prompt string) (*TargetView, error) {
	return e.editTarget(ctx, targetID, func(_ *refs.Resolver, t types.Target, _ []string) types.Target {
		t.Prompt = prompt
		return t
	})
}

// AddReference appends url to a target's list, switching it to manual mode.
func (e *Engine) AddReference(ctx context.Context, targetID, url string) (*TargetView, error) {
	return e.editTarget(ctx, targetID, func(r *refs.Resolver, t types.Target, mandatory []string) types.Target {
		return r.Add(t, mandatory, url)
	})
}

// RemoveReference removes and tombstones url, switching the target to manual mode.
func (e *Engine) RemoveReference(ctx context.Context, targetID, url string) (*TargetView, error) {
	return e.editTarget(ctx, targetID, func(r *refs.Resolver, t types.Target, mandatory []string) types.Target {
		return r.Remove(t, mandatory, url)
	})
}

// SetReferenceOrder replaces a target's list with urls, switching it to
// manual mode.
func (e *Engine) SetReferenceOrder(ctx context.Context, targetID string, urls []string) (*TargetView, error) {
	return e.editTarget(ctx, targetID, func(r *refs.Resolver, t types.Target, mandatory []string) types.Target {
		return r.SetOrder(t, mandatory, urls)
	})
}

// ClearTombstones lifts the tombstone on url, or every tombstone when url
// is empty.
func (e *Engine) ClearTombstones(ctx context.Context, targetID, url string) (*TargetView, error) {
	return e.editTarget(ctx, targetID, func(_ *refs.Resolver, t types.Target, _ []string) types.Target {
		if url == "" {
			return refs.ClearTombstones(t)
		}
		return refs.ClearTombstone(t, url)
	})
}

func (e *Engine) editTarget(ctx context.Context, targetID string, edit func(*refs.Resolver, types.Target, []string) types.Target) (*TargetView, error) {
	tr, err := e.loadRun(ctx, targetID, nil)
	if err != nil {
		return nil, err
	}
	edited := edit(tr.pc.resolver, *tr.target, tr.mandatory())
	if err := e.store.SaveTarget(ctx, &edited); err != nil {
		return nil, err
	}
	tr.target = &edited
	return e.view(tr), nil
}

func (e *Engine) view(tr *targetRun) *TargetView {
	v := &TargetView{Target: tr.target.Clone()}
	if tr.target.Kind.IsVideo() {
		plan, _ := planVideo(tr, tr.target)
		v.References = plan.refs
	} else {
		v.References = tr.pc.resolver.Resolve(tr.target, tr.mandatory())
	}
	return v
}
