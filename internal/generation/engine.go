// Package generation drives asset generation for shots and entities.
//
// The Engine resolves each target's conditioning references, calls the
// render provider with a bounded retry loop, and persists the resulting
// asset url only after a confirmed success. Batch runs order entity
// portraits by dependency (Scheduler) and walk shots in sequence order,
// letting a start frame inherit the previous shot's end frame.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/jackzampolin/storyboard/internal/inject"
	"github.com/jackzampolin/storyboard/internal/mentions"
	"github.com/jackzampolin/storyboard/internal/providers"
	"github.com/jackzampolin/storyboard/internal/refs"
	"github.com/jackzampolin/storyboard/internal/store"
	"github.com/jackzampolin/storyboard/internal/types"
)

// Defaults applied by NewEngine.
const (
	DefaultMaxAttempts        = 3
	DefaultRetryDelay         = 2 * time.Second
	DefaultGlobalContextRunes = 160
	DefaultVideoSeconds       = 5
)

// inheritTokens are start-frame prompts that copy the previous shot's end frame.
var inheritTokens = []string{"same", "inherit"}

// IsInheritPrompt reports whether a start-frame prompt asks to inherit.
func IsInheritPrompt(prompt string) bool {
	p := strings.TrimSpace(prompt)
	for _, tok := range inheritTokens {
		if strings.EqualFold(p, tok) {
			return true
		}
	}
	return false
}

// Outcome is the result of generating one target or batch item.
type Outcome string

const (
	OutcomeGenerated        Outcome = "generated"
	OutcomeInherited        Outcome = "inherited"
	OutcomeNothingToInherit Outcome = "nothing_to_inherit"
	OutcomeFailed           Outcome = "failed"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeSkipped          Outcome = "skipped"
)

// Result describes one GenerateSingle call.
type Result struct {
	TargetID   string           `json:"target_id"`
	Kind       types.TargetKind `json:"kind"`
	Outcome    Outcome          `json:"outcome"`
	URL        string           `json:"url,omitempty"`
	Prompt     string           `json:"prompt"`
	References []string         `json:"references,omitempty"`
	Attempts   int              `json:"attempts"`
	Error      string           `json:"error,omitempty"`
}

// Options adjusts a single generation call.
type Options struct {
	// OverridePrompt replaces the stored prompt for this call. On success
	// it becomes the target's stored prompt.
	OverridePrompt string
}

// Config configures an Engine.
type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration

	// GlobalContext appends the project's tone, lighting and style to
	// every render prompt, truncated to GlobalContextRunes.
	GlobalContext      bool
	GlobalContextRunes int

	ImageSize    string
	VideoSeconds int

	Logger *slog.Logger
}

// Engine generates assets for targets stored in a Store.
type Engine struct {
	store    store.Store
	renderer providers.Renderer
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates an engine. Zero config values take the defaults; a
// negative RetryDelay means no delay between attempts.
func NewEngine(st store.Store, renderer providers.Renderer, cfg Config) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	switch {
	case cfg.RetryDelay == 0:
		cfg.RetryDelay = DefaultRetryDelay
	case cfg.RetryDelay < 0:
		cfg.RetryDelay = 0
	}
	if cfg.GlobalContextRunes <= 0 {
		cfg.GlobalContextRunes = DefaultGlobalContextRunes
	}
	if cfg.VideoSeconds <= 0 {
		cfg.VideoSeconds = DefaultVideoSeconds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Store returns the engine's store.
func (e *Engine) Store() store.Store {
	return e.store
}

// Renderer returns the engine's render provider.
func (e *Engine) Renderer() providers.Renderer {
	return e.renderer
}

// projectContext is the per-project state a call reads: settings and the
// entity registry in registry order.
type projectContext struct {
	project  *types.Project
	registry *mentions.Registry
	resolver *refs.Resolver
}

func (e *Engine) loadProject(ctx context.Context, projectID string) (*projectContext, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		project = &types.Project{ID: projectID}
	} else if err != nil {
		return nil, err
	}
	entities, err := e.store.ListEntities(ctx, projectID)
	if err != nil {
		return nil, err
	}
	registry := mentions.NewRegistry(entities)
	return &projectContext{
		project:  project,
		registry: registry,
		resolver: refs.NewResolver(registry),
	}, nil
}

// targetRun is everything one generation call reads and writes.
type targetRun struct {
	pc     *projectContext
	target *types.Target
	shot   *types.Shot // owning shot, nil for portraits
	prev   *types.Shot // shot before the owning shot, if any
	entity *types.Entity
	deps   []string // live dependency urls for portraits
}

// loadRun loads a target and its owner. live supplies portrait dependency
// urls; when nil a map seeded from stored images is used.
func (e *Engine) loadRun(ctx context.Context, targetID string, live *LiveMap) (*targetRun, error) {
	ownerID, kind, ok := types.SplitTargetID(targetID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, targetID)
	}

	tr := &targetRun{}
	var projectID string
	if kind == types.TargetPortrait {
		entity, err := e.store.GetEntity(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		projectID = entity.ProjectID
		tr.entity = entity
	} else {
		shot, err := e.store.GetShot(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		projectID = shot.ProjectID
		tr.shot = shot
	}

	pc, err := e.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tr.pc = pc

	if tr.entity != nil {
		if live == nil {
			live = NewLiveMap()
		}
		live.Seed(pc.registry)
		tr.deps = dependencyURLs(pc.registry, live, tr.entity)
	} else {
		prev, err := e.previousShot(ctx, tr.shot)
		if err != nil {
			return nil, err
		}
		tr.prev = prev
	}

	target, err := e.loadTarget(ctx, targetID, projectID, ownerID, kind, tr.entity)
	if err != nil {
		return nil, err
	}
	tr.target = target
	return tr, nil
}

// loadTarget returns the stored target, or a fresh auto-mode target when
// none has been saved yet.
func (e *Engine) loadTarget(ctx context.Context, id, projectID, ownerID string, kind types.TargetKind, entity *types.Entity) (*types.Target, error) {
	t, err := e.store.GetTarget(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		t = &types.Target{ID: id, ProjectID: projectID, OwnerID: ownerID, Kind: kind}
	} else if err != nil {
		return nil, err
	}
	if t.Prompt == "" && entity != nil {
		t.Prompt = portraitPrompt(entity)
	}
	return t, nil
}

func portraitPrompt(e *types.Entity) string {
	if p := strings.TrimSpace(e.PortraitPrompt); p != "" {
		return p
	}
	desc := strings.TrimSpace(e.Anchor)
	if desc == "" {
		desc = strings.TrimSpace(e.Description)
	}
	if desc == "" {
		return e.Name
	}
	return e.Name + ". " + desc
}

func (e *Engine) previousShot(ctx context.Context, shot *types.Shot) (*types.Shot, error) {
	shots, err := e.store.ListShots(ctx, shot.ProjectID)
	if err != nil {
		return nil, err
	}
	for i := range shots {
		if shots[i].ID == shot.ID {
			if i == 0 {
				return nil, nil
			}
			prev := shots[i-1].Clone()
			return &prev, nil
		}
	}
	return nil, nil
}

// mandatory returns the references always injected in auto mode: a start
// frame gets the previous shot's end frame, an end frame gets its own
// shot's start frame, a portrait gets its dependencies' images.
func (tr *targetRun) mandatory() []string {
	var out []string
	switch tr.target.Kind {
	case types.TargetStart:
		if tr.prev != nil && tr.prev.EndFrameURL != "" {
			out = append(out, tr.prev.EndFrameURL)
		}
	case types.TargetEnd:
		if tr.shot != nil && tr.shot.StartFrameURL != "" {
			out = append(out, tr.shot.StartFrameURL)
		}
	case types.TargetPortrait:
		out = append(out, tr.deps...)
	case types.TargetVideo:
		out = availableFrames(tr.shot)
	}
	return out
}

// ResolveReferences returns the reference list a generation of targetID
// would use right now.
func (e *Engine) ResolveReferences(ctx context.Context, targetID string) ([]string, error) {
	v, err := e.Target(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return v.References, nil
}

// InjectFeatures expands the entity mentions in text using a project's
// entities and global style.
func (e *Engine) InjectFeatures(ctx context.Context, projectID, text string) (string, bool, error) {
	pc, err := e.loadProject(ctx, projectID)
	if err != nil {
		return "", false, err
	}
	out, changed := inject.New(pc.registry, pc.project.GlobalStyle).Inject(text)
	return out, changed, nil
}

// GenerateSingle generates one target. sess may be nil for a standalone
// call. The returned Result is non-nil whenever the target was loaded,
// including on failure.
func (e *Engine) GenerateSingle(ctx context.Context, sess *Session, targetID string, opts Options) (*Result, error) {
	if sess == nil {
		sess = NewSession()
	}
	tr, err := e.loadRun(ctx, targetID, sess.Live)
	if err != nil {
		return nil, err
	}
	return e.generate(ctx, sess, tr, opts)
}

func (e *Engine) generate(ctx context.Context, sess *Session, tr *targetRun, opts Options) (*Result, error) {
	t := tr.target
	key := SlotKey{TargetID: t.ID, Kind: t.Kind}
	if err := sess.acquire(key); err != nil {
		return &Result{TargetID: t.ID, Kind: t.Kind, Outcome: OutcomeFailed, Error: err.Error()},
			fmt.Errorf("%s: %w", t.ID, err)
	}

	res, err := e.generateLocked(ctx, sess, tr, opts)
	sess.release(key, slotStateFor(res.Outcome))
	return res, err
}

func slotStateFor(o Outcome) SlotState {
	switch o {
	case OutcomeGenerated, OutcomeInherited:
		return SlotSuccess
	case OutcomeCancelled:
		return SlotCancelled
	default:
		return SlotFailed
	}
}

func (e *Engine) generateLocked(ctx context.Context, sess *Session, tr *targetRun, opts Options) (*Result, error) {
	t := tr.target
	prompt := t.Prompt
	if opts.OverridePrompt != "" {
		prompt = opts.OverridePrompt
	}
	res := &Result{TargetID: t.ID, Kind: t.Kind, Prompt: prompt}

	if t.Kind == types.TargetStart && IsInheritPrompt(prompt) {
		return e.inherit(ctx, sess, tr, prompt, res)
	}
	if strings.TrimSpace(prompt) == "" && !t.Kind.IsVideo() {
		res.Outcome = OutcomeFailed
		res.Error = ErrEmptyPrompt.Error()
		return res, fmt.Errorf("%s: %w", t.ID, ErrEmptyPrompt)
	}

	work := t.Clone()
	work.Prompt = prompt
	renderPrompt := e.withGlobalContext(prompt, tr.pc.project)
	requestID := uuid.NewString()

	var call func() (*providers.RenderResult, error)
	if t.Kind.IsVideo() {
		plan, err := planVideo(tr, &work)
		res.References = plan.refs
		if err != nil {
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
			return res, fmt.Errorf("%s: %w", t.ID, err)
		}
		duration := tr.shot.DurationSeconds
		if duration <= 0 {
			duration = e.cfg.VideoSeconds
		}
		req := &providers.VideoRequest{
			Prompt:          renderPrompt,
			References:      plan.refs,
			StartRef:        plan.start,
			EndRef:          plan.end,
			DurationSeconds: duration,
			RequestID:       requestID,
		}
		call = func() (*providers.RenderResult, error) { return e.renderer.GenerateVideo(ctx, req) }
	} else {
		refList := tr.pc.resolver.WithImages(sess.Live.Get).Resolve(&work, tr.mandatory())
		res.References = refList
		req := &providers.ImageRequest{
			Prompt:     renderPrompt,
			References: refList,
			Size:       e.cfg.ImageSize,
			RequestID:  requestID,
		}
		call = func() (*providers.RenderResult, error) { return e.renderer.GenerateImage(ctx, req) }
	}

	out, err := e.render(ctx, sess, t.ID, call, &res.Attempts)
	if err != nil {
		if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
			res.Error = ErrCancelled.Error()
			e.logger.Info("generation cancelled", "target", t.ID, "attempts", res.Attempts)
			return res, fmt.Errorf("%s: %w", t.ID, ErrCancelled)
		}
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		e.logger.Error("generation failed", "target", t.ID, "attempts", res.Attempts, "error", err)
		return res, fmt.Errorf("%w: %s after %d attempts: %w", ErrRenderFailed, t.ID, res.Attempts, err)
	}

	if err := e.persist(ctx, sess, tr, prompt, out.URL); err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res, err
	}
	res.Outcome = OutcomeGenerated
	res.URL = out.URL
	e.logger.Info("generated asset",
		"target", t.ID,
		"provider", out.Provider,
		"attempts", res.Attempts,
		"references", len(res.References),
		"duration", out.ExecutionTime)
	return res, nil
}

// render calls the provider up to MaxAttempts times. The cancel token is
// checked before every attempt.
func (e *Engine) render(ctx context.Context, sess *Session, targetID string, call func() (*providers.RenderResult, error), attempts *int) (*providers.RenderResult, error) {
	return retry.DoWithData(
		func() (*providers.RenderResult, error) {
			if sess.Cancelled() {
				return nil, retry.Unrecoverable(ErrCancelled)
			}
			*attempts++
			out, err := call()
			if err != nil {
				return nil, err
			}
			if out == nil || out.URL == "" {
				return nil, errors.New("renderer returned no asset url")
			}
			return out, nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.cfg.MaxAttempts)),
		retry.Delay(e.cfg.RetryDelay),
		retry.DelayType(retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Warn("render attempt failed", "target", targetID, "attempt", n+1, "error", err)
		}),
	)
}

// retryDelay honors a renderer's Retry-After and otherwise waits the fixed delay.
func retryDelay(n uint, err error, config *retry.Config) time.Duration {
	if rle, ok := providers.IsRateLimitError(err); ok && rle.RetryAfter > 0 {
		return rle.RetryAfter
	}
	return retry.FixedDelay(n, err, config)
}

func (e *Engine) inherit(ctx context.Context, sess *Session, tr *targetRun, prompt string, res *Result) (*Result, error) {
	if tr.prev == nil || tr.prev.EndFrameURL == "" {
		res.Outcome = OutcomeNothingToInherit
		res.Error = ErrNothingToInherit.Error()
		e.logger.Warn("nothing to inherit", "target", tr.target.ID)
		return res, fmt.Errorf("%s: %w", tr.target.ID, ErrNothingToInherit)
	}
	url := tr.prev.EndFrameURL
	if err := e.persist(ctx, sess, tr, prompt, url); err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res, err
	}
	res.Outcome = OutcomeInherited
	res.URL = url
	e.logger.Info("inherited start frame", "target", tr.target.ID, "from", tr.prev.ID)
	return res, nil
}

// persist records a confirmed asset on the target and its owner. Both are
// re-read first, so reference edits made while the render was in flight
// are kept; only the prompt and asset url are written. The owner is saved
// first, and its previous url is put back if the target write fails.
func (e *Engine) persist(ctx context.Context, sess *Session, tr *targetRun, prompt, url string) error {
	undo, err := e.persistOwner(ctx, tr, url)
	if err != nil {
		return err
	}

	t, err := e.store.GetTarget(ctx, tr.target.ID)
	if errors.Is(err, store.ErrNotFound) {
		fresh := tr.target.Clone()
		t, err = &fresh, nil
	}
	if err == nil {
		t.Prompt = prompt
		t.AssetURL = url
		err = e.store.SaveTarget(ctx, t)
	}
	if err != nil {
		undo()
		return fmt.Errorf("persist target %s: %w", tr.target.ID, err)
	}
	tr.target = t

	if tr.entity != nil {
		sess.Live.Set(tr.entity.ID, url)
	}
	return nil
}

// persistOwner stores url on the target's entity or shot and returns a
// func that restores the previous url.
func (e *Engine) persistOwner(ctx context.Context, tr *targetRun, url string) (undo func(), err error) {
	if tr.entity != nil {
		ent, err := e.store.GetEntity(ctx, tr.entity.ID)
		if err != nil {
			return nil, fmt.Errorf("persist entity %s: %w", tr.entity.ID, err)
		}
		prev := ent.ImageURL
		ent.ImageURL = url
		if err := e.store.SaveEntity(ctx, ent); err != nil {
			return nil, fmt.Errorf("persist entity %s: %w", ent.ID, err)
		}
		tr.entity.ImageURL = url
		return func() {
			ent.ImageURL = prev
			if err := e.store.SaveEntity(ctx, ent); err != nil {
				e.logger.Error("restore entity image failed", "entity", ent.ID, "error", err)
			}
			tr.entity.ImageURL = prev
		}, nil
	}

	kind := tr.target.Kind
	shot, err := e.store.GetShot(ctx, tr.shot.ID)
	if err != nil {
		return nil, fmt.Errorf("persist shot %s: %w", tr.shot.ID, err)
	}
	prev := shot.AssetURL(kind)
	shot.SetAssetURL(kind, url)
	if err := e.store.SaveShot(ctx, shot); err != nil {
		return nil, fmt.Errorf("persist shot %s: %w", shot.ID, err)
	}
	tr.shot.SetAssetURL(kind, url)
	return func() {
		shot.SetAssetURL(kind, prev)
		if err := e.store.SaveShot(ctx, shot); err != nil {
			e.logger.Error("restore shot asset failed", "shot", shot.ID, "kind", kind, "error", err)
		}
		tr.shot.SetAssetURL(kind, prev)
	}, nil
}

func (e *Engine) withGlobalContext(prompt string, p *types.Project) string {
	if !e.cfg.GlobalContext {
		return prompt
	}
	gc := p.GlobalContext(e.cfg.GlobalContextRunes)
	if gc == "" {
		return prompt
	}
	return prompt + "\n\nGlobal context: " + gc
}
