package generation

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/storyboard/internal/providers"
	"github.com/jackzampolin/storyboard/internal/types"
)

func failPrompt(prompt string) func(providers.MockCall) error {
	return func(call providers.MockCall) error {
		if call.Prompt == prompt {
			return errors.New("content policy rejection")
		}
		return nil
	}
}

func TestGenerateBatchEntities_DependenciesFirst(t *testing.T) {
	f := newFixture(t, Config{})
	f.saveEntity(t, types.Entity{ID: "a", Name: "A"})
	f.saveEntity(t, types.Entity{ID: "b", Name: "B", Dependencies: []string{"A"}})

	tally, err := f.engine.GenerateBatchEntities(context.Background(), nil, "p1", []string{"b", "a"})
	if err != nil {
		t.Fatalf("GenerateBatchEntities() error = %v", err)
	}
	if tally.Generated != 2 || tally.Failed != 0 || tally.Forced != 0 || tally.Rounds != 2 {
		t.Errorf("tally = %+v", tally)
	}

	calls := f.mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("render calls = %d, want 2", len(calls))
	}
	if calls[0].Prompt != "A" || calls[1].Prompt != "B" {
		t.Errorf("call order = %q, %q; want A before B", calls[0].Prompt, calls[1].Prompt)
	}
	if diff := cmp.Diff([]string{"mock://image/1"}, calls[1].References); diff != "" {
		t.Errorf("dependent's references should carry the fresh dependency image (-want +got):\n%s", diff)
	}

	b, err := f.store.GetEntity(context.Background(), "b")
	if err != nil {
		t.Fatal(err)
	}
	if b.ImageURL != "mock://image/2" {
		t.Errorf("b image = %q", b.ImageURL)
	}
}

func TestGenerateBatchEntities_Cycle(t *testing.T) {
	f := newFixture(t, Config{})
	f.saveEntity(t, types.Entity{ID: "a", Name: "A", Dependencies: []string{"B"}})
	f.saveEntity(t, types.Entity{ID: "b", Name: "B", Dependencies: []string{"A"}})

	tally, err := f.engine.GenerateBatchEntities(context.Background(), nil, "p1", nil)
	if err != nil {
		t.Fatalf("GenerateBatchEntities() error = %v", err)
	}
	if f.mock.RequestCount() != 2 {
		t.Errorf("render calls = %d, want 2", f.mock.RequestCount())
	}
	if tally.Generated != 2 || tally.Forced < 1 {
		t.Errorf("tally = %+v", tally)
	}
}

func TestGenerateBatchEntities_FailureIsolation(t *testing.T) {
	f := newFixture(t, Config{})
	f.saveEntity(t, types.Entity{ID: "a", Name: "A"})
	f.saveEntity(t, types.Entity{ID: "b", Name: "B"})
	f.saveEntity(t, types.Entity{ID: "c", Name: "C", Dependencies: []string{"B"}})
	f.mock.FailFunc = failPrompt("B")

	tally, err := f.engine.GenerateBatchEntities(context.Background(), nil, "p1", nil)
	if err != nil {
		t.Fatalf("GenerateBatchEntities() error = %v", err)
	}
	if tally.Generated != 2 || tally.Failed != 1 || tally.Forced != 1 {
		t.Errorf("tally = %+v", tally)
	}
	// a once, b three times, c once
	if f.mock.RequestCount() != 5 {
		t.Errorf("render calls = %d, want 5", f.mock.RequestCount())
	}

	b, err := f.store.GetEntity(context.Background(), "b")
	if err != nil {
		t.Fatal(err)
	}
	if b.ImageURL != "" {
		t.Errorf("failed entity image = %q, want empty", b.ImageURL)
	}
}

func TestGenerateBatchEntities_ExplicitIDs(t *testing.T) {
	f := newFixture(t, Config{})
	f.saveEntity(t, types.Entity{ID: "hero", Name: "Hero", ImageURL: "https://cdn/hero.png"})

	tally, err := f.engine.GenerateBatchEntities(context.Background(), nil, "p1", []string{"hero", "ghost", "hero"})
	if err != nil {
		t.Fatalf("GenerateBatchEntities() error = %v", err)
	}
	if tally.Skipped != 1 || tally.Failed != 1 || len(tally.Items) != 2 {
		t.Errorf("tally = %+v", tally)
	}
	if f.mock.RequestCount() != 0 {
		t.Errorf("render calls = %d, want 0", f.mock.RequestCount())
	}
}

func TestGenerateBatchEntities_Cancel(t *testing.T) {
	f := newFixture(t, Config{})
	f.saveEntity(t, types.Entity{ID: "a", Name: "A"})
	f.saveEntity(t, types.Entity{ID: "b", Name: "B"})

	sess := NewSession()
	f.mock.OnCall = func(providers.MockCall) { sess.Cancel() }

	tally, err := f.engine.GenerateBatchEntities(context.Background(), sess, "p1", nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	if f.mock.RequestCount() != 1 {
		t.Errorf("render calls = %d, want 1", f.mock.RequestCount())
	}
	// the call in flight when cancel arrived still completes
	if tally.Generated != 1 {
		t.Errorf("tally = %+v", tally)
	}
}

// saveSequence stores three shots: s1 with full prompts, s2 inheriting its
// start frame, s3 already finished.
func saveSequence(t *testing.T, f *fixture) {
	t.Helper()
	f.saveShot(t, types.Shot{ID: "s1", Sequence: 1})
	f.saveShot(t, types.Shot{ID: "s2", Sequence: 2})
	f.saveShot(t, types.Shot{ID: "s3", Sequence: 3, VideoURL: "https://cdn/s3.mp4"})
	f.saveTarget(t, "s1/start", "dawn")
	f.saveTarget(t, "s1/end", "dusk")
	f.saveTarget(t, "s1/video", "pan")
	f.saveTarget(t, "s2/start", "same")
	f.saveTarget(t, "s2/end", "night")
	f.saveTarget(t, "s2/video", "tilt")
}

func TestGenerateBatchShots_Sequence(t *testing.T) {
	f := newFixture(t, Config{})
	saveSequence(t, f)

	tally, err := f.engine.GenerateBatchShots(context.Background(), nil, "p1", nil)
	if err != nil {
		t.Fatalf("GenerateBatchShots() error = %v", err)
	}
	if tally.Generated != 2 || tally.Skipped != 1 || tally.Failed != 0 {
		t.Errorf("tally = %+v", tally)
	}
	// s1 start, end, video; s2 end, video. s2 start is inherited.
	if f.mock.RequestCount() != 5 {
		t.Fatalf("render calls = %d, want 5", f.mock.RequestCount())
	}

	s2 := f.shot(t, "s2")
	if s2.StartFrameURL != "mock://image/2" {
		t.Errorf("s2 start = %q, want s1's end frame", s2.StartFrameURL)
	}
	calls := f.mock.Calls()
	if diff := cmp.Diff([]string{"mock://image/1"}, calls[1].References); diff != "" {
		t.Errorf("s1 end frame references (-want +got):\n%s", diff)
	}
	if calls[4].StartRef != "mock://image/2" || calls[4].EndRef != "mock://image/4" {
		t.Errorf("s2 video call = %+v", calls[4])
	}
	if s2.VideoURL != "mock://video/5" {
		t.Errorf("s2 video = %q", s2.VideoURL)
	}
	if got := tally.Items[1].Steps[0].Outcome; got != OutcomeInherited {
		t.Errorf("s2 first step = %q, want inherited", got)
	}
	if got := f.shot(t, "s3").VideoURL; got != "https://cdn/s3.mp4" {
		t.Errorf("finished shot was touched: %q", got)
	}
}

func TestGenerateBatchShots_FailureIsolation(t *testing.T) {
	f := newFixture(t, Config{})
	f.saveShot(t, types.Shot{ID: "s1", Sequence: 1})
	f.saveShot(t, types.Shot{ID: "s2", Sequence: 2, VideoMode: types.ModeStartOnly})
	f.saveTarget(t, "s1/start", "dawn")
	f.saveTarget(t, "s1/end", "bad")
	f.saveTarget(t, "s2/start", "noon")
	f.saveTarget(t, "s2/video", "drift")
	f.mock.FailFunc = failPrompt("bad")

	tally, err := f.engine.GenerateBatchShots(context.Background(), nil, "p1", nil)
	if err != nil {
		t.Fatalf("GenerateBatchShots() error = %v", err)
	}
	if tally.Generated != 1 || tally.Failed != 1 {
		t.Errorf("tally = %+v", tally)
	}
	if tally.Items[0].Outcome != OutcomeFailed || tally.Items[0].Error == "" {
		t.Errorf("s1 item = %+v", tally.Items[0])
	}

	s1 := f.shot(t, "s1")
	if s1.StartFrameURL == "" || s1.EndFrameURL != "" || s1.VideoURL != "" {
		t.Errorf("s1 = %+v, want only the start frame", s1)
	}

	// s1: start once, end three times. s2: start and video, no end frame.
	if f.mock.RequestCount() != 6 {
		t.Errorf("render calls = %d, want 6", f.mock.RequestCount())
	}
	last := f.mock.Calls()[5]
	if !last.Video || last.EndRef != "" {
		t.Errorf("start-only video call = %+v", last)
	}
}

func TestGenerateBatchShots_SelectedIDs(t *testing.T) {
	f := newFixture(t, Config{})
	f.saveShot(t, types.Shot{ID: "s1", Sequence: 1, EndFrameURL: "https://cdn/s1-end.png"})
	f.saveShot(t, types.Shot{ID: "s2", Sequence: 2})
	f.saveTarget(t, "s1/start", "dawn")
	f.saveTarget(t, "s2/start", "Same")
	f.saveTarget(t, "s2/end", "night")
	f.saveTarget(t, "s2/video", "tilt")

	tally, err := f.engine.GenerateBatchShots(context.Background(), nil, "p1", []string{"s2", "nope"})
	if err != nil {
		t.Fatalf("GenerateBatchShots() error = %v", err)
	}
	if tally.Generated != 1 || tally.Failed != 1 {
		t.Errorf("tally = %+v", tally)
	}
	if f.mock.RequestCount() != 2 {
		t.Errorf("render calls = %d, want 2", f.mock.RequestCount())
	}
	if got := f.shot(t, "s2").StartFrameURL; got != "https://cdn/s1-end.png" {
		t.Errorf("s2 start = %q, want inherited from unselected s1", got)
	}
	if f.shot(t, "s1").StartFrameURL != "" {
		t.Error("unselected shot was generated")
	}
}

func TestGenerateBatchShots_Cancel(t *testing.T) {
	f := newFixture(t, Config{})
	saveSequence(t, f)

	sess := NewSession()
	f.mock.OnCall = func(providers.MockCall) { sess.Cancel() }

	tally, err := f.engine.GenerateBatchShots(context.Background(), sess, "p1", nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	if f.mock.RequestCount() != 1 {
		t.Errorf("render calls = %d, want 1", f.mock.RequestCount())
	}
	if tally.Generated != 0 || tally.Failed != 0 {
		t.Errorf("cancelled shots count as neither generated nor failed: %+v", tally)
	}
	if f.shot(t, "s1").StartFrameURL != "mock://image/1" {
		t.Error("the completed start frame should be persisted")
	}
	slots := sess.Slots()
	states := make([]SlotState, 0, len(slots))
	for _, s := range slots {
		states = append(states, s.State)
	}
	if !slices.Contains(states, SlotCancelled) {
		t.Errorf("slot states = %v, want a cancelled slot", states)
	}
}
