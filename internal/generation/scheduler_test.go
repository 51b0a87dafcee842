package generation

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/storyboard/internal/mentions"
	"github.com/jackzampolin/storyboard/internal/types"
)

func batchIDs(step Step) []string {
	ids := make([]string, 0, len(step.Batch))
	for _, e := range step.Batch {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestScheduler_DependencyBeforeDependent(t *testing.T) {
	a := types.Entity{ID: "a", Name: "A"}
	b := types.Entity{ID: "b", Name: "B", Dependencies: []string{"A"}}
	registry := mentions.NewRegistry([]types.Entity{a, b})
	live := NewLiveMap()

	s := NewScheduler([]types.Entity{b, a}, registry, live)

	step, ok := s.Next()
	if !ok {
		t.Fatal("Next() returned no step")
	}
	if step.Outcome != StepReady {
		t.Errorf("first step outcome = %v, want ready", step.Outcome)
	}
	if diff := cmp.Diff([]string{"a"}, batchIDs(step)); diff != "" {
		t.Fatalf("first batch mismatch (-want +got):\n%s", diff)
	}
	s.Complete("a", "mock://a.png")

	step, ok = s.Next()
	if !ok {
		t.Fatal("Next() returned no second step")
	}
	if diff := cmp.Diff([]string{"b"}, batchIDs(step)); diff != "" {
		t.Fatalf("second batch mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"mock://a.png"}, s.DependencyURLs(&step.Batch[0])); diff != "" {
		t.Errorf("DependencyURLs mismatch (-want +got):\n%s", diff)
	}
	s.Complete("b", "mock://b.png")

	if _, ok := s.Next(); ok {
		t.Error("Next() should report an empty queue")
	}
	if s.Rounds() != 2 {
		t.Errorf("Rounds() = %d, want 2", s.Rounds())
	}
}

func TestScheduler_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		entity types.Entity
		seeded map[string]string
		want   StepOutcome
	}{
		{
			name:   "no dependencies",
			entity: types.Entity{ID: "x", Name: "X"},
			want:   StepReady,
		},
		{
			name:   "unknown dependency never blocks",
			entity: types.Entity{ID: "x", Name: "X", Dependencies: []string{"Nobody"}},
			want:   StepReady,
		},
		{
			name:   "self dependency ignored",
			entity: types.Entity{ID: "x", Name: "X", Dependencies: []string{"X", "x"}},
			want:   StepReady,
		},
		{
			name:   "dependency by id already live",
			entity: types.Entity{ID: "x", Name: "X", Dependencies: []string{"hero"}},
			seeded: map[string]string{"hero": "mock://hero.png"},
			want:   StepReady,
		},
		{
			name:   "dependency by name without image",
			entity: types.Entity{ID: "x", Name: "X", Dependencies: []string{"character: Hero"}},
			want:   StepForced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hero := types.Entity{ID: "hero", Name: "Hero"}
			registry := mentions.NewRegistry([]types.Entity{hero, tt.entity})
			live := NewLiveMap()
			for id, url := range tt.seeded {
				live.Set(id, url)
			}
			step, ok := NewScheduler([]types.Entity{tt.entity}, registry, live).Next()
			if !ok {
				t.Fatal("Next() returned no step")
			}
			if step.Outcome != tt.want {
				t.Errorf("outcome = %v, want %v", step.Outcome, tt.want)
			}
		})
	}
}

func TestScheduler_CycleUsesForcedProgress(t *testing.T) {
	a := types.Entity{ID: "a", Name: "A", Dependencies: []string{"B"}}
	b := types.Entity{ID: "b", Name: "B", Dependencies: []string{"A"}}
	registry := mentions.NewRegistry([]types.Entity{a, b})
	s := NewScheduler([]types.Entity{a, b}, registry, NewLiveMap())

	step, _ := s.Next()
	if step.Outcome != StepForced {
		t.Fatalf("outcome = %v, want forced", step.Outcome)
	}
	if diff := cmp.Diff([]string{"a"}, batchIDs(step)); diff != "" {
		t.Fatalf("forced batch should be the queue head (-want +got):\n%s", diff)
	}
	if urls := s.DependencyURLs(&step.Batch[0]); len(urls) != 0 {
		t.Errorf("forced entity has no live dependencies, got %v", urls)
	}
	s.Complete("a", "mock://a.png")

	step, _ = s.Next()
	if step.Outcome != StepReady || step.Batch[0].ID != "b" {
		t.Errorf("second step = %v %v, want ready [b]", step.Outcome, batchIDs(step))
	}
}

func TestScheduler_FailedEntityStillLeavesQueue(t *testing.T) {
	a := types.Entity{ID: "a", Name: "A"}
	b := types.Entity{ID: "b", Name: "B", Dependencies: []string{"a"}}
	registry := mentions.NewRegistry([]types.Entity{a, b})
	live := NewLiveMap()
	s := NewScheduler([]types.Entity{a, b}, registry, live)

	step, _ := s.Next()
	s.Complete(step.Batch[0].ID, "") // failed: no url
	if s.Remaining() != 1 {
		t.Fatalf("Remaining() = %d, want 1", s.Remaining())
	}
	if live.Len() != 0 {
		t.Errorf("failed entity must not enter the live map")
	}

	step, _ = s.Next()
	if step.Outcome != StepForced || step.Batch[0].ID != "b" {
		t.Errorf("step = %v %v, want forced [b]", step.Outcome, batchIDs(step))
	}
}

func TestScheduler_TerminatesWithinEntityCount(t *testing.T) {
	// Each graph is listed as dependency names per entity, queued in order.
	graphs := map[string][][]string{
		"ring":       {{"E1"}, {"E2"}, {"E3"}, {"E4"}, {"E0"}},
		"chain":      {{"E1"}, {"E2"}, {"E3"}, {"E4"}, nil},
		"dense":      {{"E1", "E2"}, {"E0", "E2"}, {"E0", "E1"}, {"E0"}, {"E9"}},
		"two cycles": {{"E1"}, {"E0"}, {"E3"}, {"E2"}, {}},
	}

	for name, deps := range graphs {
		t.Run(name, func(t *testing.T) {
			var entities []types.Entity
			for i, d := range deps {
				entities = append(entities, types.Entity{
					ID:           fmt.Sprintf("e%d", i),
					Name:         fmt.Sprintf("E%d", i),
					Dependencies: d,
				})
			}
			registry := mentions.NewRegistry(entities)
			live := NewLiveMap()
			s := NewScheduler(entities, registry, live)

			attempted := map[string]int{}
			for {
				step, ok := s.Next()
				if !ok {
					break
				}
				for _, e := range step.Batch {
					attempted[e.ID]++
					s.Complete(e.ID, "mock://"+e.ID)
				}
				if s.Rounds() > len(entities) {
					t.Fatalf("more rounds than entities: %d", s.Rounds())
				}
			}
			for _, e := range entities {
				if attempted[e.ID] != 1 {
					t.Errorf("entity %s attempted %d times, want 1", e.ID, attempted[e.ID])
				}
			}
			if live.Len() != len(entities) {
				t.Errorf("live map has %d entries, want %d", live.Len(), len(entities))
			}
		})
	}
}
