package generation

import (
	"slices"

	"github.com/jackzampolin/storyboard/internal/mentions"
	"github.com/jackzampolin/storyboard/internal/types"
)

// StepOutcome tells how a scheduler step was chosen.
type StepOutcome int

const (
	// StepReady means every entity in the batch had its dependencies met.
	StepReady StepOutcome = iota
	// StepForced means nothing was ready and the queue head was taken
	// anyway, so cycles and unresolvable chains still make progress.
	StepForced
)

func (o StepOutcome) String() string {
	if o == StepForced {
		return "forced"
	}
	return "ready"
}

// Step is one round of the scheduler.
type Step struct {
	Outcome StepOutcome
	Batch   []types.Entity
}

// Scheduler orders entity portrait generation so that an entity is
// generated after the entities it depends on.
//
// A dependency is met when it resolves to an entity already in the live
// map, or to no known entity at all. Every entity handed out must be passed
// back to Complete before the next call to Next.
type Scheduler struct {
	queue    []types.Entity
	registry *mentions.Registry
	live     *LiveMap
	rounds   int
}

// NewScheduler creates a scheduler over queue, resolving dependencies with
// registry and reading urls from live.
func NewScheduler(queue []types.Entity, registry *mentions.Registry, live *LiveMap) *Scheduler {
	if live == nil {
		live = NewLiveMap()
	}
	return &Scheduler{
		queue:    slices.Clone(queue),
		registry: registry,
		live:     live,
	}
}

// Next returns the next batch. ok is false once the queue is empty.
func (s *Scheduler) Next() (step Step, ok bool) {
	if len(s.queue) == 0 {
		return Step{}, false
	}
	s.rounds++

	var ready []types.Entity
	for i := range s.queue {
		if s.ready(&s.queue[i]) {
			ready = append(ready, s.queue[i])
		}
	}
	if len(ready) > 0 {
		return Step{Outcome: StepReady, Batch: ready}, true
	}
	return Step{Outcome: StepForced, Batch: []types.Entity{s.queue[0]}}, true
}

// Complete removes an entity from the queue. A non-empty url is recorded in
// the live map so dependents can use it.
func (s *Scheduler) Complete(entityID, url string) {
	s.queue = slices.DeleteFunc(s.queue, func(e types.Entity) bool { return e.ID == entityID })
	s.live.Set(entityID, url)
}

// DependencyURLs returns the live urls of an entity's dependencies, in
// dependency order without duplicates.
func (s *Scheduler) DependencyURLs(e *types.Entity) []string {
	return dependencyURLs(s.registry, s.live, e)
}

// Remaining returns the number of queued entities.
func (s *Scheduler) Remaining() int {
	return len(s.queue)
}

// Rounds returns the number of steps handed out so far.
func (s *Scheduler) Rounds() int {
	return s.rounds
}

func (s *Scheduler) ready(e *types.Entity) bool {
	for _, dep := range e.Dependencies {
		target := s.resolve(e, dep)
		if target == nil {
			continue
		}
		if _, ok := s.live.Get(target.ID); !ok {
			return false
		}
	}
	return true
}

func (s *Scheduler) resolve(e *types.Entity, dep string) *types.Entity {
	if s.registry == nil {
		return nil
	}
	target := s.registry.Resolve(dep)
	if target == nil || target.ID == e.ID {
		return nil
	}
	return target
}

func dependencyURLs(registry *mentions.Registry, live *LiveMap, e *types.Entity) []string {
	if registry == nil || live == nil {
		return nil
	}
	var urls []string
	for _, dep := range e.Dependencies {
		target := registry.Resolve(dep)
		if target == nil || target.ID == e.ID {
			continue
		}
		if url, ok := live.Get(target.ID); ok && !slices.Contains(urls, url) {
			urls = append(urls, url)
		}
	}
	return urls
}
