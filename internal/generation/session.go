package generation

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/storyboard/internal/mentions"
	"github.com/jackzampolin/storyboard/internal/types"
)

// SlotState is the generation state of one (target, kind) slot.
type SlotState string

const (
	SlotIdle       SlotState = "idle"
	SlotGenerating SlotState = "generating"
	SlotSuccess    SlotState = "success"
	SlotFailed     SlotState = "failed"
	SlotCancelled  SlotState = "cancelled"
)

// SlotKey identifies a generation slot.
type SlotKey struct {
	TargetID string
	Kind     types.TargetKind
}

// SlotStatus is a point-in-time view of one slot.
type SlotStatus struct {
	TargetID string           `json:"target_id"`
	Kind     types.TargetKind `json:"kind"`
	State    SlotState        `json:"state"`
}

// CancelToken is a cooperative cancellation flag shared by reference.
// Setting it stops new attempts from starting; calls already in flight
// run to completion.
type CancelToken struct {
	cancelled atomic.Bool
}

// Cancel sets the flag. It is safe to call more than once.
func (c *CancelToken) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (c *CancelToken) Cancelled() bool {
	return c.cancelled.Load()
}

// LiveMap records the entity image urls known during a run. It only grows.
type LiveMap struct {
	mu   sync.RWMutex
	urls map[string]string
}

// NewLiveMap creates an empty live map.
func NewLiveMap() *LiveMap {
	return &LiveMap{urls: make(map[string]string)}
}

// Get returns the url recorded for an entity.
func (m *LiveMap) Get(entityID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	url, ok := m.urls[entityID]
	return url, ok
}

// Set records url for an entity. Empty urls are ignored.
func (m *LiveMap) Set(entityID, url string) {
	if entityID == "" || url == "" {
		return
	}
	m.mu.Lock()
	m.urls[entityID] = url
	m.mu.Unlock()
}

// Seed records the image of every entity in registry that has one and is
// not yet in the map.
func (m *LiveMap) Seed(registry *mentions.Registry) {
	if registry == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range registry.Entities() {
		if e.ImageURL == "" {
			continue
		}
		if _, ok := m.urls[e.ID]; !ok {
			m.urls[e.ID] = e.ImageURL
		}
	}
}

// Len returns the number of recorded entities.
func (m *LiveMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.urls)
}

// Snapshot returns a copy of the map.
func (m *LiveMap) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.urls)
}

// Item is the result of one shot or entity in a batch.
type Item struct {
	ID      string   `json:"id"`
	Outcome Outcome  `json:"outcome"`
	URL     string   `json:"url,omitempty"`
	Error   string   `json:"error,omitempty"`
	Forced  bool     `json:"forced,omitempty"`
	Steps   []Result `json:"steps,omitempty"`
}

// ShotTally is the running count of a shot batch.
type ShotTally struct {
	Generated int    `json:"generated"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Items     []Item `json:"items"`
}

func (t *ShotTally) add(item Item) {
	switch item.Outcome {
	case OutcomeSkipped:
		t.Skipped++
	case OutcomeGenerated, OutcomeInherited:
		t.Generated++
	case OutcomeCancelled:
	default:
		t.Failed++
	}
	t.Items = append(t.Items, item)
}

func (t *ShotTally) clone() *ShotTally {
	c := *t
	c.Items = slices.Clone(t.Items)
	return &c
}

// EntityTally is the running count of an entity batch.
type EntityTally struct {
	Generated int    `json:"generated"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Rounds    int    `json:"rounds"`
	Forced    int    `json:"forced"`
	Items     []Item `json:"items"`
}

func (t *EntityTally) add(item Item) {
	switch item.Outcome {
	case OutcomeSkipped:
		t.Skipped++
	case OutcomeGenerated:
		t.Generated++
	case OutcomeCancelled:
	default:
		t.Failed++
	}
	if item.Forced {
		t.Forced++
	}
	t.Items = append(t.Items, item)
}

func (t *EntityTally) clone() *EntityTally {
	c := *t
	c.Items = slices.Clone(t.Items)
	return &c
}

// Session is the state of one generation run: slot states, the cancel
// token and the live url map. A session is driven by one goroutine; the
// mutex only makes status reads from other goroutines safe.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`

	// Live holds entity image urls, seeded from stored images and grown as
	// portraits are generated.
	Live *LiveMap `json:"-"`

	cancel *CancelToken

	mu       sync.Mutex
	slots    map[SlotKey]SlotState
	shots    *ShotTally
	entities *EntityTally
}

// NewSession creates a session with a fresh cancel token.
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Live:      NewLiveMap(),
		cancel:    &CancelToken{},
		slots:     make(map[SlotKey]SlotState),
	}
}

// Cancel stops the run before its next attempt.
func (s *Session) Cancel() {
	s.cancel.Cancel()
}

// Cancelled reports whether the run was cancelled.
func (s *Session) Cancelled() bool {
	return s.cancel.Cancelled()
}

// SlotState returns the state of one slot.
func (s *Session) SlotState(targetID string, kind types.TargetKind) SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.slots[SlotKey{targetID, kind}]; ok {
		return st
	}
	return SlotIdle
}

// Slots returns every slot touched by the run, ordered by target id.
func (s *Session) Slots() []SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlotStatus, 0, len(s.slots))
	for k, st := range s.slots {
		out = append(out, SlotStatus{TargetID: k.TargetID, Kind: k.Kind, State: st})
	}
	slices.SortFunc(out, func(a, b SlotStatus) int { return strings.Compare(a.TargetID, b.TargetID) })
	return out
}

// acquire moves a slot to Generating, refusing while it already is.
func (s *Session) acquire(key SlotKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[key] == SlotGenerating {
		return ErrSlotBusy
	}
	s.slots[key] = SlotGenerating
	return nil
}

func (s *Session) release(key SlotKey, state SlotState) {
	s.mu.Lock()
	s.slots[key] = state
	s.mu.Unlock()
}

// ShotTally returns a copy of the current shot batch tally, or nil.
func (s *Session) ShotTally() *ShotTally {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shots == nil {
		return nil
	}
	return s.shots.clone()
}

// EntityTally returns a copy of the current entity batch tally, or nil.
func (s *Session) EntityTally() *EntityTally {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entities == nil {
		return nil
	}
	return s.entities.clone()
}

func (s *Session) updateShots(fn func(t *ShotTally)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shots == nil {
		s.shots = &ShotTally{}
	}
	fn(s.shots)
}

func (s *Session) updateEntities(fn func(t *EntityTally)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entities == nil {
		s.entities = &EntityTally{}
	}
	fn(s.entities)
}
