package usecase

import (
	"context"
	"sync"

	"mbti-report-console/internal/domain/model"
)

// AppState is the console's in-memory state: the per-tab insight cache, the
// generated flags, the per-workflow loop generations and the current group task id.
// It is created at startup, mutated only through TabCoordinator and torn down by Close.
type AppState struct {
	mu          sync.Mutex
	entries     map[model.Workflow]model.InsightEntry
	generated   map[model.Workflow]bool
	generations map[model.Workflow]uint64
	loops       map[model.Workflow]map[*boundLoop]struct{}
	groupTaskID string
}

// boundLoop is a running poll loop tied to one generation of a workflow.
type boundLoop struct {
	gen    uint64
	cancel context.CancelFunc
}

func NewAppState() *AppState {
	return &AppState{
		entries:     make(map[model.Workflow]model.InsightEntry),
		generated:   make(map[model.Workflow]bool),
		generations: make(map[model.Workflow]uint64),
		loops:       make(map[model.Workflow]map[*boundLoop]struct{}),
	}
}

func (s *AppState) entry(w model.Workflow) (model.InsightEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[w]
	return e, ok
}

func (s *AppState) isGenerated(w model.Workflow) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generated[w]
}

// put overwrites the entry for w and returns the number of cached tabs.
func (s *AppState) put(w model.Workflow, e model.InsightEntry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[w] = e
	s.generated[w] = true
	return len(s.entries)
}

func (s *AppState) drop(w model.Workflow) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, w)
	delete(s.generated, w)
	return len(s.entries)
}

func (s *AppState) nextGeneration(w model.Workflow) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[w]++
	s.cancelLoopsLocked(w)
	return s.generations[w]
}

// bind derives the context of a loop running generation gen of w. The
// context is canceled as soon as a newer generation begins.
func (s *AppState) bind(parent context.Context, w model.Workflow, gen uint64) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[w] != gen {
		cancel()
		return ctx, cancel
	}
	l := &boundLoop{gen: gen, cancel: cancel}
	if s.loops[w] == nil {
		s.loops[w] = make(map[*boundLoop]struct{})
	}
	s.loops[w][l] = struct{}{}
	return ctx, func() {
		cancel()
		s.mu.Lock()
		delete(s.loops[w], l)
		s.mu.Unlock()
	}
}

// liveLoops counts bound loops of w that have not returned yet.
func (s *AppState) liveLoops(w model.Workflow) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops[w])
}

func (s *AppState) cancelLoopsLocked(w model.Workflow) {
	for l := range s.loops[w] {
		if l.gen != s.generations[w] {
			l.cancel()
			delete(s.loops[w], l)
		}
	}
}

func (s *AppState) isCurrent(w model.Workflow, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[w] == gen
}

func (s *AppState) setGroupTask(id string) {
	s.mu.Lock()
	s.groupTaskID = id
	s.mu.Unlock()
}

func (s *AppState) groupTask() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupTaskID
}

// Close forgets everything and cancels bound loops. Generations keep
// counting so loops still running after Close see themselves as superseded.
func (s *AppState) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[model.Workflow]model.InsightEntry)
	s.generated = make(map[model.Workflow]bool)
	for w := range s.generations {
		s.generations[w]++
	}
	for w, loops := range s.loops {
		for l := range loops {
			l.cancel()
		}
		delete(s.loops, w)
	}
	s.groupTaskID = ""
}
