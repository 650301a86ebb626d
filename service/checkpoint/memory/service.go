package memory

import (
	"context"
	"sync"

	"github.com/epicflow/epicflow/model/epic"
	"github.com/epicflow/epicflow/service/checkpoint"
)

// Service implements an in-memory, thread-safe checkpoint store for epic
// states, keyed by thread id.  Saves update existing records in place via
// CopyFrom to eliminate data races between goroutines.
type Service struct {
	states map[string]*epic.State
	mux    sync.RWMutex
}

var _ checkpoint.Store[string, epic.State] = (*Service)(nil)

func New() *Service {
	return &Service{states: map[string]*epic.State{}}
}

func (s *Service) Save(_ context.Context, state *epic.State) error {
	if state == nil {
		return checkpoint.ErrNilEntity
	}
	if state.ThreadID == "" {
		return checkpoint.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if existing, ok := s.states[state.ThreadID]; ok && existing != nil && existing != state {
		existing.CopyFrom(state)
	} else {
		s.states[state.ThreadID] = state
	}
	return nil
}

func (s *Service) Load(_ context.Context, threadID string) (*epic.State, error) {
	if threadID == "" {
		return nil, checkpoint.ErrInvalidID
	}

	s.mux.RLock()
	state, ok := s.states[threadID]
	s.mux.RUnlock()

	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	return state, nil
}

func (s *Service) Delete(_ context.Context, threadID string) error {
	if threadID == "" {
		return checkpoint.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.states[threadID]; !ok {
		return checkpoint.ErrNotFound
	}
	delete(s.states, threadID)
	return nil
}

func (s *Service) List(_ context.Context) ([]*epic.State, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	out := make([]*epic.State, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, state)
	}
	return out, nil
}
