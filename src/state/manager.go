package state

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionNotFound is returned for lookups of unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned when initializing an already-active session.
var ErrSessionExists = errors.New("session already initialized")

// Manager holds at most one pipeline state per session. Within a session
// the pipeline is the sole writer; reads return independent copies.
type Manager struct {
	mu     sync.RWMutex
	states map[string]*PipelineState
}

// NewManager creates an empty state manager.
func NewManager() *Manager {
	return &Manager{states: make(map[string]*PipelineState)}
}

// Initialize creates and stores a fresh state in the ingestion phase.
func (m *Manager) Initialize(sessionID string) (*PipelineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.states[sessionID]; exists {
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, sessionID)
	}
	s := newState(sessionID, time.Now())
	m.states[sessionID] = s
	return s.clone(), nil
}

// Get returns a copy of the session's current snapshot.
func (m *Manager) Get(sessionID string) (*PipelineState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	return s.clone(), nil
}

// Update computes the next snapshot by applying mutate to a copy of the
// current one, always refreshing LastUpdatedAt. Snapshots handed out
// earlier stay valid and unchanged.
func (m *Manager) Update(sessionID string, mutate func(*PipelineState)) (*PipelineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.states[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	next := cur.clone()
	if mutate != nil {
		mutate(next)
	}
	next.SessionID = sessionID // not updatable
	next.LastUpdatedAt = time.Now()
	m.states[sessionID] = next
	return next.clone(), nil
}

// SetPhase advances the session to phase, stamping PhaseStartedAt and
// resetting the per-phase iteration counter. Backward transitions are
// rejected; setting the current phase again is allowed (phase retry).
func (m *Manager) SetPhase(sessionID string, phase ExecutionPhase) (*PipelineState, error) {
	if phase.Index() < 0 {
		return nil, fmt.Errorf("unknown phase %q", phase)
	}
	cur, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if phase.Before(cur.CurrentPhase) {
		return nil, fmt.Errorf("cannot move phase backward from %s to %s", cur.CurrentPhase, phase)
	}
	return m.Update(sessionID, func(s *PipelineState) {
		if s.CurrentPhase != phase {
			s.Iteration = 0
		}
		s.CurrentPhase = phase
		s.PhaseStartedAt = time.Now()
	})
}

// IncrementIteration bumps the retry counter within the current phase.
func (m *Manager) IncrementIteration(sessionID string) (*PipelineState, error) {
	return m.Update(sessionID, func(s *PipelineState) {
		s.Iteration++
	})
}

// Complete marks the session finished.
func (m *Manager) Complete(sessionID string) (*PipelineState, error) {
	return m.Update(sessionID, func(s *PipelineState) {
		s.CurrentPhase = PhaseComplete
		s.CompletedAt = time.Now()
	})
}

// Remove drops the session's state. Removing an unknown session is a no-op.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
}
