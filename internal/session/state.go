// Package session holds the in-memory authentication state observed by
// every route guard instance, plus the background timeout monitor.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/portal-access/internal/domain"
)

// Phase is the timeout-monitor state machine position for one session.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseActive
	PhaseWarning
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "ACTIVE"
	case PhaseWarning:
		return "WARNING"
	case PhaseExpired:
		return "EXPIRED"
	default:
		return "UNAUTHENTICATED"
	}
}

// State is the single source of truth for one browser session.
// All mutations happen under the mutex so no reader ever observes a
// half-updated session (authenticated with no user, or an expired
// session still flagged valid).
type State struct {
	mu             sync.RWMutex
	session        domain.Session
	phase          Phase
	generation     uint64
	lastActivityAt time.Time
	nowFn          func() time.Time
}

// NewState returns an unauthenticated state container.
func NewState(nowFn func() time.Time) *State {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &State{nowFn: nowFn}
}

// Snapshot returns the current session value with no side effects.
func (s *State) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copySessionLocked()
}

// CheckValid evaluates expiry against the current time. An expired
// session is cleared in the same step, so no caller can see
// IsAuthenticated=true alongside an already-expired expiry.
func (s *State) CheckValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsAuthenticated {
		return false
	}
	if !s.nowFn().Before(s.session.SessionExpiresAt) {
		s.clearLocked()
		return false
	}
	return true
}

// Set replaces the session wholesale after a successful login or token
// refresh.
func (s *State) Set(user domain.User, sessionID uuid.UUID, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := user
	s.session = domain.Session{
		IsAuthenticated:  true,
		User:             &u,
		SessionID:        sessionID,
		SessionExpiresAt: expiresAt,
	}
	s.phase = PhaseActive
	s.generation++
	s.lastActivityAt = s.nowFn()
}

// Clear resets to the unauthenticated state on logout or detected expiry.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// HasAnyRole reports whether the user's role is a member of roles.
// An empty roles set means any authenticated role qualifies.
func (s *State) HasAnyRole(roles ...domain.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.session.IsAuthenticated || s.session.User == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if s.session.User.Role == r {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the user's effective permission set
// intersects perms. Vacuously true for an empty perms set.
func (s *State) HasAnyPermission(perms ...domain.Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.session.IsAuthenticated || s.session.User == nil {
		return false
	}
	if len(perms) == 0 {
		return true
	}
	have := s.session.User.Permissions()
	for _, p := range perms {
		if have[p] {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every element of perms is held.
// Vacuously true for an empty perms set.
func (s *State) HasAllPermissions(perms ...domain.Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.session.IsAuthenticated || s.session.User == nil {
		return false
	}
	have := s.session.User.Permissions()
	for _, p := range perms {
		if !have[p] {
			return false
		}
	}
	return true
}

// TouchActivity records a qualifying user action; the monitor uses it
// to decide whether a warning-phase session earns an extension attempt.
func (s *State) TouchActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.IsAuthenticated {
		s.lastActivityAt = s.nowFn()
	}
}

// Generation identifies the current login instance. An asynchronous
// refresh result captured under an older generation must be discarded.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ExtendIfCurrent applies a refreshed expiry only when the session has
// not been cleared or replaced since gen was captured. It returns false
// when the result was discarded as stale.
func (s *State) ExtendIfCurrent(gen uint64, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsAuthenticated || s.generation != gen {
		return false
	}
	s.session.SessionExpiresAt = expiresAt
	s.phase = PhaseActive
	return true
}

// Phase returns the monitor state machine position.
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *State) lastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivityAt
}

func (s *State) markWarning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive {
		return false
	}
	s.phase = PhaseWarning
	return true
}

// expire moves WARNING (or ACTIVE, if the sweep missed the window) to
// EXPIRED and immediately clears to UNAUTHENTICATED.
func (s *State) expire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.IsAuthenticated {
		return false
	}
	s.clearLocked()
	return true
}

// clearLocked resets to UNAUTHENTICATED. EXPIRED is terminal for a
// session instance, so expiry and logout land in the same end state.
func (s *State) clearLocked() {
	s.session = domain.Session{}
	s.phase = PhaseUnauthenticated
	s.generation++
}

func (s *State) copySessionLocked() domain.Session {
	snap := s.session
	if snap.User != nil {
		u := *snap.User
		snap.User = &u
	}
	return snap
}

// Registry maps portal session IDs to their state containers so guard
// instances and the timeout monitor share one view per browser session.
type Registry struct {
	mu     sync.RWMutex
	states map[uuid.UUID]*State
	nowFn  func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry(nowFn func() time.Time) *Registry {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		states: make(map[uuid.UUID]*State),
		nowFn:  nowFn,
	}
}

// Get returns the state for a session ID when tracked.
func (r *Registry) Get(sessionID uuid.UUID) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[sessionID]
	return st, ok
}

// GetOrCreate returns the tracked state, creating an unauthenticated
// container on first sight of the session ID.
func (r *Registry) GetOrCreate(sessionID uuid.UUID) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[sessionID]; ok {
		return st
	}
	st := NewState(r.nowFn)
	r.states[sessionID] = st
	return st
}

// Remove drops a session from tracking.
func (r *Registry) Remove(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, sessionID)
}

// Range visits a stable copy of tracked sessions. The monitor sweeps
// through this so state mutations never run under the registry lock.
func (r *Registry) Range(fn func(sessionID uuid.UUID, st *State)) {
	r.mu.RLock()
	snapshot := make(map[uuid.UUID]*State, len(r.states))
	for id, st := range r.states {
		snapshot[id] = st
	}
	r.mu.RUnlock()

	for id, st := range snapshot {
		fn(id, st)
	}
}

// Len reports the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}
