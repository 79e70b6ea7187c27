package callstate

import (
	"sync"
)

// Store is the in-process call-state store. Work is parallel across calls
// and strictly serialized within a call: [Store.WithCall] holds a per-call
// mutex for the duration of the turn, so no two turns for the same call ID
// ever run concurrently and state is never observed mid-mutation.
//
// All exported methods are safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	calls map[string]*entry
}

// entry pairs a call's state with its serialization lock.
type entry struct {
	mu    sync.Mutex
	state State
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{calls: make(map[string]*entry)}
}

// WithCall runs fn under the call's serialization lock. The state passed to
// fn is a deep copy; the state fn returns is written back as the call's new
// state. The first turn for a call ID creates the state via [New].
//
// fn runs while the per-call lock is held: concurrent WithCall invocations
// for the same call ID queue up behind it, while other calls proceed in
// parallel.
func (s *Store) WithCall(callID, companyID string, fn func(State) State) {
	e := s.acquire(callID, companyID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = fn(e.state.Clone())
}

// Peek returns a copy of the call's current state and whether it exists.
// Intended for diagnostics; turn processing must go through WithCall.
func (s *Store) Peek(callID string) (State, bool) {
	s.mu.Lock()
	e, ok := s.calls[callID]
	s.mu.Unlock()
	if !ok {
		return State{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), true
}

// End discards the call's state. Called when the external caller signals end
// of call. Ending an unknown call is a no-op.
func (s *Store) End(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, callID)
}

// Active returns the number of calls with live state.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// acquire returns the entry for callID, creating it atomically on first use.
func (s *Store) acquire(callID, companyID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.calls[callID]
	if !ok {
		e = &entry{state: New(callID, companyID)}
		s.calls[callID] = e
	}
	return e
}
