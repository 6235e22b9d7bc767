package state

import (
	"sync"
	"time"
)

// Transition describes one applied event, for logging and metrics.
type Transition struct {
	Event Event
	From  FetchState
	To    FetchState
	At    time.Time
}

// Store owns a FetchState and applies events to it atomically.
// Subscribers receive the latest state after every dispatch.
type Store struct {
	mu          sync.RWMutex
	state       FetchState
	subscribers map[int]chan FetchState
	nextID      int

	// OnTransition, if set, is called after each dispatch outside the lock.
	OnTransition func(Transition)
}

// NewStore returns a Store holding the zero (idle) state.
func NewStore() *Store {
	return &Store{subscribers: make(map[int]chan FetchState)}
}

// Dispatch applies e and notifies subscribers. Returns the new state.
func (s *Store) Dispatch(e Event) FetchState {
	s.mu.Lock()
	from := s.state
	to := Reduce(from, e)
	s.state = to
	for _, ch := range s.subscribers {
		offerLatest(ch, to)
	}
	hook := s.OnTransition
	s.mu.Unlock()

	if hook != nil {
		hook(Transition{Event: e, From: from, To: to, At: time.Now()})
	}
	return to
}

// Snapshot returns the current state. The record bytes are shared and must
// not be modified by the caller.
func (s *Store) Snapshot() FetchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe returns a channel that always holds the most recent state after
// each dispatch, dropping older undelivered states. Call the returned func
// to unsubscribe; it closes the channel.
func (s *Store) Subscribe() (<-chan FetchState, func()) {
	ch := make(chan FetchState, 1)
	s.mu.Lock()
	if s.subscribers == nil {
		s.subscribers = make(map[int]chan FetchState)
	}
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// offerLatest replaces any pending value in a 1-slot channel with v.
// Must be called with s.mu held so sends never race with close.
func offerLatest(ch chan FetchState, v FetchState) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
