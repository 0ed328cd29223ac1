package sync

import (
	"sync"
	"time"
)

// State is the coordinator's externally visible condition.
type State int

const (
	StateIdle State = iota
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	default:
		return "idle"
	}
}

// StateChange is one entry in a subscription stream. Result and Err are
// set on the transition back to idle.
type StateChange struct {
	State  State
	At     time.Time
	Result *Result
	Err    string
}

const subscriberBuffer = 8

// subscribers fans state changes out to pull-based consumers. Publishing
// never blocks; a consumer that stops draining its channel loses updates
// past the buffer.
type subscribers struct {
	mu     sync.Mutex
	chans  map[int]chan StateChange
	nextID int
}

func newSubscribers() *subscribers {
	return &subscribers{chans: make(map[int]chan StateChange)}
}

func (s *subscribers) add() (<-chan StateChange, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan StateChange, subscriberBuffer)
	s.chans[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if got, ok := s.chans[id]; ok {
			delete(s.chans, id)
			close(got)
		}
	}
	return ch, cancel
}

func (s *subscribers) publish(change StateChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans {
		select {
		case ch <- change:
		default:
			// Consumer fell behind; it still sees later changes.
		}
	}
}
