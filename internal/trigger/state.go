package trigger

import (
	"v2x-sim/internal/geo"
	"v2x-sim/internal/message"
)

// State is the per-(entity, kind) memory of a trigger. The concrete types
// below are the only implementations.
type State interface {
	isState()
}

// CAMState records the last transmitted kinematics and the adaptive interval.
type CAMState struct {
	Time     float64
	Position geo.Point
	Speed    float64
	Heading  float64
	TGen     float64
	NGen     int
}

// ConflictState maps station ids to the time they were last assigned.
type ConflictState struct {
	Assigned map[int]float64
}

// TerminationState holds the signal state of each neighbour at the previous tick.
type TerminationState struct {
	Signals map[int]bool
}

// PeriodicState is the time of the last periodic broadcast.
type PeriodicState struct {
	LastSent float64
}

func (CAMState) isState()         {}
func (ConflictState) isState()    {}
func (TerminationState) isState() {}
func (PeriodicState) isState()    {}

// Key identifies a trigger state slot.
type Key struct {
	StationID int
	Kind      message.Kind
}

// Store keeps trigger states. It is not safe for concurrent use; the
// orchestrator touches it only from the tick goroutine.
type Store struct {
	states map[Key]State
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{states: make(map[Key]State)}
}

// Get returns the state for k. The boolean is false when nothing was stored.
func (s *Store) Get(k Key) (State, bool) {
	st, ok := s.states[k]
	return st, ok
}

// Put replaces the state for k.
func (s *Store) Put(k Key, st State) {
	s.states[k] = st
}

// DropStation forgets every state belonging to a station.
func (s *Store) DropStation(stationID int) int {
	n := 0
	for k := range s.states {
		if k.StationID == stationID {
			delete(s.states, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored states.
func (s *Store) Len() int { return len(s.states) }
