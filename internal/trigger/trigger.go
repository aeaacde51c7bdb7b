// Package trigger decides, tick by tick, whether an entity must emit a
// message of a given kind.
//
// Triggers are pure: they read the current observation and the state left by
// the previous positive (or state-persisting) evaluation and return a verdict
// plus an optional replacement state. The caller owns persistence through a
// Store.
package trigger

import (
	"v2x-sim/internal/geo"
	"v2x-sim/internal/message"
)

// Neighbor is a vehicle observed by a roadside unit this tick.
type Neighbor struct {
	StationID int
	Name      string
	Position  geo.Point
	Distance  float64 // to the observing unit, in metres
	LeftTurn  bool
	RightTurn bool
}

// SignalOn reports whether either turn signal is active.
func (n Neighbor) SignalOn() bool { return n.LeftTurn || n.RightTurn }

// Snapshot is the kinematic state of the evaluating entity.
type Snapshot struct {
	Position geo.Point
	Speed    float64
	Heading  float64
}

// Input is everything a trigger may look at. Each trigger reads only the
// fields relevant to it.
type Input struct {
	Time      float64
	Self      Snapshot
	Neighbors []Neighbor

	// Session lists the station ids of the open manoeuvre session, if any.
	Session []int
}

// Assignment pairs a vehicle with the strategy it is advised to follow.
type Assignment struct {
	StationID int
	Strategy  string
}

// Result is a trigger verdict. A nil State leaves the stored state untouched.
type Result struct {
	Send        bool
	State       State
	Reason      string
	Assignments []Assignment

	// Completed is the session member whose signal switched off, when a
	// termination fires.
	Completed int
}

// Trigger evaluates one message kind.
type Trigger interface {
	Kind() message.Kind
	Evaluate(in Input, prev State, hasPrev bool) Result
}
