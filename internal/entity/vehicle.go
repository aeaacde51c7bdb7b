package entity

import (
	"fmt"

	"v2x-sim/internal/geo"
	"v2x-sim/internal/message"
	"v2x-sim/internal/trigger"
)

// NoManoeuvre is the last-processed id of a vehicle that never acted on a request.
const NoManoeuvre = -1

// VehicleConfig carries the per-vehicle defaults applied at registration.
type VehicleConfig struct {
	StationType int
	Length      float64
	Width       float64
	Kinds       []message.Kind
	Controlled  bool
}

// Observation is the kinematic state read from the physics collaborator.
type Observation struct {
	Position     geo.Point
	Geo          geo.Position
	Speed        float64
	Heading      float64
	Acceleration float64
	LeftTurn     bool
	RightTurn    bool
}

// SignalChange reports a turn-signal edge.
type SignalChange struct {
	Side string // "left" or "right"
	On   bool
}

// Vehicle is a physics-driven station.
type Vehicle struct {
	base
	physicsID  string
	controlled bool
	length     float64
	width      float64

	speed, heading, accel float64
	left, right           bool

	lastManoeuvre int
}

// NewVehicle registers a vehicle known to the physics collaborator as physicsID.
func NewVehicle(physicsID string, stationID int, c VehicleConfig) *Vehicle {
	kinds := c.Kinds
	if len(kinds) == 0 {
		kinds = []message.Kind{message.KindCAM}
	}
	st := c.StationType
	if st == 0 {
		st = message.CAMStationTypePassengerCar
	}
	return &Vehicle{
		base: base{
			id:    stationID,
			name:  fmt.Sprintf("Vehicle_%d", stationID),
			kinds: kinds,
			types: StationTypes{CAM: st, MCM: message.MCMStationTypeOBU},
		},
		physicsID:     physicsID,
		controlled:    c.Controlled,
		length:        c.Length,
		width:         c.Width,
		lastManoeuvre: NoManoeuvre,
	}
}

// PhysicsID is the identifier used by the physics collaborator.
func (v *Vehicle) PhysicsID() string { return v.physicsID }

// Controlled reports whether the vehicle takes part in V2X exchanges.
func (v *Vehicle) Controlled() bool { return v.controlled }

// Update applies an observation and returns the turn-signal edges it caused.
func (v *Vehicle) Update(o Observation) []SignalChange {
	var changes []SignalChange
	if o.LeftTurn != v.left {
		changes = append(changes, SignalChange{Side: "left", On: o.LeftTurn})
	}
	if o.RightTurn != v.right {
		changes = append(changes, SignalChange{Side: "right", On: o.RightTurn})
	}
	v.pos = o.Position
	v.geo = o.Geo
	v.speed = o.Speed
	v.heading = o.Heading
	v.accel = o.Acceleration
	v.left = o.LeftTurn
	v.right = o.RightTurn
	return changes
}

// Signals returns the current left and right turn-signal state.
func (v *Vehicle) Signals() (left, right bool) { return v.left, v.right }

func (v *Vehicle) Speed() float64 { return v.speed }

func (v *Vehicle) Snapshot() trigger.Snapshot {
	return trigger.Snapshot{Position: v.pos, Speed: v.speed, Heading: v.heading}
}

// LastManoeuvre is the id of the last request the vehicle acted upon.
func (v *Vehicle) LastManoeuvre() int { return v.lastManoeuvre }

// MarkManoeuvre records that the vehicle acted on manoeuvreID.
func (v *Vehicle) MarkManoeuvre(manoeuvreID int) { v.lastManoeuvre = manoeuvreID }

func (v *Vehicle) Attributes(kind message.Kind) message.Attributes {
	a := v.attributes(kind)
	a.Kinematics = &message.Kinematics{
		Speed:           v.speed,
		Heading:         v.heading,
		Acceleration:    v.accel,
		Length:          v.length,
		Width:           v.width,
		LeftTurnSignal:  v.left,
		RightTurnSignal: v.right,
	}
	return a
}
