// Package physics is the boundary to the traffic simulation that owns vehicle
// kinematics. Two engines are provided: a TCP bridge to an external TraCI
// process and an in-process scripted engine.
package physics

import (
	"context"
	"errors"

	"v2x-sim/internal/geo"
)

// ErrUnknownVehicle is returned by control calls for vehicles not in the simulation.
var ErrUnknownVehicle = errors.New("unknown vehicle")

// Turn-signal bits as reported by TraCI getSignals.
const (
	SignalRight = 1 << 0
	SignalLeft  = 1 << 1
)

// SpeedModeRelaxed disables the junction checks that would otherwise hold a
// priority vehicle back.
const SpeedModeRelaxed = 55

// VehicleState is one vehicle as observed after a simulation step.
type VehicleState struct {
	ID           string  `json:"id"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Speed        float64 `json:"speed"`
	Angle        float64 `json:"angle"`
	Acceleration float64 `json:"acceleration"`
	Signals      int     `json:"signals"`
	Edge         string  `json:"edge,omitempty"`
}

// LeftTurn reports the left indicator bit.
func (s VehicleState) LeftTurn() bool { return s.Signals&SignalLeft != 0 }

// RightTurn reports the right indicator bit.
func (s VehicleState) RightTurn() bool { return s.Signals&SignalRight != 0 }

// Position returns the planar position.
func (s VehicleState) Position() geo.Point { return geo.Point{X: s.X, Y: s.Y} }

// Color is an RGBA marker colour.
type Color struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
	A uint8 `json:"a" yaml:"a"`
}

// RGB returns an opaque colour.
func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b, A: 255} }

var (
	ColorRed    = RGB(255, 0, 0)
	ColorGreen  = RGB(0, 255, 0)
	ColorBlue   = RGB(0, 0, 255)
	ColorOrange = RGB(255, 165, 0)
	ColorYellow = RGB(255, 255, 0)
)

// Simulation advances time and reports vehicle state.
type Simulation interface {
	// Step advances the simulation by one step.
	Step(ctx context.Context) error
	// Time is the simulation time in seconds after the last step.
	Time() float64
	// Vehicles lists the vehicles present after the last step.
	Vehicles() []VehicleState
	// Pending is the number of vehicles still running or yet to depart.
	Pending() int
	// ToGeo converts a planar position to geographic coordinates.
	ToGeo(p geo.Point) (geo.Position, error)
	Close() error
}

// Controller issues commands to individual vehicles.
type Controller interface {
	SetSpeed(id string, speed float64) error
	SlowDown(id string, speed, duration float64) error
	SetSpeedMode(id string, mode int) error
	SetColor(id string, c Color) error
	Edge(id string) (string, error)
	HasPendingStops(id string) (bool, error)
	Resume(id string) error
}

// Engine is a simulation that also accepts vehicle commands.
type Engine interface {
	Simulation
	Controller
}

// IsInternalEdge reports whether an edge id denotes a junction-internal edge.
func IsInternalEdge(edge string) bool {
	return len(edge) > 0 && edge[0] == ':'
}
