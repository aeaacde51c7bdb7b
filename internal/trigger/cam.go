package trigger

import (
	"fmt"

	"v2x-sim/internal/geo"
	"v2x-sim/internal/message"
)

// floatTolerance absorbs step-length rounding when comparing elapsed time
// against Tmin and t_gen.
const floatTolerance = 0.005

// CAMParams configures the adaptive awareness trigger.
type CAMParams struct {
	TMin              float64
	TMax              float64
	NMax              int
	PositionThreshold float64
	SpeedThreshold    float64
	HeadingThreshold  float64
}

// DefaultCAMParams returns the ETSI EN 302 637-2 reference values.
func DefaultCAMParams() CAMParams {
	return CAMParams{
		TMin:              0.1,
		TMax:              1.0,
		NMax:              3,
		PositionThreshold: 4.0,
		SpeedThreshold:    0.5,
		HeadingThreshold:  4.0,
	}
}

// CAM implements the ETSI generation rules: a dynamic trigger on position,
// speed or heading change, and a timeout trigger whose interval adapts to the
// last dynamic interval for NMax messages before falling back to TMax.
type CAM struct {
	p CAMParams
}

// NewCAM returns an awareness trigger.
func NewCAM(p CAMParams) *CAM {
	return &CAM{p: p}
}

func (c *CAM) Kind() message.Kind { return message.KindCAM }

func (c *CAM) Evaluate(in Input, prev State, hasPrev bool) Result {
	last, ok := prev.(CAMState)
	if !hasPrev || !ok {
		return Result{
			Send:   true,
			State:  c.snapshot(in, c.p.TMax, c.p.NMax),
			Reason: "first_message",
		}
	}

	dt := in.Time - last.Time
	if dt < c.p.TMin-floatTolerance {
		return Result{Reason: "min_interval_not_elapsed"}
	}

	dPos := geo.Distance(in.Self.Position, last.Position)
	dSpeed := in.Self.Speed - last.Speed
	if dSpeed < 0 {
		dSpeed = -dSpeed
	}
	dHeading := geo.HeadingDelta(in.Self.Heading, last.Heading)

	if dPos > c.p.PositionThreshold || dSpeed > c.p.SpeedThreshold || dHeading > c.p.HeadingThreshold {
		return Result{
			Send:   true,
			State:  c.snapshot(in, dt, c.p.NMax),
			Reason: fmt.Sprintf("dynamic_trigger(pos=%.2f, spd=%.2f, hdg=%.2f)", dPos, dSpeed, dHeading),
		}
	}

	if dt >= last.TGen-floatTolerance {
		tGen, nGen := last.TGen, last.NGen
		if nGen > 0 {
			nGen--
		}
		if nGen == 0 {
			tGen = c.p.TMax
		}
		return Result{
			Send:   true,
			State:  c.snapshot(in, tGen, nGen),
			Reason: fmt.Sprintf("interval_timeout(t_gen=%.2f, n_gen=%d)", last.TGen, last.NGen),
		}
	}
	return Result{Reason: "no_trigger"}
}

func (c *CAM) snapshot(in Input, tGen float64, nGen int) CAMState {
	return CAMState{
		Time:     in.Time,
		Position: in.Self.Position,
		Speed:    in.Self.Speed,
		Heading:  in.Self.Heading,
		TGen:     tGen,
		NGen:     nGen,
	}
}
