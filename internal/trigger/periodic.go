package trigger

import (
	"fmt"

	"v2x-sim/internal/message"
)

// Periodic fires at a fixed interval. Roadside units use it for their
// awareness broadcast.
type Periodic struct {
	kind     message.Kind
	interval float64
}

// NewPeriodic returns a fixed-interval trigger for kind.
func NewPeriodic(kind message.Kind, interval float64) *Periodic {
	return &Periodic{kind: kind, interval: interval}
}

func (p *Periodic) Kind() message.Kind { return p.kind }

func (p *Periodic) Evaluate(in Input, prev State, hasPrev bool) Result {
	if last, ok := prev.(PeriodicState); hasPrev && ok {
		if in.Time-last.LastSent < p.interval-floatTolerance {
			return Result{Reason: "interval_not_elapsed"}
		}
		return Result{
			Send:   true,
			State:  PeriodicState{LastSent: in.Time},
			Reason: fmt.Sprintf("periodic(%.2fs)", p.interval),
		}
	}
	return Result{Send: true, State: PeriodicState{LastSent: in.Time}, Reason: "first_message"}
}
