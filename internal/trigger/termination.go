package trigger

import (
	"fmt"

	"github.com/samber/lo"

	"v2x-sim/internal/message"
)

// Termination closes a manoeuvre session when a session member switches its
// turn signal off.
type Termination struct{}

// NewTermination returns a termination trigger.
func NewTermination() *Termination { return &Termination{} }

func (t *Termination) Kind() message.Kind { return message.KindMCMTermination }

func (t *Termination) Evaluate(in Input, prev State, hasPrev bool) Result {
	if len(in.Session) == 0 {
		return Result{Reason: "no_session"}
	}
	var before map[int]bool
	if st, ok := prev.(TerminationState); hasPrev && ok {
		before = st.Signals
	}

	signals := make(map[int]bool, len(in.Neighbors))
	completed, fired := 0, false
	for _, n := range in.Neighbors {
		on := n.SignalOn()
		signals[n.StationID] = on
		if fired || !lo.Contains(in.Session, n.StationID) {
			continue
		}
		if before[n.StationID] && !on {
			completed, fired = n.StationID, true
		}
	}

	res := Result{State: TerminationState{Signals: signals}}
	if fired {
		res.Send = true
		res.Completed = completed
		res.Reason = fmt.Sprintf("vehicle %d completed the manoeuvre (signal off)", completed)
	}
	return res
}
