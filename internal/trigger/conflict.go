package trigger

import (
	"fmt"

	"github.com/samber/lo"

	"v2x-sim/internal/message"
)

// ConflictParams configures right-of-way conflict detection.
type ConflictParams struct {
	Radius   float64
	Cooldown float64

	// Controlled lists the station ids of vehicles the unit may coordinate.
	Controlled []int
}

// DefaultConflictParams matches the reference intersection deployment.
func DefaultConflictParams() ConflictParams {
	return ConflictParams{Radius: 100, Cooldown: 5.0, Controlled: []int{1, 2}}
}

// Conflict detects a turning vehicle near a roadside unit and assigns
// priority to it while every other coordinated vehicle is told to stop.
type Conflict struct {
	p          ConflictParams
	controlled map[int]struct{}
}

// NewConflict returns a conflict trigger.
func NewConflict(p ConflictParams) *Conflict {
	return &Conflict{
		p: p,
		controlled: lo.SliceToMap(p.Controlled, func(id int) (int, struct{}) {
			return id, struct{}{}
		}),
	}
}

func (c *Conflict) Kind() message.Kind { return message.KindMCMRequest }

// Evaluate always returns a state: the pruned cooldown history is kept even
// when nothing is sent.
func (c *Conflict) Evaluate(in Input, prev State, hasPrev bool) Result {
	var assigned map[int]float64
	if st, ok := prev.(ConflictState); hasPrev && ok {
		assigned = st.Assigned
	}
	history := lo.PickBy(assigned, func(_ int, ts float64) bool {
		return in.Time-ts <= c.p.Cooldown
	})

	relevant := lo.Filter(in.Neighbors, func(n Neighbor, _ int) bool {
		if _, ok := c.controlled[n.StationID]; !ok {
			return false
		}
		if _, cooling := history[n.StationID]; cooling {
			return false
		}
		return n.Distance <= c.p.Radius
	})

	turner, found := lo.Find(relevant, func(n Neighbor) bool { return n.SignalOn() })
	if !found {
		return Result{State: ConflictState{Assigned: history}, Reason: "no_conflict"}
	}

	assignments := make([]Assignment, 0, len(relevant))
	for _, n := range relevant {
		strategy := message.StrategyStop
		if n.StationID == turner.StationID {
			strategy = message.StrategyStayInLane
		}
		assignments = append(assignments, Assignment{StationID: n.StationID, Strategy: strategy})
		history[n.StationID] = in.Time
	}
	return Result{
		Send:        true,
		State:       ConflictState{Assigned: history},
		Reason:      fmt.Sprintf("coordinating: priority=%d others=%d", turner.StationID, len(assignments)-1),
		Assignments: assignments,
	}
}
