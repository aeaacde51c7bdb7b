package message

import "encoding/json"

// Manoeuvre strategy names as spelled in the MCM ASN.1 module.
const (
	StrategyUndefined                = "undefined"
	StrategyTransitToHumanDrivenMode = "transitToHumanDrivenMode"
	StrategyTransitToAutomatedMode   = "transitToAutomatedDrivingMode"
	StrategyDriveStraight            = "driveStraight"
	StrategyTurnLeft                 = "turnLeft"
	StrategyTurnRight                = "turnRight"
	StrategyUTurn                    = "uTurn"
	StrategyMoveBackward             = "moveBackward"
	StrategyOvertake                 = "overtake"
	StrategyAccelerate               = "accelerate"
	StrategySlowdown                 = "slowdown"
	StrategyStop                     = "stop"
	StrategyGoToLeftLane             = "goToLeftLane"
	StrategyGoToRightLane            = "oToRightLane" // sic, as spelled in the ASN.1 module
	StrategyGetOnHighway             = "getOnHighway"
	StrategyExitHighway              = "exitHighway"
	StrategyTakeTollingLane          = "takeTollingLane"
	StrategyStopAndWait              = "stopAndWait"
	StrategyEmergencyBrakeAndStop    = "emergencyBrakeAndStop"
	StrategyResetStopAndRestart      = "resetStopAndRestartMoving"
	StrategyStayInLane               = "stayInLane"
	StrategyResetStayInLane          = "resetStayInLane"
	StrategyStayAway                 = "stayAway"
	StrategyResetStayAway            = "resetStayAway"
	StrategyFollowMe                 = "followMe"
	StrategyExistingGroup            = "existingGroup"
	StrategyDisbandExistingGroup     = "temporarilyDisbandAnExistingGroup"
	StrategyConstituteTempGroup      = "constituteAtemporarilyGroup"
	StrategyDisbandTempGroup         = "disbandATemporarilyGroup"
)

// DefaultTollingLane is used when takeTollingLane is requested without a lane.
const DefaultTollingLane = 1

// Strategy is a single-key JSON object naming the strategy. Every strategy
// maps to null except takeTollingLane, which carries a lane number.
type Strategy struct {
	Name string
	Lane int
}

// MarshalJSON renders {"<name>": null} or {"takeTollingLane": lane}.
func (s Strategy) MarshalJSON() ([]byte, error) {
	if s.Name == StrategyTakeTollingLane {
		lane := s.Lane
		if lane == 0 {
			lane = DefaultTollingLane
		}
		return json.Marshal(map[string]int{s.Name: lane})
	}
	return json.Marshal(map[string]any{s.Name: nil})
}

// UnmarshalJSON accepts the single-key form produced by MarshalJSON. Any
// other shape decodes as StrategyUndefined, so one bad entry only affects
// its own executant.
func (s *Strategy) UnmarshalJSON(b []byte) error {
	*s = Strategy{Name: StrategyUndefined}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil || len(m) != 1 {
		return nil
	}
	for name, raw := range m {
		s.Name = name
		if string(raw) != "null" {
			// a non-numeric lane falls back to the default lane
			_ = json.Unmarshal(raw, &s.Lane)
		}
	}
	return nil
}
