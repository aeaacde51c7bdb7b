package message

const (
	vehicleTypePassengerCar = 1
	heightUnavailable       = 127
	vehicleSpeedConfidence  = 1
	defaultSubmanoeuvreID   = 1
	defaultWayPointType     = 1
)

func buildBasicContainer(genDelta, mcmType int, a Attributes) MCMBasicContainer {
	var lat, lon float64
	switch {
	case a.Position != nil:
		lat, lon = a.Position.Lat, a.Position.Lon
	case a.StationType == MCMStationTypeRSU:
		lat, lon = RSULatitudeUnavailable, RSULongitudeUnavailable
	}
	bc := MCMBasicContainer{
		GenerationDeltaTime: genDelta,
		StationID:           a.StationID,
		StationType:         a.StationType,
		ITSSRole:            a.ITSSRole,
		Position:            newReferencePosition(lat, lon),
		MCMType:             mcmType,
		ManoeuvreID:         a.ManoeuvreID,
		Concept:             ConceptAgreementSeeking,
	}
	if a.Cost != nil {
		bc.Rational = &Rational{ManoeuvreCooperationCost: *a.Cost}
	}
	return bc
}

// normalizeSubmanoeuvres fills defaults and never returns nil so the list
// renders as [] rather than null.
func normalizeSubmanoeuvres(in []Submanoeuvre) []Submanoeuvre {
	out := make([]Submanoeuvre, 0, len(in))
	for _, s := range in {
		if s.SubmanoeuvreID == 0 {
			s.SubmanoeuvreID = defaultSubmanoeuvreID
		}
		if t := s.AdvisedTrajectory; t != nil {
			traj := Trajectory{
				WayPointType: t.WayPointType,
				WayPoints:    append([]WayPoint{}, t.WayPoints...),
				Speed:        make([]SpeedPoint, 0, len(t.Speed)),
			}
			if traj.WayPointType == 0 {
				traj.WayPointType = defaultWayPointType
			}
			for _, sp := range t.Speed {
				if sp.SpeedConfidence == 0 {
					sp.SpeedConfidence = vehicleSpeedConfidence
				}
				traj.Speed = append(traj.Speed, sp)
			}
			s.AdvisedTrajectory = &traj
		}
		out = append(out, s)
	}
	return out
}

// BuildIntent renders an intent MCM announcing the sender's own state.
func BuildIntent(genDelta int, a Attributes) any {
	speed, heading := float64(SpeedUnavailable), float64(HeadingUnavailable)
	length, width := float64(LengthUnavailable), float64(WidthUnavailable)
	if k := a.Kinematics; k != nil {
		speed, heading, length, width = k.Speed, k.Heading, k.Length, k.Width
	}
	strategy := a.Strategy
	if strategy == "" {
		strategy = StrategyDriveStraight
	}
	return MCM{
		BasicContainer: buildBasicContainer(genDelta, MCMTypeIntent, a),
		MCMContainer: MCMContainer{
			VehicleManoeuvre: &VehicleManoeuvreContainer{
				CurrentState: VehicleCurrentState{
					VehicleSpeed:   Speed{SpeedValue: speed, SpeedConfidence: vehicleSpeedConfidence},
					VehicleHeading: VehicleHeading{Value: heading, Confidence: confidenceUnavailable},
					VehicleSize: VehicleSize{
						VehicleType:   vehicleTypePassengerCar,
						VehicleLength: VehicleLength{VehicleLengthValue: length},
						VehicleWidth:  width,
						VehicleHeight: heightUnavailable,
					},
					ManoeuvreOverallStrategy: Strategy{Name: strategy, Lane: a.LaneNumber},
				},
				Submanoeuvres: normalizeSubmanoeuvres(a.Submanoeuvres),
			},
		},
	}
}

// BuildRequest renders an agreement-seeking request with one advised
// manoeuvre per executant.
func BuildRequest(genDelta int, a Attributes) any {
	advised := make([]AdvisedManoeuvre, 0, len(a.Executants))
	for _, e := range a.Executants {
		subs := e.Submanoeuvres
		if len(subs) == 0 {
			subs = []Submanoeuvre{{SubmanoeuvreID: defaultSubmanoeuvreID}}
		}
		am := AdvisedManoeuvre{
			ExecutantID:   e.StationID,
			Submanoeuvres: normalizeSubmanoeuvres(subs),
		}
		if e.Strategy != "" {
			am.CurrentStateAdvisedChange = &Strategy{Name: e.Strategy, Lane: e.LaneNumber}
		}
		advised = append(advised, am)
	}
	return MCM{
		BasicContainer: buildBasicContainer(genDelta, MCMTypeRequest, a),
		MCMContainer:   MCMContainer{AdvisedManoeuvres: advised},
	}
}

// BuildResponse renders a response to a request.
func BuildResponse(genDelta int, a Attributes) any {
	return MCM{
		BasicContainer: buildBasicContainer(genDelta, MCMTypeResponse, a),
		MCMContainer: MCMContainer{
			Response: &ResponseContainer{
				ManoeuvreResponse: a.ResponseCode,
				Submanoeuvres:     []Submanoeuvre{},
			},
		},
	}
}

// BuildTermination renders a termination with execution status completed.
func BuildTermination(genDelta int, a Attributes) any {
	bc := buildBasicContainer(genDelta, MCMTypeTermination, a)
	status := ExecCompleted
	bc.ExecutionStatus = &status
	return MCM{
		BasicContainer: bc,
		MCMContainer:   MCMContainer{Termination: &struct{}{}},
	}
}
