package message

const (
	brakeThreshold           = -0.5
	curvatureUnavailable     = 1023
	curvatureConfUnavailable = 7
	curvatureModeUnavailable = 2
	yawRateConfUnavailable   = 8
	steeringAngleUnavailable = 512
	confidenceUnavailable    = 127
	accelConfUnavailable     = 102
	lengthNoTrailer          = 4
)

// BuildCAM renders a CAM. Roadside units get the RSU high-frequency container
// only; every other station type gets the vehicle containers.
func BuildCAM(genDelta int, a Attributes) any {
	var lat, lon float64
	if a.Position != nil {
		lat, lon = a.Position.Lat, a.Position.Lon
	}
	cam := CAM{
		GenerationDeltaTime: genDelta,
		CamParameters: CAMParameters{
			BasicContainer: CAMBasicContainer{
				StationType:       a.StationType,
				ReferencePosition: newReferencePosition(lat, lon),
			},
		},
	}
	if a.StationType == CAMStationTypeRoadSideUnit {
		cam.CamParameters.HighFrequencyContainer.RSU = &struct{}{}
		return cam
	}

	var k Kinematics
	if a.Kinematics != nil {
		k = *a.Kinematics
	}
	driveDirection := 0
	if k.Speed < 0 {
		driveDirection = 1
	}
	cam.CamParameters.HighFrequencyContainer.Vehicle = &BasicVehicleHighFrequency{
		Heading:        Heading{HeadingValue: k.Heading, HeadingConfidence: confidenceUnavailable},
		Speed:          Speed{SpeedValue: k.Speed, SpeedConfidence: confidenceUnavailable},
		DriveDirection: driveDirection,
		VehicleLength: VehicleLength{
			VehicleLengthValue:                k.Length,
			VehicleLengthConfidenceIndication: lengthNoTrailer,
		},
		VehicleWidth:             k.Width,
		LongitudinalAcceleration: LongitudinalAcceleration{Value: k.Acceleration, Confidence: accelConfUnavailable},
		Curvature:                Curvature{CurvatureValue: curvatureUnavailable, CurvatureConfidence: curvatureConfUnavailable},
		CurvatureCalculationMode: curvatureModeUnavailable,
		YawRate:                  YawRate{YawRateValue: 0, YawRateConfidence: yawRateConfUnavailable},
		AccelerationControl: AccelerationControl{
			BrakePedalEngaged: k.Acceleration < brakeThreshold,
			GasPedalEngaged:   k.Acceleration > 0,
		},
		SteeringWheelAngle: SteeringWheelAngle{
			SteeringWheelAngleValue:      steeringAngleUnavailable,
			SteeringWheelAngleConfidence: confidenceUnavailable,
		},
	}
	lowBeam := true
	if k.LowBeam != nil {
		lowBeam = *k.LowBeam
	}
	cam.CamParameters.LowFrequencyContainer = &LowFrequencyContainer{
		Vehicle: BasicVehicleLowFrequency{
			VehicleRole: 0,
			ExteriorLights: ExteriorLights{
				LowBeamHeadlightsOn: lowBeam,
				LeftTurnSignalOn:    k.LeftTurnSignal,
				RightTurnSignalOn:   k.RightTurnSignal,
			},
			PathHistory: []any{},
		},
	}
	return cam
}
