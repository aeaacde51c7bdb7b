package message

// Confidence constants shared by every position block.
const (
	ellipseAxisUnavailable        = 4095
	ellipseOrientationUnavailable = 3601
	altitudeUnavailable           = 800001
	altitudeConfidenceUnavailable = 15
)

type ConfidenceEllipse struct {
	SemiMajorAxisLength      int `json:"semiMajorAxisLength"`
	SemiMinorAxisLength      int `json:"semiMinorAxisLength"`
	SemiMajorAxisOrientation int `json:"semiMajorAxisOrientation"`
}

type Altitude struct {
	AltitudeValue      int `json:"altitudeValue"`
	AltitudeConfidence int `json:"altitudeConfidence"`
}

// ReferencePosition is used both as CAM referencePosition and MCM position.
type ReferencePosition struct {
	Latitude                  float64           `json:"latitude"`
	Longitude                 float64           `json:"longitude"`
	PositionConfidenceEllipse ConfidenceEllipse `json:"positionConfidenceEllipse"`
	Altitude                  Altitude          `json:"altitude"`
}

func newReferencePosition(lat, lon float64) ReferencePosition {
	return ReferencePosition{
		Latitude:  lat,
		Longitude: lon,
		PositionConfidenceEllipse: ConfidenceEllipse{
			SemiMajorAxisLength:      ellipseAxisUnavailable,
			SemiMinorAxisLength:      ellipseAxisUnavailable,
			SemiMajorAxisOrientation: ellipseOrientationUnavailable,
		},
		Altitude: Altitude{AltitudeValue: altitudeUnavailable, AltitudeConfidence: altitudeConfidenceUnavailable},
	}
}

// CAM is the cooperative awareness message.
type CAM struct {
	GenerationDeltaTime int           `json:"generationDeltaTime"`
	CamParameters       CAMParameters `json:"camParameters"`
}

type CAMParameters struct {
	BasicContainer         CAMBasicContainer      `json:"basicContainer"`
	HighFrequencyContainer HighFrequencyContainer `json:"highFrequencyContainer"`
	LowFrequencyContainer  *LowFrequencyContainer `json:"lowFrequencyContainer,omitempty"`
}

type CAMBasicContainer struct {
	StationType       int               `json:"stationType"`
	ReferencePosition ReferencePosition `json:"referencePosition"`
}

// HighFrequencyContainer holds exactly one of its variants.
type HighFrequencyContainer struct {
	RSU     *struct{}                  `json:"rsuContainerHighFrequency,omitempty"`
	Vehicle *BasicVehicleHighFrequency `json:"basicVehicleContainerHighFrequency,omitempty"`
}

type Heading struct {
	HeadingValue      float64 `json:"headingValue"`
	HeadingConfidence int     `json:"headingConfidence"`
}

type Speed struct {
	SpeedValue      float64 `json:"speedValue"`
	SpeedConfidence int     `json:"speedConfidence"`
}

type VehicleLength struct {
	VehicleLengthValue                float64 `json:"vehicleLengthValue"`
	VehicleLengthConfidenceIndication int     `json:"vehicleLengthConfidenceIndication"`
}

type LongitudinalAcceleration struct {
	Value      float64 `json:"value"`
	Confidence int     `json:"confidence"`
}

type Curvature struct {
	CurvatureValue      int `json:"curvatureValue"`
	CurvatureConfidence int `json:"curvatureConfidence"`
}

type YawRate struct {
	YawRateValue      int `json:"yawRateValue"`
	YawRateConfidence int `json:"yawRateConfidence"`
}

type AccelerationControl struct {
	BrakePedalEngaged       bool `json:"brakePedalEngaged"`
	GasPedalEngaged         bool `json:"gasPedalEngaged"`
	EmergencyBrakeEngaged   bool `json:"emergencyBrakeEngaged"`
	CollisionWarningEngaged bool `json:"collisionWarningEngaged"`
	AccEngaged              bool `json:"accEngaged"`
	CruiseControlEngaged    bool `json:"cruiseControlEngaged"`
	SpeedLimiterEngaged     bool `json:"speedLimiterEngaged"`
}

type SteeringWheelAngle struct {
	SteeringWheelAngleValue      int `json:"steeringWheelAngleValue"`
	SteeringWheelAngleConfidence int `json:"steeringWheelAngleConfidence"`
}

type BasicVehicleHighFrequency struct {
	Heading                  Heading                  `json:"heading"`
	Speed                    Speed                    `json:"speed"`
	DriveDirection           int                      `json:"driveDirection"`
	VehicleLength            VehicleLength            `json:"vehicleLength"`
	VehicleWidth             float64                  `json:"vehicleWidth"`
	LongitudinalAcceleration LongitudinalAcceleration `json:"longitudinalAcceleration"`
	Curvature                Curvature                `json:"curvature"`
	CurvatureCalculationMode int                      `json:"curvatureCalculationMode"`
	YawRate                  YawRate                  `json:"yawRate"`
	AccelerationControl      AccelerationControl      `json:"accelerationControl"`
	SteeringWheelAngle       SteeringWheelAngle       `json:"steeringWheelAngle"`
}

type LowFrequencyContainer struct {
	Vehicle BasicVehicleLowFrequency `json:"basicVehicleContainerLowFrequency"`
}

type ExteriorLights struct {
	LowBeamHeadlightsOn    bool `json:"lowBeamHeadlightsOn"`
	HighBeamHeadlightsOn   bool `json:"highBeamHeadlightsOn"`
	LeftTurnSignalOn       bool `json:"leftTurnSignalOn"`
	RightTurnSignalOn      bool `json:"rightTurnSignalOn"`
	DaytimeRunningLightsOn bool `json:"daytimeRunningLightsOn"`
	ReverseLightOn         bool `json:"reverseLightOn"`
	FogLightOn             bool `json:"fogLightOn"`
	ParkingLightsOn        bool `json:"parkingLightsOn"`
}

type BasicVehicleLowFrequency struct {
	VehicleRole    int            `json:"vehicleRole"`
	ExteriorLights ExteriorLights `json:"exteriorLights"`
	PathHistory    []any          `json:"pathHistory"`
}

// MCM is the manoeuvre coordination message. The container holds exactly one
// of its variants, selected by BasicContainer.MCMType.
type MCM struct {
	BasicContainer MCMBasicContainer `json:"basicContainer"`
	MCMContainer   MCMContainer      `json:"mcmContainer"`
}

type Rational struct {
	ManoeuvreCooperationCost int `json:"manoeuvreCooperationCost"`
}

type MCMBasicContainer struct {
	GenerationDeltaTime int               `json:"generationDeltaTime"`
	StationID           int               `json:"stationID"`
	StationType         int               `json:"stationType"`
	ITSSRole            int               `json:"itssRole"`
	Position            ReferencePosition `json:"position"`
	MCMType             int               `json:"mcmType"`
	ManoeuvreID         int               `json:"manoeuvreId"`
	Concept             int               `json:"concept"`
	Rational            *Rational         `json:"rational,omitempty"`
	ExecutionStatus     *int              `json:"executionStatus,omitempty"`
}

type MCMContainer struct {
	VehicleManoeuvre  *VehicleManoeuvreContainer `json:"vehicleManoeuvreContainer,omitempty"`
	AdvisedManoeuvres []AdvisedManoeuvre         `json:"advisedManoeuvreContainer,omitzero"`
	Response          *ResponseContainer         `json:"responseContainer,omitempty"`
	Termination       *struct{}                  `json:"terminationContainer,omitempty"`
}

type VehicleManoeuvreContainer struct {
	CurrentState  VehicleCurrentState `json:"vehicleCurrentStateContainer"`
	Submanoeuvres []Submanoeuvre      `json:"submaneuvres"`
}

type VehicleHeading struct {
	Value      float64 `json:"value"`
	Confidence int     `json:"confidence"`
}

type VehicleSize struct {
	VehicleType   int           `json:"vehicleType"`
	VehicleLength VehicleLength `json:"vehicleLenth"`
	VehicleWidth  float64       `json:"vehicleWidth"`
	VehicleHeight int           `json:"vehicleHeight"`
}

type VehicleCurrentState struct {
	VehicleSpeed             Speed          `json:"vehicleSpeed"`
	VehicleHeading           VehicleHeading `json:"vehicleHeading"`
	VehicleSize              VehicleSize    `json:"vehicleSize"`
	ManoeuvreOverallStrategy Strategy       `json:"manoeuvreOverallStrategy"`
}

// AdvisedManoeuvre is one executant entry of a request.
type AdvisedManoeuvre struct {
	ExecutantID               int            `json:"executantID"`
	Submanoeuvres             []Submanoeuvre `json:"submaneuvres"`
	CurrentStateAdvisedChange *Strategy      `json:"currentStateAdvisedChange,omitempty"`
}

type Submanoeuvre struct {
	SubmanoeuvreID    int         `json:"submanoeuvreId"`
	AdvisedTrajectory *Trajectory `json:"advisedTrajectory,omitempty"`
}

type Trajectory struct {
	WayPointType int          `json:"wayPointType"`
	WayPoints    []WayPoint   `json:"wayPoints"`
	Speed        []SpeedPoint `json:"speed"`
}

type PathPosition struct {
	DeltaLatitude  float64 `json:"deltaLatitude"`
	DeltaLongitude float64 `json:"deltaLongitude"`
	DeltaAltitude  float64 `json:"deltaAltitude"`
}

type WayPoint struct {
	PathPosition PathPosition `json:"pathPosition"`
}

type SpeedPoint struct {
	SpeedValue      float64 `json:"speedValue"`
	SpeedConfidence int     `json:"speedConfidence"`
}

type ResponseContainer struct {
	ManoeuvreResponse int            `json:"manouevreResponse"`
	Submanoeuvres     []Submanoeuvre `json:"submaneuvres"`
}

// Executant returns the advised manoeuvre addressed to stationID, if any.
func (m *MCM) Executant(stationID int) (AdvisedManoeuvre, bool) {
	for _, a := range m.MCMContainer.AdvisedManoeuvres {
		if a.ExecutantID == stationID {
			return a, true
		}
	}
	return AdvisedManoeuvre{}, false
}

// ExecutantIDs lists the station ids addressed by a request.
func (m *MCM) ExecutantIDs() []int {
	ids := make([]int, 0, len(m.MCMContainer.AdvisedManoeuvres))
	for _, a := range m.MCMContainer.AdvisedManoeuvres {
		ids = append(ids, a.ExecutantID)
	}
	return ids
}
