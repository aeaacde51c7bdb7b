package message

import "v2x-sim/internal/geo"

// Unavailable markers used when an attribute is not known.
const (
	SpeedUnavailable   = 16383
	HeadingUnavailable = 3601
	LengthUnavailable  = 50
	WidthUnavailable   = 20

	RSULatitudeUnavailable  = 900000001
	RSULongitudeUnavailable = 1800000001
)

// Attributes is the flat record an entity hands to the codec. Each builder
// reads only the fields that apply to its kind.
type Attributes struct {
	StationID   int
	StationType int

	// Position is nil when the geographic position is unknown.
	Position *geo.Position

	// Kinematics is nil for stationary units.
	Kinematics *Kinematics

	ITSSRole    int
	ManoeuvreID int

	// Cost is emitted as basicContainer.rational only when set.
	Cost *int

	Strategy      string
	LaneNumber    int
	Submanoeuvres []Submanoeuvre

	Executants   []Executant
	ResponseCode int
}

// Kinematics describes a moving station.
type Kinematics struct {
	Speed        float64
	Heading      float64
	Acceleration float64
	Length       float64
	Width        float64

	LeftTurnSignal  bool
	RightTurnSignal bool

	// LowBeam defaults to on when nil.
	LowBeam *bool
}

// Executant is one addressee of a request together with its advice.
type Executant struct {
	StationID     int
	Strategy      string
	LaneNumber    int
	Submanoeuvres []Submanoeuvre
}

// IntPtr is a convenience for optional integer attributes.
func IntPtr(v int) *int { return &v }
