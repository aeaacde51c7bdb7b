// Package message builds and decodes the JSON renditions of the cooperative
// awareness (CAM) and manoeuvre coordination (MCM) messages.
package message

import (
	"fmt"
	"strings"
)

// Kind names an outgoing message family.
type Kind string

const (
	KindCAM            Kind = "cam"
	KindMCMIntent      Kind = "mcm_intent"
	KindMCMRequest     Kind = "mcm_request"
	KindMCMResponse    Kind = "mcm_response"
	KindMCMTermination Kind = "mcm_termination"
)

// AllKinds lists every kind the default registry knows, in a stable order.
var AllKinds = []Kind{KindCAM, KindMCMIntent, KindMCMRequest, KindMCMResponse, KindMCMTermination}

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown message kind %q", s)
}

// IsMCM reports whether k belongs to the manoeuvre coordination family.
func (k Kind) IsMCM() bool {
	return strings.HasPrefix(string(k), "mcm_")
}

// MCM discriminants carried in basicContainer.mcmType.
const (
	MCMTypeIntent = iota
	MCMTypeRequest
	MCMTypeResponse
	MCMTypeReservation
	MCMTypeTermination
	MCMTypeCancellationRequest
	MCMTypeEmergencyManoeuvreReservation
	MCMTypeExecutionStatus
	MCMTypeOffer
	MCMTypeAcknowledgment
)

// ITS-S roles.
const (
	RoleNotAvailable = iota
	RoleCoordinating
	RoleNotCoordinatingSubjectVehicle
	RoleTargetVehicle
)

// Execution status values.
const (
	ExecStarted = iota
	ExecInProgress
	ExecCompleted
	ExecTerminated
	ExecChained
)

// Response codes.
const (
	ResponseAccept  = 0
	ResponseDecline = 1
)

// ConceptAgreementSeeking is the only coordination concept in use.
const ConceptAgreementSeeking = 0

// Station types. CAM uses the ETSI station type table, MCM distinguishes
// only on-board units from roadside units.
const (
	CAMStationTypePassengerCar = 5
	CAMStationTypeRoadSideUnit = 15

	MCMStationTypeOBU = 1
	MCMStationTypeRSU = 2
)
