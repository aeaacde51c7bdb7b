// Telemetry structs with greptime tags
package telemetry

import (
	"os"
	"time"
)

// VehicleRow is one vehicle's observed state at a tick.
type VehicleRow struct {
	RunID        string    `json:"run_id"`     // TAG
	VehicleID    string    `json:"vehicle_id"` // TAG
	StationID    int       `json:"station_id"` // FIELD
	X            float64   `json:"x"`          // FIELD
	Y            float64   `json:"y"`          // FIELD
	Lat          float64   `json:"lat"`        // FIELD
	Lon          float64   `json:"lon"`        // FIELD
	Speed        float64   `json:"speed"`      // FIELD
	Heading      float64   `json:"heading"`    // FIELD
	Acceleration float64   `json:"acceleration"`
	LeftTurn     bool      `json:"left_turn"`
	RightTurn    bool      `json:"right_turn"`
	Controlled   bool      `json:"controlled"`
	SimTime      float64   `json:"sim_time"`
	Timestamp    time.Time `json:"ts"` // TIME INDEX
}

// MessageRow records one outbound message attempt.
type MessageRow struct {
	RunID        string    `json:"run_id"`     // TAG
	StationID    int       `json:"station_id"` // TAG
	Kind         string    `json:"kind"`       // TAG
	Entity       string    `json:"entity"`
	Reason       string    `json:"reason"`
	ManoeuvreID  int       `json:"manoeuvre_id,omitempty"`
	GenDeltaTime int       `json:"gen_delta_time"`
	Bytes        int       `json:"bytes"`
	Delivered    bool      `json:"delivered"`
	Error        string    `json:"error,omitempty"`
	SimTime      float64   `json:"sim_time"`
	Timestamp    time.Time `json:"ts"` // TIME INDEX
}

// Negotiation step names.
const (
	EventConflict         = "conflict_detected"
	EventRequestReceived  = "request_received"
	EventResponseSent     = "response_sent"
	EventActionApplied    = "action_applied"
	EventActionSuppressed = "action_suppressed"
	EventTermination      = "termination_received"
	EventRestored         = "restored"
	EventSessionClosed    = "session_closed"
	EventSignalChanged    = "signal_changed"
	EventVehicleDeparted  = "vehicle_departed"
	EventDuplicateIgnored = "duplicate_ignored"
	EventMalformedDiscard = "malformed_discarded"
)

// NegotiationRow records one step of a manoeuvre negotiation.
type NegotiationRow struct {
	RunID       string    `json:"run_id"`     // TAG
	Event       string    `json:"event"`      // TAG
	StationID   int       `json:"station_id"` // FIELD
	VehicleID   string    `json:"vehicle_id,omitempty"`
	ManoeuvreID int       `json:"manoeuvre_id,omitempty"`
	Strategy    string    `json:"strategy,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	SimTime     float64   `json:"sim_time"`
	Timestamp   time.Time `json:"ts"` // TIME INDEX
}

// VehicleTableName holds the table name used when writing vehicle state to
// GreptimeDB. It defaults to "v2x_vehicle_state" but can be overridden via
// the GREPTIMEDB_TABLE environment variable.
var VehicleTableName = envOr("GREPTIMEDB_TABLE", "v2x_vehicle_state")

// MessageTableName and NegotiationTableName follow the same pattern.
var (
	MessageTableName     = envOr("MESSAGE_TABLE", "v2x_messages")
	NegotiationTableName = envOr("NEGOTIATION_TABLE", "v2x_negotiations")
)

func envOr(key, def string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	return def
}

func (VehicleRow) TableName() string     { return VehicleTableName }
func (MessageRow) TableName() string     { return MessageTableName }
func (NegotiationRow) TableName() string { return NegotiationTableName }
