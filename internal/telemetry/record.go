package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Record types written to the event journal.
const (
	RecordVehicles    = "vehicles"
	RecordMessage     = "message"
	RecordNegotiation = "negotiation"
)

// Record is one line of the JSONL event journal.
type Record struct {
	Type        string          `json:"type"`
	Timestamp   time.Time       `json:"ts"`
	Vehicles    []VehicleRow    `json:"vehicles,omitempty"`
	Message     *MessageRow     `json:"message,omitempty"`
	Negotiation *NegotiationRow `json:"negotiation,omitempty"`
}

// Generator stamps rows with the run id and the wall-clock time.
type Generator struct {
	RunID string
	Now   func() time.Time
}

// NewGenerator creates a generator for a run. An empty run id gets a fresh UUID.
func NewGenerator(runID string) *Generator {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Generator{RunID: runID, Now: func() time.Time { return time.Now().UTC() }}
}

// Vehicle completes a vehicle row.
func (g *Generator) Vehicle(row VehicleRow) VehicleRow {
	row.RunID = g.RunID
	row.Timestamp = g.Now()
	return row
}

// Message completes a message row.
func (g *Generator) Message(row MessageRow) MessageRow {
	row.RunID = g.RunID
	row.Timestamp = g.Now()
	return row
}

// Negotiation completes a negotiation row.
func (g *Generator) Negotiation(row NegotiationRow) NegotiationRow {
	row.RunID = g.RunID
	row.Timestamp = g.Now()
	return row
}
