// Package sink delivers the simulator's event journal to its outputs.
package sink

import "v2x-sim/internal/telemetry"

// Writer receives message and negotiation events.
type Writer interface {
	WriteMessage(telemetry.MessageRow) error
	WriteNegotiation(telemetry.NegotiationRow) error
}

// StateWriter is implemented by writers that also record per-tick vehicle state.
type StateWriter interface {
	WriteStates([]telemetry.VehicleRow) error
}

// batchMessageWriter can write several messages at once.
type batchMessageWriter interface {
	WriteMessages([]telemetry.MessageRow) error
}

// Setting is one line of the run overview printed by interactive writers.
type Setting struct {
	Name  string
	Value string
}
