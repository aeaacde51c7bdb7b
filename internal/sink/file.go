package sink

import (
	"encoding/json"
	"os"
	"sync"

	"v2x-sim/internal/telemetry"
)

// FileWriter appends the event journal to a JSONL file.
type FileWriter struct {
	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	states bool
}

// NewFileWriter creates the journal at path. Vehicle state is journaled
// only when states is set.
func NewFileWriter(path string, states bool) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{f: f, enc: json.NewEncoder(f), states: states}, nil
}

func (f *FileWriter) encode(rec telemetry.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc.Encode(rec)
}

// WriteMessage journals a message row.
func (f *FileWriter) WriteMessage(row telemetry.MessageRow) error {
	return f.encode(telemetry.Record{Type: telemetry.RecordMessage, Timestamp: row.Timestamp, Message: &row})
}

// WriteNegotiation journals a negotiation row.
func (f *FileWriter) WriteNegotiation(row telemetry.NegotiationRow) error {
	return f.encode(telemetry.Record{Type: telemetry.RecordNegotiation, Timestamp: row.Timestamp, Negotiation: &row})
}

// WriteStates journals one tick of vehicle state, if enabled.
func (f *FileWriter) WriteStates(rows []telemetry.VehicleRow) error {
	if !f.states || len(rows) == 0 {
		return nil
	}
	return f.encode(telemetry.Record{Type: telemetry.RecordVehicles, Timestamp: rows[0].Timestamp, Vehicles: rows})
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}
