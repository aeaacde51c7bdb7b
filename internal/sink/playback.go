package sink

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"v2x-sim/internal/telemetry"
)

// ReplayLog replays journal records from r to writer. A speed >0 accelerates playback.
// If speed <= 0, no artificial delay is inserted. Vehicle records are forwarded
// only when writer implements StateWriter.
func ReplayLog(r io.Reader, writer Writer, speed float64) error {
	dec := json.NewDecoder(r)
	sw, _ := writer.(StateWriter)
	var prev time.Time
	for {
		var rec telemetry.Record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := rec.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		var err error
		switch {
		case rec.Type == telemetry.RecordMessage && rec.Message != nil:
			err = writer.WriteMessage(*rec.Message)
		case rec.Type == telemetry.RecordNegotiation && rec.Negotiation != nil:
			err = writer.WriteNegotiation(*rec.Negotiation)
		case rec.Type == telemetry.RecordVehicles:
			if sw != nil {
				err = sw.WriteStates(rec.Vehicles)
			}
		default:
			slog.Debug("skipping journal record", "type", rec.Type)
		}
		if err != nil {
			return err
		}
		prev = rec.Timestamp
	}
}

// ReplayLogFile opens a file and replays its journal records.
func ReplayLogFile(path string, writer Writer, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}
