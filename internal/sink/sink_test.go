package sink

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"v2x-sim/internal/telemetry"
)

var ts0 = time.Unix(0, 0).UTC()

type collectWriter struct {
	messages     []telemetry.MessageRow
	negotiations []telemetry.NegotiationRow
	states       [][]telemetry.VehicleRow
	err          error
	closed       bool
}

func (c *collectWriter) WriteMessage(r telemetry.MessageRow) error {
	c.messages = append(c.messages, r)
	return c.err
}

func (c *collectWriter) WriteNegotiation(r telemetry.NegotiationRow) error {
	c.negotiations = append(c.negotiations, r)
	return c.err
}

func (c *collectWriter) WriteStates(rows []telemetry.VehicleRow) error {
	c.states = append(c.states, rows)
	return c.err
}

func (c *collectWriter) Close() error {
	c.closed = true
	return nil
}

// plainWriter does not accept vehicle state.
type plainWriter struct{ n int }

func (p *plainWriter) WriteMessage(telemetry.MessageRow) error         { p.n++; return nil }
func (p *plainWriter) WriteNegotiation(telemetry.NegotiationRow) error { p.n++; return nil }

func TestStdoutWriterJSONFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &StdoutWriter{out: buf, showCAM: true}
	if err := w.WriteMessage(telemetry.MessageRow{Kind: "cam", StationID: 1, Timestamp: ts0}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
}

func TestStdoutWriterHidesCAMByDefault(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &StdoutWriter{out: buf}
	_ = w.WriteMessage(telemetry.MessageRow{Kind: "cam"})
	if buf.Len() != 0 {
		t.Fatalf("expected CAM rows to be hidden, got %q", buf.String())
	}
	_ = w.WriteMessage(telemetry.MessageRow{Kind: "mcm_request"})
	if buf.Len() == 0 {
		t.Fatalf("expected MCM rows to be printed")
	}
}

func TestStdoutWriterColorized(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &StdoutWriter{out: buf, colorize: true, settings: []Setting{{Name: "Mode", Value: "V2X"}}}
	row := telemetry.NegotiationRow{Event: telemetry.EventConflict, StationID: 0, VehicleID: "2", ManoeuvreID: 10, Strategy: "stop", Timestamp: ts0}
	if err := w.WriteNegotiation(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Simulation Configuration:") || !strings.Contains(output, "Mode:") {
		t.Fatalf("overview not printed: %q", output)
	}
	if !strings.Contains(output, "\x1b[") || !strings.Contains(output, "manoeuvre=10") {
		t.Fatalf("expected colourised negotiation line: %q", output)
	}

	buf.Reset()
	if err := w.WriteMessage(telemetry.MessageRow{Kind: "mcm_request", Delivered: false}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if strings.Contains(buf.String(), "Simulation Configuration:") {
		t.Fatalf("overview printed more than once")
	}
	if !strings.Contains(buf.String(), "dropped") {
		t.Fatalf("expected dropped marker: %q", buf.String())
	}
}

func TestFileWriterAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	fw, err := NewFileWriter(path, true)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}
	if err := fw.WriteStates([]telemetry.VehicleRow{{VehicleID: "1", Timestamp: ts0}}); err != nil {
		t.Fatalf("states: %v", err)
	}
	if err := fw.WriteMessage(telemetry.MessageRow{Kind: "mcm_request", ManoeuvreID: 10, Timestamp: ts0}); err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := fw.WriteNegotiation(telemetry.NegotiationRow{Event: telemetry.EventRestored, VehicleID: "2", Timestamp: ts0.Add(time.Millisecond)}); err != nil {
		t.Fatalf("negotiation: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cw := &collectWriter{}
	if err := ReplayLogFile(path, cw, 0); err != nil {
		t.Fatalf("ReplayLogFile: %v", err)
	}
	if len(cw.states) != 1 || len(cw.messages) != 1 || len(cw.negotiations) != 1 {
		t.Fatalf("unexpected replay %+v", cw)
	}
	if cw.messages[0].ManoeuvreID != 10 || cw.negotiations[0].VehicleID != "2" {
		t.Fatalf("replayed rows mismatch: %+v %+v", cw.messages[0], cw.negotiations[0])
	}

	pw := &plainWriter{}
	if err := ReplayLogFile(path, pw, 0); err != nil {
		t.Fatalf("replay into plain writer: %v", err)
	}
	if pw.n != 2 {
		t.Fatalf("expected vehicle records to be skipped, got %d writes", pw.n)
	}
}

func TestFileWriterSkipsStatesWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	fw, err := NewFileWriter(path, false)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}
	_ = fw.WriteStates([]telemetry.VehicleRow{{VehicleID: "1"}})
	_ = fw.Close()
	cw := &collectWriter{}
	if err := ReplayLogFile(path, cw, 0); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(cw.states) != 0 {
		t.Fatalf("expected no state records")
	}
}

func TestMultiWriterFanOut(t *testing.T) {
	a := &collectWriter{}
	b := &collectWriter{err: errors.New("boom")}
	p := &plainWriter{}
	mw := NewMultiWriter(a, b)
	mw.Add(p)
	if mw.Len() != 3 {
		t.Fatalf("expected 3 writers")
	}
	if err := mw.WriteMessage(telemetry.MessageRow{Kind: "cam"}); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(a.messages) != 1 || len(b.messages) != 1 || p.n != 1 {
		t.Fatalf("failing writer stopped delivery")
	}
	if err := mw.WriteMessages([]telemetry.MessageRow{{}, {}}); err == nil {
		t.Fatalf("expected error from batch")
	}
	if len(a.messages) != 3 || p.n != 3 {
		t.Fatalf("batch not delivered: %d %d", len(a.messages), p.n)
	}
	_ = mw.WriteStates([]telemetry.VehicleRow{{VehicleID: "1"}})
	if len(a.states) != 1 {
		t.Fatalf("state not forwarded")
	}
	_ = mw.Close()
	if !a.closed || !b.closed {
		t.Fatalf("closers not closed")
	}
}

type mockGreptimeClient struct {
	tables []*table.Table
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterMessages(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, messageTable: "v2x_messages"}
	rows := []telemetry.MessageRow{{RunID: "r1", StationID: 0, Kind: "mcm_request", ManoeuvreID: 10, Delivered: true, Timestamp: ts0}}
	if err := w.WriteMessages(rows); err != nil {
		t.Fatalf("WriteMessages: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatalf("expected table to be captured")
	}
	got := m.tables[0].GetRows()
	if len(got.Schema) != 12 {
		t.Fatalf("unexpected schema length: %d", len(got.Schema))
	}
	if got.Schema[0].SemanticType != gpb.SemanticType_TAG || got.Schema[3].SemanticType != gpb.SemanticType_FIELD {
		t.Fatalf("unexpected semantic types: %v %v", got.Schema[0].SemanticType, got.Schema[3].SemanticType)
	}
	if v := got.Rows[0].Values[0].GetStringValue(); v != "r1" {
		t.Fatalf("run_id = %s, want r1", v)
	}
	if v := got.Rows[0].Values[5].GetI64Value(); v != 10 {
		t.Fatalf("manoeuvre_id = %d, want 10", v)
	}
	if err := w.WriteMessages(nil); err != nil || len(m.tables) != 1 {
		t.Fatalf("empty batch should be a no-op")
	}
}

func TestGreptimeWriterNegotiationAndStates(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, negotiationTable: "neg", vehicleTable: "veh"}
	if err := w.WriteNegotiation(telemetry.NegotiationRow{RunID: "r", Event: telemetry.EventConflict, Timestamp: ts0}); err != nil {
		t.Fatalf("WriteNegotiation: %v", err)
	}
	if err := w.WriteStates([]telemetry.VehicleRow{{RunID: "r", VehicleID: "1", Speed: 12, LeftTurn: true, Timestamp: ts0}}); err != nil {
		t.Fatalf("WriteStates: %v", err)
	}
	if len(m.tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(m.tables))
	}
	if v := m.tables[0].GetRows().Rows[0].Values[1].GetStringValue(); v != telemetry.EventConflict {
		t.Fatalf("event = %s", v)
	}
	vals := m.tables[1].GetRows().Rows[0].Values
	if vals[7].GetF64Value() != 12 || !vals[10].GetBoolValue() {
		t.Fatalf("unexpected vehicle values %v", vals)
	}
}

func TestBoltWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	w, err := NewBoltWriter(path, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok, err := w.LastNegotiation(); ok || err != nil {
		t.Fatalf("expected empty archive, ok=%v err=%v", ok, err)
	}
	_ = w.WriteMessage(telemetry.MessageRow{Kind: "cam", StationID: 1})
	_ = w.WriteMessages([]telemetry.MessageRow{{Kind: "mcm_request"}, {Kind: "mcm_response"}})
	_ = w.WriteNegotiation(telemetry.NegotiationRow{Event: telemetry.EventConflict})
	_ = w.WriteNegotiation(telemetry.NegotiationRow{Event: telemetry.EventRestored})
	if err := w.WriteStates([]telemetry.VehicleRow{{VehicleID: "1"}}); err != nil {
		t.Fatalf("states: %v", err)
	}
	msgs, err := w.Messages()
	if err != nil || len(msgs) != 3 || msgs[2].Kind != "mcm_response" {
		t.Fatalf("unexpected messages %+v %v", msgs, err)
	}
	last, ok, err := w.LastNegotiation()
	if err != nil || !ok || last.Event != telemetry.EventRestored {
		t.Fatalf("unexpected last negotiation %+v %v %v", last, ok, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBoltWriter(path, false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	msgs, _ = reopened.Messages()
	if len(msgs) != 3 {
		t.Fatalf("archive not persisted, got %d", len(msgs))
	}
}
