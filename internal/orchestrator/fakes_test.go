package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"v2x-sim/internal/geo"
	"v2x-sim/internal/logging"
	"v2x-sim/internal/message"
	"v2x-sim/internal/physics"
	"v2x-sim/internal/telemetry"
	"v2x-sim/internal/transport"
)

// fakeEngine returns whatever states the test sets and records every
// control call as a short string.
type fakeEngine struct {
	mu      sync.Mutex
	now     float64
	step    float64
	states  []physics.VehicleState
	edges   map[string]string
	stops   map[string]bool
	calls   []string
	pending int
	stepErr error
	closed  bool
}

func newFakeEngine(states ...physics.VehicleState) *fakeEngine {
	return &fakeEngine{
		step:    0.1,
		states:  states,
		edges:   map[string]string{},
		stops:   map[string]bool{},
		pending: -1,
	}
}

func (f *fakeEngine) set(states ...physics.VehicleState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = states
}

func (f *fakeEngine) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Step(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stepErr != nil {
		return f.stepErr
	}
	f.now += f.step
	return nil
}

func (f *fakeEngine) Time() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeEngine) Vehicles() []physics.VehicleState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]physics.VehicleState(nil), f.states...)
}

func (f *fakeEngine) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending >= 0 {
		return f.pending
	}
	return len(f.states)
}

func (f *fakeEngine) ToGeo(p geo.Point) (geo.Position, error) {
	return geo.Position{Lat: 45 + p.Y/111320, Lon: 7 + p.X/111320}, nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEngine) SetSpeed(id string, speed float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("speed %s %.1f", id, speed)
	return nil
}

func (f *fakeEngine) SlowDown(id string, speed, duration float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("slowdown %s %.1f %.1f", id, speed, duration)
	return nil
}

func (f *fakeEngine) SetSpeedMode(id string, mode int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("mode %s %d", id, mode)
	return nil
}

func (f *fakeEngine) SetColor(id string, c physics.Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("color %s %d,%d,%d", id, c.R, c.G, c.B)
	return nil
}

func (f *fakeEngine) Edge(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.edges[id]; ok {
		return e, nil
	}
	return "e_" + id, nil
}

func (f *fakeEngine) HasPendingStops(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops[id], nil
}

func (f *fakeEngine) Resume(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("resume %s", id)
	return nil
}

// failingTransport rejects every publish.
type failingTransport struct {
	subscribed int
	closed     bool
}

func (f *failingTransport) Publish(int, message.Kind, []byte) error {
	return errors.New("broker unreachable")
}

func (f *failingTransport) Subscribe(int, string, transport.Handler) error {
	f.subscribed++
	return nil
}

func (f *failingTransport) Close() error {
	f.closed = true
	return nil
}

// collectingWriter keeps every row it receives.
type collectingWriter struct {
	mu           sync.Mutex
	messages     []telemetry.MessageRow
	negotiations []telemetry.NegotiationRow
	states       [][]telemetry.VehicleRow
}

func (w *collectingWriter) WriteMessage(r telemetry.MessageRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, r)
	return nil
}

func (w *collectingWriter) WriteNegotiation(r telemetry.NegotiationRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.negotiations = append(w.negotiations, r)
	return nil
}

func (w *collectingWriter) WriteStates(rows []telemetry.VehicleRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states = append(w.states, rows)
	return nil
}

func (w *collectingWriter) events(event string) []telemetry.NegotiationRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []telemetry.NegotiationRow
	for _, r := range w.negotiations {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

func (w *collectingWriter) kind(kind message.Kind) []telemetry.MessageRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []telemetry.MessageRow
	for _, r := range w.messages {
		if r.Kind == string(kind) {
			out = append(out, r)
		}
	}
	return out
}

func testStations() []transport.Station {
	return []transport.Station{
		{ID: 0, Host: "192.168.98.10", Type: "rsu", Name: "RSU_Central"},
		{ID: 1, Host: "192.168.98.20", Type: "obu", Name: "OBU_1"},
		{ID: 2, Host: "192.168.98.30", Type: "obu", Name: "OBU_2"},
	}
}

type harness struct {
	o      *Orchestrator
	engine *fakeEngine
	bus    *transport.Loopback
	out    *collectingWriter
}

func newHarness(t *testing.T, s Settings, states ...physics.VehicleState) *harness {
	t.Helper()
	engine := newFakeEngine(states...)
	bus := transport.NewLoopback(transport.NewDirectory(testStations(), logging.Discard()), nil)
	out := &collectingWriter{}
	o, err := New(s, Options{
		Engine:    engine,
		Transport: bus,
		Writer:    out,
		Logger:    logging.Discard(),
		RunID:     "test-run",
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return &harness{o: o, engine: engine, bus: bus, out: out}
}

func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.o.Tick(context.Background()); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
}

func (h *harness) published(kind message.Kind) []transport.Published {
	var out []transport.Published
	for _, p := range h.bus.Sent() {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// vehicleAt places a vehicle straight north of the reference RSU.
func vehicleAt(id string, distance float64, signals int) physics.VehicleState {
	return physics.VehicleState{ID: id, X: 500, Y: 1500 + distance, Speed: 10, Angle: 180, Signals: signals}
}
