package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"v2x-sim/internal/logging"
	"v2x-sim/internal/orchestrator"
	"v2x-sim/internal/sink"
	"v2x-sim/internal/telemetry"
)

type staticStatus orchestrator.Status

func (s staticStatus) Status() orchestrator.Status { return orchestrator.Status(s) }

func testStatus() staticStatus {
	return staticStatus{
		Mode:    orchestrator.ModeV2X,
		SimTime: 12.5,
		Ticks:   125,
		Vehicles: []orchestrator.VehicleStatus{
			{ID: "1", StationID: 1, Speed: 9.5, LeftTurn: true, Controlled: true, LastManoeuvre: 10},
		},
		RSUs: []orchestrator.RSUStatus{{
			StationID: 0,
			Name:      "RSU_Central",
			X:         500,
			Y:         1500,
			Session:   &orchestrator.SessionStatus{ManoeuvreID: 10, Strategies: map[string]string{"1": "stayInLane"}},
		}},
		Sent: map[string]int{"cam": 4, "mcm_request": 1},
	}
}

func newTestServer() *Server {
	return NewServer(testStatus(), []sink.Setting{{Name: "Scenario", Value: "intersection"}}, logging.Discard())
}

func TestHandleStatus(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status OK, got %v", resp.StatusCode)
	}
	var st orchestrator.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if st.Ticks != 125 || len(st.Vehicles) != 1 || st.Sent["mcm_request"] != 1 {
		t.Errorf("unexpected status %+v", st)
	}
	if st.RSUs[0].Session == nil || st.RSUs[0].Session.Strategies["1"] != "stayInLane" {
		t.Errorf("session missing from status: %+v", st.RSUs[0])
	}
}

func TestHandleIndex(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"RSU_Central", "intersection", "#10", "1=stayInLane"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	server := newTestServer()
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/launch", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %v", w.Code)
	}
}

func TestWebsocketReceivesJournal(t *testing.T) {
	server := newTestServer()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for server.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := server.WriteNegotiation(telemetry.NegotiationRow{Event: telemetry.EventConflict, ManoeuvreID: 10, VehicleID: "1"}); err != nil {
		t.Fatalf("write negotiation: %v", err)
	}
	if err := server.WriteMessage(telemetry.MessageRow{Kind: "mcm_request", StationID: 0}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rec telemetry.Record
	if err := conn.ReadJSON(&rec); err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Type != telemetry.RecordNegotiation || rec.Negotiation == nil || rec.Negotiation.ManoeuvreID != 10 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := conn.ReadJSON(&rec); err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Type != telemetry.RecordMessage || rec.Message == nil || rec.Message.Kind != "mcm_request" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	server := newTestServer()
	if err := server.WriteMessage(telemetry.MessageRow{Kind: "cam"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
