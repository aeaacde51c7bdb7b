package message

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"v2x-sim/internal/geo"
)

func encode(t *testing.T, kind Kind, a Attributes) map[string]any {
	t.Helper()
	data, err := NewRegistry().Encode(kind, 1234, a)
	if err != nil {
		t.Fatalf("encode %s: %v", kind, err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func dig(t *testing.T, m map[string]any, path ...string) any {
	t.Helper()
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			t.Fatalf("path %v: %s is not an object", path, p)
		}
		cur, ok = obj[p]
		if !ok {
			t.Fatalf("path %v: missing %s", path, p)
		}
	}
	return cur
}

func TestCAMRoadsideUnit(t *testing.T) {
	out := encode(t, KindCAM, Attributes{
		StationID:   100,
		StationType: CAMStationTypeRoadSideUnit,
		Position:    &geo.Position{Lat: 45.1, Lon: 7.6},
	})
	if got := dig(t, out, "generationDeltaTime"); got != float64(1234) {
		t.Fatalf("generationDeltaTime = %v", got)
	}
	hf := dig(t, out, "camParameters", "highFrequencyContainer").(map[string]any)
	if _, ok := hf["rsuContainerHighFrequency"]; !ok || len(hf) != 1 {
		t.Fatalf("expected only rsu container, got %v", hf)
	}
	params := dig(t, out, "camParameters").(map[string]any)
	if _, ok := params["lowFrequencyContainer"]; ok {
		t.Fatalf("rsu cam must not carry a low frequency container")
	}
	if got := dig(t, out, "camParameters", "basicContainer", "referencePosition", "positionConfidenceEllipse", "semiMajorAxisOrientation"); got != float64(3601) {
		t.Fatalf("orientation = %v", got)
	}
	if got := dig(t, out, "camParameters", "basicContainer", "referencePosition", "altitude", "altitudeValue"); got != float64(800001) {
		t.Fatalf("altitude = %v", got)
	}
}

func TestCAMVehicleAccelerationControl(t *testing.T) {
	cases := []struct {
		accel      float64
		brake, gas bool
	}{
		{-1.0, true, false},
		{-0.5, false, false},
		{0, false, false},
		{0.3, false, true},
	}
	for _, c := range cases {
		out := encode(t, KindCAM, Attributes{
			StationType: CAMStationTypePassengerCar,
			Kinematics:  &Kinematics{Speed: 10, Heading: 90, Acceleration: c.accel, Length: 8, Width: 2, LeftTurnSignal: true},
		})
		ac := dig(t, out, "camParameters", "highFrequencyContainer", "basicVehicleContainerHighFrequency", "accelerationControl").(map[string]any)
		if ac["brakePedalEngaged"] != c.brake || ac["gasPedalEngaged"] != c.gas {
			t.Fatalf("accel %v: got brake=%v gas=%v", c.accel, ac["brakePedalEngaged"], ac["gasPedalEngaged"])
		}
		lights := dig(t, out, "camParameters", "lowFrequencyContainer", "basicVehicleContainerLowFrequency", "exteriorLights").(map[string]any)
		if lights["leftTurnSignalOn"] != true || lights["rightTurnSignalOn"] != false || lights["lowBeamHeadlightsOn"] != true {
			t.Fatalf("unexpected lights %v", lights)
		}
	}
}

func TestCAMDriveDirection(t *testing.T) {
	out := encode(t, KindCAM, Attributes{StationType: CAMStationTypePassengerCar, Kinematics: &Kinematics{Speed: -1}})
	if got := dig(t, out, "camParameters", "highFrequencyContainer", "basicVehicleContainerHighFrequency", "driveDirection"); got != float64(1) {
		t.Fatalf("driveDirection = %v", got)
	}
}

func TestRequestShape(t *testing.T) {
	out := encode(t, KindMCMRequest, Attributes{
		StationID:   100,
		StationType: MCMStationTypeRSU,
		ManoeuvreID: 10,
		Cost:        IntPtr(50),
		Executants: []Executant{
			{StationID: 1, Strategy: StrategyStayInLane},
			{StationID: 2, Strategy: StrategyStop},
		},
	})
	if got := dig(t, out, "basicContainer", "mcmType"); got != float64(MCMTypeRequest) {
		t.Fatalf("mcmType = %v", got)
	}
	if got := dig(t, out, "basicContainer", "rational", "manoeuvreCooperationCost"); got != float64(50) {
		t.Fatalf("cost = %v", got)
	}
	if got := dig(t, out, "basicContainer", "position", "latitude"); got != float64(RSULatitudeUnavailable) {
		t.Fatalf("rsu latitude default = %v", got)
	}
	advised := dig(t, out, "mcmContainer", "advisedManoeuvreContainer").([]any)
	if len(advised) != 2 {
		t.Fatalf("expected 2 executants, got %d", len(advised))
	}
	first := advised[0].(map[string]any)
	if first["executantID"] != float64(1) {
		t.Fatalf("executantID = %v", first["executantID"])
	}
	change := first["currentStateAdvisedChange"].(map[string]any)
	if v, ok := change["stayInLane"]; !ok || v != nil {
		t.Fatalf("expected stayInLane: null, got %v", change)
	}
	subs := first["submaneuvres"].([]any)
	if len(subs) != 1 || subs[0].(map[string]any)["submanoeuvreId"] != float64(1) {
		t.Fatalf("expected default submanoeuvre, got %v", subs)
	}
}

func TestRationalOnlyWithCost(t *testing.T) {
	out := encode(t, KindMCMResponse, Attributes{StationID: 1, StationType: MCMStationTypeOBU})
	bc := dig(t, out, "basicContainer").(map[string]any)
	if _, ok := bc["rational"]; ok {
		t.Fatalf("rational must be absent without cost")
	}
	out = encode(t, KindMCMResponse, Attributes{StationID: 1, StationType: MCMStationTypeOBU, Cost: IntPtr(0)})
	if got := dig(t, out, "basicContainer", "rational", "manoeuvreCooperationCost"); got != float64(0) {
		t.Fatalf("cost = %v", got)
	}
	resp := dig(t, out, "mcmContainer", "responseContainer").(map[string]any)
	if resp["manouevreResponse"] != float64(ResponseAccept) {
		t.Fatalf("response = %v", resp["manouevreResponse"])
	}
	if subs, ok := resp["submaneuvres"].([]any); !ok || len(subs) != 0 {
		t.Fatalf("expected empty submaneuvres list, got %v", resp["submaneuvres"])
	}
}

func TestTermination(t *testing.T) {
	out := encode(t, KindMCMTermination, Attributes{StationID: 100, StationType: MCMStationTypeRSU, ManoeuvreID: 10})
	if got := dig(t, out, "basicContainer", "executionStatus"); got != float64(ExecCompleted) {
		t.Fatalf("executionStatus = %v", got)
	}
	if got := dig(t, out, "mcmContainer", "terminationContainer").(map[string]any); len(got) != 0 {
		t.Fatalf("expected empty termination container, got %v", got)
	}
}

func TestIntentDefaults(t *testing.T) {
	out := encode(t, KindMCMIntent, Attributes{StationID: 3, StationType: MCMStationTypeOBU})
	state := dig(t, out, "mcmContainer", "vehicleManoeuvreContainer", "vehicleCurrentStateContainer").(map[string]any)
	if got := dig(t, state, "vehicleSpeed", "speedValue"); got != float64(SpeedUnavailable) {
		t.Fatalf("speed = %v", got)
	}
	if got := dig(t, state, "vehicleSize", "vehicleLenth", "vehicleLengthValue"); got != float64(LengthUnavailable) {
		t.Fatalf("length = %v", got)
	}
	if _, ok := dig(t, state, "manoeuvreOverallStrategy").(map[string]any)[StrategyDriveStraight]; !ok {
		t.Fatalf("expected driveStraight default")
	}
}

func TestTollingLaneStrategy(t *testing.T) {
	data, err := json.Marshal(Strategy{Name: StrategyTakeTollingLane})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"takeTollingLane":1}` {
		t.Fatalf("got %s", data)
	}
	var s Strategy
	if err := json.Unmarshal([]byte(`{"takeTollingLane":4}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Name != StrategyTakeTollingLane || s.Lane != 4 {
		t.Fatalf("got %+v", s)
	}
	for _, raw := range []string{`{"a":null,"b":null}`, `{}`, `"stop"`, `null`} {
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			t.Fatalf("%s: unexpected error %v", raw, err)
		}
		if s.Name != StrategyUndefined || s.Lane != 0 {
			t.Fatalf("%s: expected undefined strategy, got %+v", raw, s)
		}
	}
}

func TestDecodeRequestWithBadAdvisedChange(t *testing.T) {
	data, err := NewRegistry().Encode(KindMCMRequest, 7, Attributes{
		StationID:   100,
		StationType: MCMStationTypeRSU,
		ManoeuvreID: 12,
		Executants: []Executant{
			{StationID: 1, Strategy: StrategyStayInLane},
			{StationID: 2, Strategy: StrategyStop},
		},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	good := `"currentStateAdvisedChange":{"stayInLane":null}`
	if !strings.Contains(string(data), good) {
		t.Fatalf("unexpected encoding %s", data)
	}
	bad := strings.Replace(string(data), good, `"currentStateAdvisedChange":{"stayInLane":null,"stop":null}`, 1)

	m, err := DecodeMCM([]byte(bad))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e, ok := m.Executant(1); !ok || e.CurrentStateAdvisedChange.Name != StrategyUndefined {
		t.Fatalf("expected undefined strategy for station 1, got %+v", e)
	}
	if e, ok := m.Executant(2); !ok || e.CurrentStateAdvisedChange.Name != StrategyStop {
		t.Fatalf("expected stop for station 2, got %+v", e)
	}
}

func TestUnknownKind(t *testing.T) {
	_, err := NewRegistry().Encode(Kind("denm"), 0, Attributes{})
	if !errors.Is(err, ErrNoCodec) {
		t.Fatalf("expected ErrNoCodec, got %v", err)
	}
	r := NewRegistryWith(map[Kind]BuildFunc{KindCAM: BuildCAM})
	if r.Has(KindMCMRequest) {
		t.Fatalf("registry must only hold what it was given")
	}
}

func TestDecodeRequest(t *testing.T) {
	data, err := NewRegistry().Encode(KindMCMRequest, 7, Attributes{
		StationID:   100,
		StationType: MCMStationTypeRSU,
		ManoeuvreID: 11,
		Executants:  []Executant{{StationID: 2, Strategy: StrategyStop}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m, err := DecodeMCM(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.BasicContainer.ManoeuvreID != 11 || m.BasicContainer.MCMType != MCMTypeRequest {
		t.Fatalf("unexpected basic container %+v", m.BasicContainer)
	}
	e, ok := m.Executant(2)
	if !ok || e.CurrentStateAdvisedChange == nil || e.CurrentStateAdvisedChange.Name != StrategyStop {
		t.Fatalf("unexpected executant %+v", e)
	}
	if _, ok := m.Executant(1); ok {
		t.Fatalf("station 1 is not an executant")
	}
	if _, err := DecodeMCM([]byte("{not json")); err == nil || !strings.Contains(err.Error(), "decode mcm") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" MCM_Request ")
	if err != nil || k != KindMCMRequest {
		t.Fatalf("ParseKind = %v, %v", k, err)
	}
	if !k.IsMCM() || KindCAM.IsMCM() {
		t.Fatalf("IsMCM mismatch")
	}
	if _, err := ParseKind("denm"); err == nil {
		t.Fatalf("expected error")
	}
}
