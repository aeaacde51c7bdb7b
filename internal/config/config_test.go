package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"v2x-sim/internal/message"
	"v2x-sim/internal/orchestrator"
	"v2x-sim/internal/physics"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v2x.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadReferenceConfig(t *testing.T) {
	cfg, err := Load("../../config/v2x.yaml", "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.Stations) != 3 || cfg.Stations[2].IP != "192.168.98.30" {
		t.Errorf("unexpected stations: %+v", cfg.Stations)
	}
	if cfg.Simulation.RealTimeDelay != 10*time.Millisecond {
		t.Errorf("unexpected delay %v", cfg.Simulation.RealTimeDelay)
	}
	if cfg.VehicleDefaults.Colors["2"] != physics.ColorGreen {
		t.Errorf("unexpected colour for vehicle 2: %+v", cfg.VehicleDefaults.Colors["2"])
	}
	if cfg.Logging.ShowCAMSends {
		t.Error("CAM sends must be hidden by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load("testdata/loopback.yaml", "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Transport.Backend != BackendLoopback || cfg.Transport.Port != 1883 {
		t.Errorf("unexpected transport %+v", cfg.Transport)
	}
	if cfg.Physics.Scenario != "free-flow" {
		t.Errorf("unexpected scenario %q", cfg.Physics.Scenario)
	}
	if !cfg.Logging.ShowCAMSends {
		t.Error("show_cam_sends not applied")
	}

	s, err := cfg.OrchestratorSettings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if s.Mode != orchestrator.ModeBaseline || s.MaxTime != 90 {
		t.Errorf("unexpected run settings %+v", s)
	}
	if s.ListenTopic != "custom/mcm" {
		t.Errorf("unexpected listen topic %q", s.ListenTopic)
	}
	if len(s.RSUs) != 1 || len(s.RSUs[0].Kinds) != 1 || s.RSUs[0].Kinds[0] != message.KindCAM {
		t.Errorf("unexpected rsus %+v", s.RSUs)
	}
	if s.RSUs[0].FirstManoeuvreID != 10 || s.RSUs[0].RequestCost != 50 {
		t.Errorf("mcm defaults not carried to the rsu: %+v", s.RSUs[0])
	}
	if len(s.Controlled) != 1 || s.Controlled[0] != 7 {
		t.Errorf("unexpected controlled set %v", s.Controlled)
	}
	if s.Reaction.SafetySpeed != 4.0 || s.Reaction.PrioritySpeedMode != 55 {
		t.Errorf("unexpected reaction %+v", s.Reaction)
	}
}

func TestTopics(t *testing.T) {
	cfg := Default()
	cfg.Transport.Topics = map[string]string{"mcm": "a/mcm", "mcm_response": "a/resp"}
	topics := cfg.Topics()
	if got, _ := topics.Topic(message.KindCAM); got != "vanetza/in/cam_full" {
		t.Errorf("cam topic %q", got)
	}
	if got, _ := topics.Topic(message.KindMCMRequest); got != "a/mcm" {
		t.Errorf("request topic %q", got)
	}
	if got, _ := topics.Topic(message.KindMCMResponse); got != "a/resp" {
		t.Errorf("response topic %q", got)
	}
}

func TestTransportStations(t *testing.T) {
	st := Default().TransportStations()
	if len(st) != 3 || st[0].Host != "192.168.98.10" || st[0].Type != "rsu" {
		t.Fatalf("unexpected stations %+v", st)
	}
}

func TestSchemaRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"mode":    "simulation:\n  mode: HYBRID\n",
		"kind":    "vehicle_defaults:\n  enabled_messages: [cam, denm]\n",
		"port":    "transport:\n  port: 70000\n",
		"unknown": "sumo:\n  gui: true\n",
		"delay":   "simulation:\n  real_time_delay: soon\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content), ""); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Stations = append(cfg.Stations, Station{ID: 1, IP: "10.0.0.9"})
	cfg.Physics.Backend = "carla"
	cfg.CAMTrigger.TMin = 2
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"duplicate station ids", "unknown physics backend", "cam_trigger"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestValidateWithCueFile(t *testing.T) {
	schema := filepath.Join(t.TempDir(), "schema.cue")
	if err := os.WriteFile(schema, []byte("simulation: mode: \"V2X\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateWithCue(writeConfig(t, "simulation:\n  mode: V2X\n"), schema); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
	if err := ValidateWithCue(writeConfig(t, "simulation:\n  mode: BASELINE\n"), schema); err == nil {
		t.Fatal("expected conflict with schema")
	}
}
