// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"v2x-sim/internal/entity"
	"v2x-sim/internal/geo"
	"v2x-sim/internal/message"
	"v2x-sim/internal/orchestrator"
	"v2x-sim/internal/physics"
	"v2x-sim/internal/scenario"
	"v2x-sim/internal/transport"
	"v2x-sim/internal/trigger"
)

// Transport backends.
const (
	BackendMQTT     = "mqtt"
	BackendNATS     = "nats"
	BackendLoopback = "loopback"
)

// Physics backends.
const (
	PhysicsScripted = "scripted"
	PhysicsBridge   = "bridge"
)

// Simulation holds run-level settings.
type Simulation struct {
	Mode string `yaml:"mode"`
	// StepLength overrides the scenario step length when positive.
	StepLength    float64       `yaml:"step_length"`
	RealTimeDelay time.Duration `yaml:"real_time_delay"`
	MaxTime       float64       `yaml:"max_time"`
	// Seed overrides the background traffic seed when non-zero.
	Seed int64 `yaml:"seed"`
}

// Transport selects and tunes the broker connection.
type Transport struct {
	Backend       string            `yaml:"backend"`
	Port          int               `yaml:"port"`
	KeepAlive     int               `yaml:"keepalive"`
	InboxSize     int               `yaml:"inbox_size"`
	ListenStation int               `yaml:"listen_station"`
	Topics        map[string]string `yaml:"topics"`
}

// Station maps a station id to the host of its broker.
type Station struct {
	ID   int    `yaml:"id"`
	IP   string `yaml:"ip"`
	Type string `yaml:"type"`
	Name string `yaml:"name"`
}

// Point is a planar position.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// RSU describes a roadside unit.
type RSU struct {
	ID                int      `yaml:"id"`
	Name              string   `yaml:"name"`
	Position          Point    `yaml:"position"`
	BroadcastInterval float64  `yaml:"broadcast_interval"`
	EnabledMessages   []string `yaml:"enabled_messages"`
}

// VehicleDefaults apply to every vehicle registered from the physics engine.
type VehicleDefaults struct {
	Length          float64                  `yaml:"length"`
	Width           float64                  `yaml:"width"`
	StationType     int                      `yaml:"station_type"`
	EnabledMessages []string                 `yaml:"enabled_messages"`
	Color           physics.Color            `yaml:"color"`
	Colors          map[string]physics.Color `yaml:"colors"`
}

// CAMTrigger holds the ETSI generation parameters.
type CAMTrigger struct {
	TMin              float64 `yaml:"t_min"`
	TMax              float64 `yaml:"t_max"`
	NMax              int     `yaml:"n_max"`
	PositionThreshold float64 `yaml:"position_threshold"`
	SpeedThreshold    float64 `yaml:"speed_threshold"`
	HeadingThreshold  float64 `yaml:"heading_threshold"`
}

// MCM configures conflict detection and the vehicle reactions.
type MCM struct {
	DetectionRadius    float64       `yaml:"detection_radius"`
	Cooldown           float64       `yaml:"cooldown"`
	ControlledVehicles []int         `yaml:"controlled_vehicles"`
	FirstManoeuvreID   int           `yaml:"first_manoeuvre_id"`
	RequestCost        int           `yaml:"request_cost"`
	SafetySpeed        float64       `yaml:"safety_speed"`
	SlowdownDuration   float64       `yaml:"slowdown_duration"`
	PrioritySpeed      float64       `yaml:"priority_speed"`
	PrioritySpeedMode  int           `yaml:"priority_speed_mode"`
	StopColor          physics.Color `yaml:"stop_color"`
	PriorityColor      physics.Color `yaml:"priority_color"`
}

// Physics selects the traffic engine.
type Physics struct {
	Backend    string `yaml:"backend"`
	BridgeAddr string `yaml:"bridge_addr"`
	// Scenario is a built-in scenario name or a path to a scenario file.
	Scenario string `yaml:"scenario"`
}

// Logging configures the process logger and console output.
type Logging struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ShowCAMSends bool   `yaml:"show_cam_sends"`
}

// Config is the root configuration.
type Config struct {
	Simulation      Simulation      `yaml:"simulation"`
	Transport       Transport       `yaml:"transport"`
	Stations        []Station       `yaml:"stations"`
	RSUs            []RSU           `yaml:"rsus"`
	VehicleDefaults VehicleDefaults `yaml:"vehicle_defaults"`
	CAMTrigger      CAMTrigger      `yaml:"cam_trigger"`
	MCM             MCM             `yaml:"mcm"`
	Physics         Physics         `yaml:"physics"`
	Logging         Logging         `yaml:"logging"`
}

// Default returns the reference three-station intersection setup.
func Default() *Config {
	cam := trigger.DefaultCAMParams()
	return &Config{
		Simulation: Simulation{Mode: string(orchestrator.ModeV2X), RealTimeDelay: 10 * time.Millisecond},
		Transport: Transport{
			Backend:   BackendMQTT,
			Port:      1883,
			KeepAlive: 60,
			InboxSize: 256,
			Topics:    map[string]string{"cam": transport.TopicCAM, "mcm": transport.TopicMCM},
		},
		Stations: []Station{
			{ID: 0, IP: "192.168.98.10", Type: "rsu", Name: "RSU_Central"},
			{ID: 1, IP: "192.168.98.20", Type: "obu", Name: "OBU_1"},
			{ID: 2, IP: "192.168.98.30", Type: "obu", Name: "OBU_2"},
		},
		RSUs: []RSU{{
			ID:                0,
			Name:              "RSU_Central",
			Position:          Point{X: 500, Y: 1500},
			BroadcastInterval: 1.0,
			EnabledMessages:   []string{"cam", "mcm_request", "mcm_termination"},
		}},
		VehicleDefaults: VehicleDefaults{
			Length:          8,
			Width:           2,
			StationType:     message.CAMStationTypePassengerCar,
			EnabledMessages: []string{"cam", "mcm_response"},
			Color:           physics.ColorRed,
			Colors:          map[string]physics.Color{"2": physics.ColorGreen},
		},
		CAMTrigger: CAMTrigger{
			TMin:              cam.TMin,
			TMax:              cam.TMax,
			NMax:              cam.NMax,
			PositionThreshold: cam.PositionThreshold,
			SpeedThreshold:    cam.SpeedThreshold,
			HeadingThreshold:  cam.HeadingThreshold,
		},
		MCM: MCM{
			DetectionRadius:    100,
			Cooldown:           5.0,
			ControlledVehicles: []int{1, 2},
			FirstManoeuvreID:   10,
			RequestCost:        50,
			SafetySpeed:        4.0,
			SlowdownDuration:   1.0,
			PrioritySpeed:      14.0,
			PrioritySpeedMode:  physics.SpeedModeRelaxed,
			StopColor:          physics.ColorOrange,
			PriorityColor:      physics.ColorBlue,
		},
		Physics: Physics{
			Backend:    PhysicsScripted,
			BridgeAddr: "127.0.0.1:8813",
			Scenario:   scenario.DefaultName,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file over the defaults. When schemaPath is empty the
// embedded schema is used for validation.
func Load(configPath, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	schema := []byte(DefaultSchema)
	if schemaPath != "" {
		if schema, err = os.ReadFile(schemaPath); err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
	}
	if err := ValidateBytes(configPath, data, schema); err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and checks the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every semantic problem the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if _, err := orchestrator.ParseMode(c.Simulation.Mode); err != nil {
		errs = append(errs, err)
	}
	switch c.Transport.Backend {
	case BackendMQTT, BackendNATS, BackendLoopback:
	default:
		errs = append(errs, fmt.Errorf("unknown transport backend %q", c.Transport.Backend))
	}
	switch c.Physics.Backend {
	case PhysicsScripted:
		if c.Physics.Scenario == "" {
			errs = append(errs, errors.New("physics.scenario is required for the scripted backend"))
		}
	case PhysicsBridge:
		if c.Physics.BridgeAddr == "" {
			errs = append(errs, errors.New("physics.bridge_addr is required for the bridge backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown physics backend %q", c.Physics.Backend))
	}
	if dup := lo.FindDuplicates(lo.Map(c.Stations, func(s Station, _ int) int { return s.ID })); len(dup) > 0 {
		errs = append(errs, fmt.Errorf("duplicate station ids %v", dup))
	}
	if dup := lo.FindDuplicates(lo.Map(c.RSUs, func(r RSU, _ int) int { return r.ID })); len(dup) > 0 {
		errs = append(errs, fmt.Errorf("duplicate rsu ids %v", dup))
	}
	for _, r := range c.RSUs {
		if _, err := parseKinds(r.EnabledMessages); err != nil {
			errs = append(errs, fmt.Errorf("rsu %d: %w", r.ID, err))
		}
	}
	if _, err := parseKinds(c.VehicleDefaults.EnabledMessages); err != nil {
		errs = append(errs, fmt.Errorf("vehicle_defaults: %w", err))
	}
	if c.CAMTrigger.TMin <= 0 || c.CAMTrigger.TMax < c.CAMTrigger.TMin {
		errs = append(errs, fmt.Errorf("cam_trigger: need 0 < t_min <= t_max, got %v and %v", c.CAMTrigger.TMin, c.CAMTrigger.TMax))
	}
	if c.MCM.DetectionRadius <= 0 {
		errs = append(errs, errors.New("mcm.detection_radius must be positive"))
	}
	return errors.Join(errs...)
}

func parseKinds(names []string) ([]message.Kind, error) {
	kinds := make([]message.Kind, 0, len(names))
	for _, n := range names {
		k, err := message.ParseKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// OrchestratorSettings converts the configuration for the orchestrator.
func (c *Config) OrchestratorSettings() (orchestrator.Settings, error) {
	mode, err := orchestrator.ParseMode(c.Simulation.Mode)
	if err != nil {
		return orchestrator.Settings{}, err
	}
	vehicleKinds, err := parseKinds(c.VehicleDefaults.EnabledMessages)
	if err != nil {
		return orchestrator.Settings{}, err
	}
	listen, err := c.Topics().Topic(message.KindMCMRequest)
	if err != nil {
		return orchestrator.Settings{}, err
	}
	s := orchestrator.Settings{
		Mode:          mode,
		RealTimeDelay: c.Simulation.RealTimeDelay,
		MaxTime:       c.Simulation.MaxTime,
		Vehicle: entity.VehicleConfig{
			StationType: c.VehicleDefaults.StationType,
			Length:      c.VehicleDefaults.Length,
			Width:       c.VehicleDefaults.Width,
			Kinds:       vehicleKinds,
		},
		Controlled: c.MCM.ControlledVehicles,
		CAM: trigger.CAMParams{
			TMin:              c.CAMTrigger.TMin,
			TMax:              c.CAMTrigger.TMax,
			NMax:              c.CAMTrigger.NMax,
			PositionThreshold: c.CAMTrigger.PositionThreshold,
			SpeedThreshold:    c.CAMTrigger.SpeedThreshold,
			HeadingThreshold:  c.CAMTrigger.HeadingThreshold,
		},
		Conflict: trigger.ConflictParams{
			Radius:     c.MCM.DetectionRadius,
			Cooldown:   c.MCM.Cooldown,
			Controlled: c.MCM.ControlledVehicles,
		},
		Reaction: orchestrator.Reaction{
			SafetySpeed:       c.MCM.SafetySpeed,
			SlowdownDuration:  c.MCM.SlowdownDuration,
			PrioritySpeed:     c.MCM.PrioritySpeed,
			PrioritySpeedMode: c.MCM.PrioritySpeedMode,
			StopColor:         c.MCM.StopColor,
			PriorityColor:     c.MCM.PriorityColor,
			DefaultColor:      c.VehicleDefaults.Color,
			Colors:            c.VehicleDefaults.Colors,
		},
		ListenStation: c.Transport.ListenStation,
		ListenTopic:   listen,
		InboxSize:     c.Transport.InboxSize,
	}
	for _, r := range c.RSUs {
		kinds, err := parseKinds(r.EnabledMessages)
		if err != nil {
			return orchestrator.Settings{}, fmt.Errorf("rsu %d: %w", r.ID, err)
		}
		s.RSUs = append(s.RSUs, entity.RSUConfig{
			StationID:         r.ID,
			Name:              r.Name,
			Position:          geo.Point{X: r.Position.X, Y: r.Position.Y},
			BroadcastInterval: r.BroadcastInterval,
			Kinds:             kinds,
			FirstManoeuvreID:  c.MCM.FirstManoeuvreID,
			RequestCost:       c.MCM.RequestCost,
		})
	}
	return s, nil
}

// TransportStations lists the broker directory.
func (c *Config) TransportStations() []transport.Station {
	return lo.Map(c.Stations, func(s Station, _ int) transport.Station {
		return transport.Station{ID: s.ID, Host: s.IP, Type: s.Type, Name: s.Name}
	})
}

// Topics maps every message kind to its broker topic. The "cam" entry
// covers awareness messages and "mcm" every coordination kind.
func (c *Config) Topics() transport.Topics {
	t := transport.DefaultTopics()
	for key, topic := range c.Transport.Topics {
		if topic == "" {
			continue
		}
		switch key = strings.ToLower(key); key {
		case "cam":
			t[message.KindCAM] = topic
		case "mcm":
			for _, k := range message.AllKinds {
				if k.IsMCM() {
					t[k] = topic
				}
			}
		default:
			if k, err := message.ParseKind(key); err == nil {
				t[k] = topic
			}
		}
	}
	return t
}
