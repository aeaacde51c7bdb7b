package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"v2x-sim/internal/geo"
)

// Turn-signal sides.
const (
	SideLeft  = "left"
	SideRight = "right"
)

// DefaultStepLength is the simulation step in seconds when a scenario does not set one.
const DefaultStepLength = 0.1

// Scenario scripts the traffic that the in-process engine plays back.
type Scenario struct {
	Name        string       `yaml:"name,omitempty"`
	Description string       `yaml:"description,omitempty"`
	StepLength  float64      `yaml:"step_length,omitempty"`
	Origin      geo.Position `yaml:"origin"`
	Vehicles    []Vehicle    `yaml:"vehicles"`
	Background  *Background  `yaml:"background,omitempty"`
}

// Vehicle follows a polyline route at a cruise speed.
type Vehicle struct {
	ID     string     `yaml:"id"`
	Depart float64    `yaml:"depart"`
	Speed  float64    `yaml:"speed"`
	Route  []Waypoint `yaml:"route"`

	// Signals, Internal and Stops are positioned by distance travelled
	// along the route in metres.
	Signals  []Signal `yaml:"signals,omitempty"`
	Internal []Span   `yaml:"internal,omitempty"`
	Stops    []Stop   `yaml:"stops,omitempty"`
}

// Waypoint is a planar route vertex in metres.
type Waypoint struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Signal keeps an indicator on between two route distances.
type Signal struct {
	Side string  `yaml:"side"`
	From float64 `yaml:"from"`
	To   float64 `yaml:"to"`
}

// Span marks a stretch of route that lies on a junction-internal edge.
type Span struct {
	From float64 `yaml:"from"`
	To   float64 `yaml:"to"`
}

// Stop holds a vehicle at a route distance for a duration in seconds.
type Stop struct {
	At       float64 `yaml:"at"`
	Duration float64 `yaml:"duration"`
}

// Background spawns uncontrolled traffic on the given routes.
type Background struct {
	Count    int          `yaml:"count"`
	Seed     int64        `yaml:"seed,omitempty"`
	Interval float64      `yaml:"interval"`
	SpeedMin float64      `yaml:"speed_min"`
	SpeedMax float64      `yaml:"speed_max"`
	Routes   [][]Waypoint `yaml:"routes"`
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML scenario.
func Parse(b []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks routes, ids and signal sides.
func (s *Scenario) Validate() error {
	if s.StepLength < 0 {
		return fmt.Errorf("scenario %q: negative step_length", s.Name)
	}
	var errs []error
	seen := make(map[string]bool, len(s.Vehicles))
	for _, v := range s.Vehicles {
		if v.ID == "" {
			errs = append(errs, errors.New("vehicle without id"))
			continue
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Errorf("vehicle %s: duplicate id", v.ID))
		}
		seen[v.ID] = true
		if len(v.Route) < 2 {
			errs = append(errs, fmt.Errorf("vehicle %s: route needs at least two waypoints", v.ID))
		}
		if v.Speed <= 0 {
			errs = append(errs, fmt.Errorf("vehicle %s: speed must be positive", v.ID))
		}
		for _, sig := range v.Signals {
			if sig.Side != SideLeft && sig.Side != SideRight {
				errs = append(errs, fmt.Errorf("vehicle %s: unknown signal side %q", v.ID, sig.Side))
			}
			if sig.To < sig.From {
				errs = append(errs, fmt.Errorf("vehicle %s: signal window ends before it starts", v.ID))
			}
		}
	}
	if bg := s.Background; bg != nil && bg.Count > 0 {
		if len(bg.Routes) == 0 {
			errs = append(errs, errors.New("background: no routes"))
		}
		for i, r := range bg.Routes {
			if len(r) < 2 {
				errs = append(errs, fmt.Errorf("background route %d: needs at least two waypoints", i))
			}
		}
		if bg.SpeedMax < bg.SpeedMin || bg.SpeedMin <= 0 {
			errs = append(errs, errors.New("background: invalid speed range"))
		}
	}
	return errors.Join(errs...)
}

// Step returns the configured step length or the default.
func (s *Scenario) Step() float64 {
	if s.StepLength > 0 {
		return s.StepLength
	}
	return DefaultStepLength
}
