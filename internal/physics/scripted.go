package physics

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"v2x-sim/internal/geo"
	"v2x-sim/internal/scenario"
)

const (
	maxAccel        = 2.6
	maxDecel        = 4.5
	metresPerDegLat = 111320.0
	internalEdge    = ":junction_0"
	backgroundBase  = 1000
)

type slowdown struct {
	target    float64
	remaining float64
}

type scriptedVehicle struct {
	def      scenario.Vehicle
	line     orb.LineString
	cum      []float64
	dist     float64
	speed    float64
	accel    float64
	override float64
	slow     *slowdown
	mode     int
	color    Color
	stopIdx  int
	holding  float64
}

func newScriptedVehicle(def scenario.Vehicle) *scriptedVehicle {
	line := make(orb.LineString, len(def.Route))
	for i, w := range def.Route {
		line[i] = orb.Point{w.X, w.Y}
	}
	cum := make([]float64, len(line))
	for i := 1; i < len(line); i++ {
		cum[i] = cum[i-1] + planar.Distance(line[i-1], line[i])
	}
	stops := append([]scenario.Stop(nil), def.Stops...)
	sort.Slice(stops, func(i, j int) bool { return stops[i].At < stops[j].At })
	def.Stops = stops
	return &scriptedVehicle{def: def, line: line, cum: cum, speed: def.Speed, override: -1}
}

func (v *scriptedVehicle) length() float64 { return v.cum[len(v.cum)-1] }

// at returns the position and SUMO-style angle (clockwise from north) at the
// current route distance.
func (v *scriptedVehicle) at() (orb.Point, float64, int) {
	seg := len(v.cum) - 2
	for i := 1; i < len(v.cum); i++ {
		if v.dist <= v.cum[i] {
			seg = i - 1
			break
		}
	}
	a, b := v.line[seg], v.line[seg+1]
	segLen := v.cum[seg+1] - v.cum[seg]
	f := 0.0
	if segLen > 0 {
		f = math.Min(1, (v.dist-v.cum[seg])/segLen)
	}
	p := orb.Point{a[0] + (b[0]-a[0])*f, a[1] + (b[1]-a[1])*f}
	angle := math.Atan2(b[0]-a[0], b[1]-a[1]) * 180 / math.Pi
	if angle < 0 {
		angle += 360
	}
	return p, angle, seg
}

func (v *scriptedVehicle) signals() int {
	bits := 0
	for _, s := range v.def.Signals {
		if v.dist < s.From || v.dist > s.To {
			continue
		}
		switch s.Side {
		case scenario.SideLeft:
			bits |= SignalLeft
		case scenario.SideRight:
			bits |= SignalRight
		}
	}
	return bits
}

func (v *scriptedVehicle) edge(seg int) string {
	for _, sp := range v.def.Internal {
		if v.dist >= sp.From && v.dist <= sp.To {
			return internalEdge
		}
	}
	return fmt.Sprintf("%s_%d", v.def.ID, seg)
}

func (v *scriptedVehicle) step(dt float64) {
	prev := v.speed
	switch {
	case v.holding > 0:
		v.holding -= dt
		v.speed = 0
		if v.holding <= 0 {
			v.holding = 0
			v.stopIdx++
		}
	case v.slow != nil:
		f := 1.0
		if v.slow.remaining > dt {
			f = dt / v.slow.remaining
		}
		v.speed += (v.slow.target - v.speed) * f
		v.slow.remaining -= dt
		if v.slow.remaining <= 0 {
			// The reduced speed is held until an explicit SetSpeed.
			v.override = v.slow.target
			v.slow = nil
		}
	default:
		desired := v.def.Speed
		if v.override >= 0 {
			desired = v.override
		}
		if desired > v.speed {
			v.speed = math.Min(desired, v.speed+maxAccel*dt)
		} else {
			v.speed = math.Max(desired, v.speed-maxDecel*dt)
		}
	}
	next := v.dist + v.speed*dt
	if v.stopIdx < len(v.def.Stops) && v.holding == 0 {
		stop := v.def.Stops[v.stopIdx]
		if next >= stop.At {
			next = math.Max(v.dist, stop.At)
			v.speed = 0
			v.holding = stop.Duration
			if v.holding <= 0 {
				v.stopIdx++
			}
		}
	}
	v.dist = next
	v.accel = (v.speed - prev) / dt
}

// Scripted plays back a scenario in-process. It implements Engine.
type Scripted struct {
	mu       sync.Mutex
	step     float64
	steps    int
	now      float64
	origin   geo.Position
	waiting  []scenario.Vehicle
	active   []*scriptedVehicle
	byID     map[string]*scriptedVehicle
	snapshot []VehicleState
}

// NewScripted builds an engine for sc. Background traffic is expanded with a
// seeded generator so runs are reproducible.
func NewScripted(sc *scenario.Scenario) (*Scripted, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	waiting := append([]scenario.Vehicle(nil), sc.Vehicles...)
	waiting = append(waiting, backgroundVehicles(sc.Background)...)
	sort.SliceStable(waiting, func(i, j int) bool { return waiting[i].Depart < waiting[j].Depart })
	return &Scripted{
		step:    sc.Step(),
		origin:  sc.Origin,
		waiting: waiting,
		byID:    make(map[string]*scriptedVehicle),
	}, nil
}

func backgroundVehicles(bg *scenario.Background) []scenario.Vehicle {
	if bg == nil || bg.Count <= 0 {
		return nil
	}
	r := rand.New(rand.NewSource(bg.Seed))
	out := make([]scenario.Vehicle, 0, bg.Count)
	for i := 0; i < bg.Count; i++ {
		out = append(out, scenario.Vehicle{
			ID:     fmt.Sprintf("bg%d", backgroundBase+i),
			Depart: float64(i) * bg.Interval,
			Speed:  bg.SpeedMin + r.Float64()*(bg.SpeedMax-bg.SpeedMin),
			Route:  bg.Routes[r.Intn(len(bg.Routes))],
		})
	}
	return out
}

func (s *Scripted) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// whole milliseconds from the step count, as SUMO reports time
	s.steps++
	s.now = math.Round(float64(s.steps)*s.step*1000) / 1000
	for len(s.waiting) > 0 && s.waiting[0].Depart <= s.now+1e-9 {
		v := newScriptedVehicle(s.waiting[0])
		s.waiting = s.waiting[1:]
		s.active = append(s.active, v)
		s.byID[v.def.ID] = v
	}
	kept := s.active[:0]
	for _, v := range s.active {
		v.step(s.step)
		if v.dist >= v.length() {
			delete(s.byID, v.def.ID)
			continue
		}
		kept = append(kept, v)
	}
	s.active = kept
	s.snapshot = s.snapshot[:0]
	for _, v := range s.active {
		p, angle, seg := v.at()
		s.snapshot = append(s.snapshot, VehicleState{
			ID:           v.def.ID,
			X:            p[0],
			Y:            p[1],
			Speed:        v.speed,
			Angle:        angle,
			Acceleration: v.accel,
			Signals:      v.signals(),
			Edge:         v.edge(seg),
		})
	}
	return nil
}

func (s *Scripted) Time() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Scripted) Vehicles() []VehicleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VehicleState, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

func (s *Scripted) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) + len(s.waiting)
}

// ToGeo projects around the scenario origin with an equirectangular approximation.
func (s *Scripted) ToGeo(p geo.Point) (geo.Position, error) {
	lat := s.origin.Lat + p.Y/metresPerDegLat
	lon := s.origin.Lon + p.X/(metresPerDegLat*math.Cos(s.origin.Lat*math.Pi/180))
	return geo.Position{Lat: lat, Lon: lon}, nil
}

func (s *Scripted) vehicle(id string) (*scriptedVehicle, error) {
	v, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownVehicle)
	}
	return v, nil
}

// SetSpeed fixes the target speed; a negative value hands control back to
// the vehicle's cruise speed.
func (s *Scripted) SetSpeed(id string, speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vehicle(id)
	if err != nil {
		return err
	}
	v.slow = nil
	v.override = speed
	if speed < 0 {
		v.override = -1
	}
	return nil
}

func (s *Scripted) SlowDown(id string, speed, duration float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vehicle(id)
	if err != nil {
		return err
	}
	v.slow = &slowdown{target: speed, remaining: duration}
	return nil
}

func (s *Scripted) SetSpeedMode(id string, mode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vehicle(id)
	if err != nil {
		return err
	}
	v.mode = mode
	return nil
}

func (s *Scripted) SetColor(id string, c Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vehicle(id)
	if err != nil {
		return err
	}
	v.color = c
	return nil
}

// Color returns the last colour set on a vehicle.
func (s *Scripted) Color(id string) (Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vehicle(id)
	if err != nil {
		return Color{}, err
	}
	return v.color, nil
}

// SpeedMode returns the last speed mode set on a vehicle.
func (s *Scripted) SpeedMode(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vehicle(id)
	if err != nil {
		return 0, err
	}
	return v.mode, nil
}

func (s *Scripted) Edge(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vehicle(id)
	if err != nil {
		return "", err
	}
	_, _, seg := v.at()
	return v.edge(seg), nil
}

func (s *Scripted) HasPendingStops(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vehicle(id)
	if err != nil {
		return false, err
	}
	return v.stopIdx < len(v.def.Stops), nil
}

// Resume releases a vehicle held at a stop.
func (s *Scripted) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vehicle(id)
	if err != nil {
		return err
	}
	if v.holding > 0 {
		v.holding = 0
		v.stopIdx++
	}
	return nil
}

func (s *Scripted) Close() error { return nil }
