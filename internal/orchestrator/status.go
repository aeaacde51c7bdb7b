package orchestrator

import (
	"sort"
	"strconv"

	"v2x-sim/internal/message"
)

// Counters aggregate message traffic over a run.
type Counters struct {
	Sent      map[message.Kind]int
	Failed    int
	Received  int
	Malformed int
	Sessions  int
}

// VehicleStatus is one vehicle as seen by the orchestrator.
type VehicleStatus struct {
	ID            string  `json:"id"`
	StationID     int     `json:"station_id"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Speed         float64 `json:"speed"`
	LeftTurn      bool    `json:"left_turn"`
	RightTurn     bool    `json:"right_turn"`
	Controlled    bool    `json:"controlled"`
	LastManoeuvre int     `json:"last_manoeuvre"`
}

// SessionStatus describes an open manoeuvre session.
type SessionStatus struct {
	ID          string            `json:"id"`
	ManoeuvreID int               `json:"manoeuvre_id"`
	OpenedAt    float64           `json:"opened_at"`
	Strategies  map[string]string `json:"strategies"`
}

// RSUStatus is one roadside unit.
type RSUStatus struct {
	StationID int            `json:"station_id"`
	Name      string         `json:"name"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Session   *SessionStatus `json:"session,omitempty"`
}

// Status is a consistent snapshot taken between ticks.
type Status struct {
	Mode      Mode            `json:"mode"`
	SimTime   float64         `json:"sim_time"`
	Ticks     int             `json:"ticks"`
	Vehicles  []VehicleStatus `json:"vehicles"`
	RSUs      []RSUStatus     `json:"rsus"`
	Sent      map[string]int  `json:"sent"`
	Failed    int             `json:"failed"`
	Received  int             `json:"received"`
	Malformed int             `json:"malformed"`
	Dropped   int64           `json:"dropped"`
	Sessions  int             `json:"sessions"`
}

// Status returns a snapshot of the orchestrator state. It waits for the
// running tick to finish.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Mode:      o.settings.Mode,
		SimTime:   o.engine.Time(),
		Ticks:     o.ticks,
		Vehicles:  make([]VehicleStatus, 0, len(o.vehicles)),
		RSUs:      make([]RSUStatus, 0, len(o.rsus)),
		Sent:      make(map[string]int, len(o.counters.Sent)),
		Failed:    o.counters.Failed,
		Received:  o.counters.Received,
		Malformed: o.counters.Malformed,
		Dropped:   o.dropped.Load(),
		Sessions:  o.counters.Sessions,
	}
	for kind, n := range o.counters.Sent {
		st.Sent[string(kind)] = n
	}
	for _, v := range o.vehicles {
		left, right := v.Signals()
		pos, g := v.Position(), v.GeoPosition()
		st.Vehicles = append(st.Vehicles, VehicleStatus{
			ID:            v.PhysicsID(),
			StationID:     v.StationID(),
			X:             pos.X,
			Y:             pos.Y,
			Lat:           g.Lat,
			Lon:           g.Lon,
			Speed:         v.Speed(),
			LeftTurn:      left,
			RightTurn:     right,
			Controlled:    v.Controlled(),
			LastManoeuvre: v.LastManoeuvre(),
		})
	}
	sort.Slice(st.Vehicles, func(i, j int) bool { return st.Vehicles[i].StationID < st.Vehicles[j].StationID })
	for _, r := range o.rsus {
		rs := RSUStatus{StationID: r.StationID(), Name: r.Name(), X: r.Position().X, Y: r.Position().Y}
		if s := r.Session(); s != nil {
			ss := &SessionStatus{
				ID:          s.ID.String(),
				ManoeuvreID: s.ManoeuvreID,
				OpenedAt:    s.OpenedAt,
				Strategies:  make(map[string]string, len(s.Executants)),
			}
			for _, e := range s.Executants {
				key := o.physicsID(e.StationID)
				if key == "" {
					key = "station_" + strconv.Itoa(e.StationID)
				}
				ss.Strategies[key] = e.Strategy
			}
			rs.Session = ss
		}
		st.RSUs = append(st.RSUs, rs)
	}
	return st
}
