package entity

import (
	"fmt"

	"github.com/google/uuid"

	"v2x-sim/internal/geo"
	"v2x-sim/internal/message"
	"v2x-sim/internal/trigger"
)

// Session is an open manoeuvre negotiation owned by a roadside unit.
type Session struct {
	ID          uuid.UUID
	ManoeuvreID int
	OpenedAt    float64
	Executants  []message.Executant
}

// Members returns the station ids taking part in the session.
func (s *Session) Members() []int {
	ids := make([]int, 0, len(s.Executants))
	for _, e := range s.Executants {
		ids = append(ids, e.StationID)
	}
	return ids
}

// RSUConfig describes a roadside unit at construction time.
type RSUConfig struct {
	StationID         int
	Name              string
	Position          geo.Point
	Geo               geo.Position
	BroadcastInterval float64
	Kinds             []message.Kind
	FirstManoeuvreID  int
	RequestCost       int
}

// RSU is a stationary unit that coordinates nearby vehicles.
type RSU struct {
	base
	interval      float64
	cost          int
	nextManoeuvre int
	session       *Session
}

// NewRSU builds a roadside unit. A zero broadcast interval defaults to 1 s.
func NewRSU(c RSUConfig) *RSU {
	name := c.Name
	if name == "" {
		name = fmt.Sprintf("RSU_%d", c.StationID)
	}
	interval := c.BroadcastInterval
	if interval <= 0 {
		interval = 1.0
	}
	kinds := c.Kinds
	if len(kinds) == 0 {
		kinds = []message.Kind{message.KindCAM}
	}
	return &RSU{
		base: base{
			id:    c.StationID,
			name:  name,
			kinds: kinds,
			types: RSUStationTypes,
			pos:   c.Position,
			geo:   c.Geo,
		},
		interval:      interval,
		cost:          c.RequestCost,
		nextManoeuvre: c.FirstManoeuvreID,
	}
}

// BroadcastInterval is the period of the unit's awareness broadcast.
func (r *RSU) BroadcastInterval() float64 { return r.interval }

func (r *RSU) Snapshot() trigger.Snapshot {
	return trigger.Snapshot{Position: r.pos}
}

// OpenSession starts a negotiation with the given assignments, replacing any
// session still open. Each session gets a fresh manoeuvre id.
func (r *RSU) OpenSession(now float64, assignments []trigger.Assignment) *Session {
	executants := make([]message.Executant, 0, len(assignments))
	for _, a := range assignments {
		executants = append(executants, message.Executant{
			StationID:     a.StationID,
			Strategy:      a.Strategy,
			Submanoeuvres: []message.Submanoeuvre{{SubmanoeuvreID: 1}},
		})
	}
	r.session = &Session{
		ID:          uuid.New(),
		ManoeuvreID: r.nextManoeuvre,
		OpenedAt:    now,
		Executants:  executants,
	}
	r.nextManoeuvre++
	return r.session
}

// Session returns the open session or nil.
func (r *RSU) Session() *Session { return r.session }

// SessionMembers returns the member ids of the open session, or nil.
func (r *RSU) SessionMembers() []int {
	if r.session == nil {
		return nil
	}
	return r.session.Members()
}

// CloseSession ends the open session and returns it.
func (r *RSU) CloseSession() *Session {
	s := r.session
	r.session = nil
	return s
}

func (r *RSU) Attributes(kind message.Kind) message.Attributes {
	a := r.attributes(kind)
	switch kind {
	case message.KindMCMRequest:
		a.Cost = message.IntPtr(r.cost)
		if r.session != nil {
			a.ManoeuvreID = r.session.ManoeuvreID
			a.Executants = r.session.Executants
		}
	case message.KindMCMTermination:
		if r.session != nil {
			a.ManoeuvreID = r.session.ManoeuvreID
		}
	}
	return a
}
