package orchestrator

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"v2x-sim/internal/entity"
	"v2x-sim/internal/geo"
	"v2x-sim/internal/message"
	"v2x-sim/internal/physics"
	"v2x-sim/internal/sink"
	"v2x-sim/internal/telemetry"
	"v2x-sim/internal/transport"
	"v2x-sim/internal/trigger"
)

// observation is a physics state paired with its geographic position.
type observation struct {
	state physics.VehicleState
	geo   geo.Position
}

func (o *Orchestrator) observe(states []physics.VehicleState) []observation {
	out := make([]observation, 0, len(states))
	for _, st := range states {
		pos, err := o.engine.ToGeo(st.Position())
		if err != nil {
			o.log.Warn("position not converted", "vehicle_id", st.ID, "err", err)
		}
		out = append(out, observation{state: st, geo: pos})
	}
	return out
}

// neighbors lists the known vehicles within the detection radius of at, in
// registration order.
func (o *Orchestrator) neighbors(at geo.Point) []trigger.Neighbor {
	return lo.FilterMap(o.vehicles, func(v *entity.Vehicle, _ int) (trigger.Neighbor, bool) {
		d := geo.Distance(at, v.Position())
		left, right := v.Signals()
		return trigger.Neighbor{
			StationID: v.StationID(),
			Name:      v.Name(),
			Position:  v.Position(),
			Distance:  d,
			LeftTurn:  left,
			RightTurn: right,
		}, d <= o.settings.Conflict.Radius
	})
}

func (o *Orchestrator) rsuTrigger(r *entity.RSU, kind message.Kind) trigger.Trigger {
	switch kind {
	case message.KindCAM:
		return o.periodic[r.StationID()]
	case message.KindMCMRequest:
		return o.conflict
	case message.KindMCMTermination:
		return o.term
	}
	return nil
}

func (o *Orchestrator) rsuPass(now float64) {
	for _, r := range o.rsus {
		in := trigger.Input{
			Time:      now,
			Self:      r.Snapshot(),
			Neighbors: o.neighbors(r.Position()),
			Session:   r.SessionMembers(),
		}
		for _, kind := range r.Kinds() {
			tr := o.rsuTrigger(r, kind)
			if tr == nil {
				continue
			}
			key := trigger.Key{StationID: r.StationID(), Kind: kind}
			prev, ok := o.store.Get(key)
			res := tr.Evaluate(in, prev, ok)
			if res.State != nil {
				o.store.Put(key, res.State)
			}
			if !res.Send {
				continue
			}

			switch kind {
			case message.KindMCMRequest:
				o.openSession(r, now, res)
			case message.KindMCMTermination:
				if s := r.Session(); s != nil {
					o.log.Info("manoeuvre completed", "station_id", r.StationID(),
						"manoeuvre_id", s.ManoeuvreID, "completed_by", res.Completed)
				}
			}

			encoded := o.send(r, kind, r.Attributes(kind), res.Reason, now)
			if kind == message.KindMCMTermination && encoded {
				o.closeSession(r, now, res)
			}
			in.Session = r.SessionMembers()
		}
	}
}

func (o *Orchestrator) openSession(r *entity.RSU, now float64, res trigger.Result) {
	if prev := r.Session(); prev != nil {
		o.log.Warn("replacing open manoeuvre session", "station_id", r.StationID(), "manoeuvre_id", prev.ManoeuvreID)
	}
	s := r.OpenSession(now, res.Assignments)
	o.counters.Sessions++
	o.log.Info("conflict detected", "station_id", r.StationID(), "manoeuvre_id", s.ManoeuvreID,
		"session", s.ID, "members", s.Members(), "reason", res.Reason)
	for _, a := range res.Assignments {
		o.negotiation(telemetry.NegotiationRow{
			Event:       telemetry.EventConflict,
			StationID:   r.StationID(),
			VehicleID:   o.physicsID(a.StationID),
			ManoeuvreID: s.ManoeuvreID,
			Strategy:    a.Strategy,
			Detail:      res.Reason,
			SimTime:     now,
		})
	}
}

func (o *Orchestrator) closeSession(r *entity.RSU, now float64, res trigger.Result) {
	s := r.CloseSession()
	if s == nil {
		return
	}
	o.negotiation(telemetry.NegotiationRow{
		Event:       telemetry.EventSessionClosed,
		StationID:   r.StationID(),
		VehicleID:   o.physicsID(res.Completed),
		ManoeuvreID: s.ManoeuvreID,
		Detail:      fmt.Sprintf("session %s open for %.1fs", s.ID, now-s.OpenedAt),
		SimTime:     now,
	})
}

func (o *Orchestrator) vehiclePass(now float64, observed []observation) {
	for _, ob := range observed {
		st := ob.state
		v, ok := o.byPhysics[st.ID]
		if !ok {
			v = o.register(st.ID)
		}
		changes := v.Update(entity.Observation{
			Position:     st.Position(),
			Geo:          ob.geo,
			Speed:        st.Speed,
			Heading:      st.Angle,
			Acceleration: st.Acceleration,
			LeftTurn:     st.LeftTurn(),
			RightTurn:    st.RightTurn(),
		})
		if !v.Controlled() {
			continue
		}
		for _, c := range changes {
			o.log.Info("turn signal changed", "vehicle_id", st.ID, "station_id", v.StationID(), "side", c.Side, "on", c.On)
			o.negotiation(telemetry.NegotiationRow{
				Event:     telemetry.EventSignalChanged,
				StationID: v.StationID(),
				VehicleID: st.ID,
				Detail:    fmt.Sprintf("%s %s", c.Side, onOff(c.On)),
				SimTime:   now,
			})
		}
		if !v.Enabled(message.KindCAM) {
			continue
		}
		key := trigger.Key{StationID: v.StationID(), Kind: message.KindCAM}
		prev, hasPrev := o.store.Get(key)
		res := o.cam.Evaluate(trigger.Input{Time: now, Self: v.Snapshot()}, prev, hasPrev)
		if !res.Send {
			continue
		}
		if res.State != nil {
			o.store.Put(key, res.State)
		}
		o.send(v, message.KindCAM, v.Attributes(message.KindCAM), res.Reason, now)
	}
}

func (o *Orchestrator) register(physicsID string) *entity.Vehicle {
	stationID := geo.StationID(physicsID)
	cfg := o.settings.Vehicle
	cfg.Controlled = o.isControlled(stationID)
	v := entity.NewVehicle(physicsID, stationID, cfg)
	o.vehicles = append(o.vehicles, v)
	o.byPhysics[physicsID] = v
	if other, taken := o.byStation[stationID]; taken {
		o.log.Warn("station id already in use", "station_id", stationID, "vehicle_id", physicsID, "holder", other.PhysicsID())
	} else {
		o.byStation[stationID] = v
	}
	o.log.Debug("vehicle registered", "vehicle_id", physicsID, "station_id", stationID, "controlled", cfg.Controlled)
	return v
}

// cleanup forgets vehicles that left the simulation together with their
// trigger state.
func (o *Orchestrator) cleanup(now float64, observed []observation) {
	present := make(map[string]struct{}, len(observed))
	for _, ob := range observed {
		present[ob.state.ID] = struct{}{}
	}
	departed, kept := lo.FilterReject(o.vehicles, func(v *entity.Vehicle, _ int) bool {
		_, ok := present[v.PhysicsID()]
		return !ok
	})
	if len(departed) == 0 {
		return
	}
	o.vehicles = kept
	for _, v := range departed {
		delete(o.byPhysics, v.PhysicsID())
		if o.byStation[v.StationID()] == v {
			delete(o.byStation, v.StationID())
		}
		dropped := o.store.DropStation(v.StationID())
		o.log.Debug("vehicle departed", "vehicle_id", v.PhysicsID(), "station_id", v.StationID(), "states_dropped", dropped)
		if v.Controlled() {
			o.negotiation(telemetry.NegotiationRow{
				Event:     telemetry.EventVehicleDeparted,
				StationID: v.StationID(),
				VehicleID: v.PhysicsID(),
				SimTime:   now,
			})
		}
	}
}

// send encodes and publishes one message. It reports whether a payload was
// produced; delivery failures are logged and recorded but not retried.
func (o *Orchestrator) send(e entity.Entity, kind message.Kind, attrs message.Attributes, reason string, now float64) bool {
	payload, err := o.registry.Encode(kind, o.genDelta, attrs)
	if err != nil {
		o.log.Error("encode failed", "station_id", e.StationID(), "kind", kind, "err", err)
		return false
	}
	row := telemetry.MessageRow{
		StationID:    e.StationID(),
		Kind:         string(kind),
		Entity:       e.Name(),
		Reason:       reason,
		ManoeuvreID:  attrs.ManoeuvreID,
		GenDeltaTime: o.genDelta,
		Bytes:        len(payload),
		SimTime:      now,
	}
	if err := o.transport.Publish(e.StationID(), kind, payload); err != nil {
		o.counters.Failed++
		row.Error = err.Error()
		if errors.Is(err, transport.ErrUnknownStation) {
			o.log.Debug("publish skipped", "station_id", e.StationID(), "kind", kind, "err", err)
		} else {
			o.log.Warn("publish failed", "station_id", e.StationID(), "kind", kind, "err", err)
		}
	} else {
		row.Delivered = true
		o.counters.Sent[kind]++
	}
	if err := o.writer.WriteMessage(o.gen.Message(row)); err != nil {
		o.log.Error("message write failed", "kind", kind, "err", err)
	}
	return true
}

func (o *Orchestrator) negotiation(row telemetry.NegotiationRow) {
	if err := o.writer.WriteNegotiation(o.gen.Negotiation(row)); err != nil {
		o.log.Error("negotiation write failed", "event", row.Event, "err", err)
	}
}

func (o *Orchestrator) writeStates(now float64, observed []observation) {
	sw, ok := o.writer.(sink.StateWriter)
	if !ok || len(observed) == 0 {
		return
	}
	rows := make([]telemetry.VehicleRow, 0, len(observed))
	for _, ob := range observed {
		st := ob.state
		stationID := geo.StationID(st.ID)
		rows = append(rows, o.gen.Vehicle(telemetry.VehicleRow{
			VehicleID:    st.ID,
			StationID:    stationID,
			X:            st.X,
			Y:            st.Y,
			Lat:          ob.geo.Lat,
			Lon:          ob.geo.Lon,
			Speed:        st.Speed,
			Heading:      st.Angle,
			Acceleration: st.Acceleration,
			LeftTurn:     st.LeftTurn(),
			RightTurn:    st.RightTurn(),
			Controlled:   o.v2x() && o.isControlled(stationID),
			SimTime:      now,
		}))
	}
	if err := sw.WriteStates(rows); err != nil {
		o.log.Error("state write failed", "rows", len(rows), "err", err)
	}
}

func (o *Orchestrator) physicsID(stationID int) string {
	if v, ok := o.byStation[stationID]; ok {
		return v.PhysicsID()
	}
	return ""
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
