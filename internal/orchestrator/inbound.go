package orchestrator

import (
	"errors"

	"v2x-sim/internal/entity"
	"v2x-sim/internal/message"
	"v2x-sim/internal/physics"
	"v2x-sim/internal/telemetry"
)

// drainInbox dispatches every queued payload. It never blocks.
func (o *Orchestrator) drainInbox(now float64) {
	for {
		select {
		case in := <-o.inbox:
			o.dispatch(in, now)
		default:
			return
		}
	}
}

func (o *Orchestrator) dispatch(in inbound, now float64) {
	m, err := message.DecodeMCM(in.payload)
	if err != nil {
		o.counters.Malformed++
		o.log.Warn("discarding malformed payload", "topic", in.topic, "bytes", len(in.payload), "err", err)
		o.negotiation(telemetry.NegotiationRow{
			Event:   telemetry.EventMalformedDiscard,
			Detail:  err.Error(),
			SimTime: now,
		})
		return
	}
	o.counters.Received++
	switch m.BasicContainer.MCMType {
	case message.MCMTypeRequest:
		for _, id := range m.ExecutantIDs() {
			if v, ok := o.byStation[id]; ok {
				o.handleRequest(v, m, now)
			}
		}
	case message.MCMTypeTermination:
		o.negotiation(telemetry.NegotiationRow{
			Event:       telemetry.EventTermination,
			StationID:   m.BasicContainer.StationID,
			ManoeuvreID: m.BasicContainer.ManoeuvreID,
			SimTime:     now,
		})
		for _, v := range o.vehicles {
			if v.Controlled() {
				o.handleTermination(v, m.BasicContainer.ManoeuvreID, now)
			}
		}
	default:
		o.log.Debug("ignoring mcm", "mcm_type", m.BasicContainer.MCMType, "station_id", m.BasicContainer.StationID)
	}
}

// handleRequest accepts a request addressed to v, at most once per
// manoeuvre id, and applies the advised strategy.
func (o *Orchestrator) handleRequest(v *entity.Vehicle, m *message.MCM, now float64) {
	if !v.Controlled() {
		return
	}
	id := m.BasicContainer.ManoeuvreID
	if v.LastManoeuvre() == id {
		o.log.Debug("manoeuvre already handled", "vehicle_id", v.PhysicsID(), "manoeuvre_id", id)
		o.negotiation(telemetry.NegotiationRow{
			Event:       telemetry.EventDuplicateIgnored,
			StationID:   v.StationID(),
			VehicleID:   v.PhysicsID(),
			ManoeuvreID: id,
			SimTime:     now,
		})
		return
	}
	advice, ok := m.Executant(v.StationID())
	if !ok {
		return
	}
	v.MarkManoeuvre(id)

	strategy := ""
	if advice.CurrentStateAdvisedChange != nil {
		strategy = advice.CurrentStateAdvisedChange.Name
	}
	o.log.Info("manoeuvre request received", "vehicle_id", v.PhysicsID(), "station_id", v.StationID(),
		"manoeuvre_id", id, "strategy", strategy)
	o.negotiation(telemetry.NegotiationRow{
		Event:       telemetry.EventRequestReceived,
		StationID:   v.StationID(),
		VehicleID:   v.PhysicsID(),
		ManoeuvreID: id,
		Strategy:    strategy,
		SimTime:     now,
	})

	o.respond(v, id, now)
	o.apply(v, id, strategy, now)
}

// respond publishes an accepting response before any physical action.
func (o *Orchestrator) respond(v *entity.Vehicle, manoeuvreID int, now float64) {
	if !v.Enabled(message.KindMCMResponse) {
		o.log.Debug("responses disabled", "vehicle_id", v.PhysicsID())
		return
	}
	a := v.Attributes(message.KindMCMResponse)
	a.ManoeuvreID = manoeuvreID
	a.ResponseCode = message.ResponseAccept
	a.Cost = message.IntPtr(0)
	if !o.send(v, message.KindMCMResponse, a, "request_accepted", now) {
		return
	}
	o.negotiation(telemetry.NegotiationRow{
		Event:       telemetry.EventResponseSent,
		StationID:   v.StationID(),
		VehicleID:   v.PhysicsID(),
		ManoeuvreID: manoeuvreID,
		Detail:      "accept",
		SimTime:     now,
	})
}

func (o *Orchestrator) apply(v *entity.Vehicle, manoeuvreID int, strategy string, now float64) {
	id := v.PhysicsID()
	r := o.settings.Reaction
	row := telemetry.NegotiationRow{
		Event:       telemetry.EventActionApplied,
		StationID:   v.StationID(),
		VehicleID:   id,
		ManoeuvreID: manoeuvreID,
		Strategy:    strategy,
		SimTime:     now,
	}

	var err error
	switch strategy {
	case message.StrategyStop:
		edge, eerr := o.engine.Edge(id)
		if eerr != nil {
			o.log.Error("edge lookup failed", "vehicle_id", id, "err", eerr)
			return
		}
		if physics.IsInternalEdge(edge) {
			o.log.Warn("stop suppressed inside junction", "vehicle_id", id, "edge", edge, "manoeuvre_id", manoeuvreID)
			row.Event = telemetry.EventActionSuppressed
			row.Detail = edge
			o.negotiation(row)
			return
		}
		err = errors.Join(
			o.engine.SlowDown(id, r.SafetySpeed, r.SlowdownDuration),
			o.engine.SetColor(id, r.StopColor),
		)
	case message.StrategyStayInLane, message.StrategyDriveStraight:
		err = errors.Join(
			o.engine.SetSpeedMode(id, r.PrioritySpeedMode),
			o.engine.SetSpeed(id, r.PrioritySpeed),
			o.engine.SetColor(id, r.PriorityColor),
		)
	default:
		o.log.Warn("unhandled strategy", "vehicle_id", id, "strategy", strategy, "manoeuvre_id", manoeuvreID)
		return
	}
	if err != nil {
		o.log.Error("apply strategy failed", "vehicle_id", id, "strategy", strategy, "err", err)
		return
	}
	o.log.Info("strategy applied", "vehicle_id", id, "strategy", strategy, "manoeuvre_id", manoeuvreID)
	o.negotiation(row)
}

// handleTermination hands speed control back to the physics engine and
// restores the vehicle's marker colour.
func (o *Orchestrator) handleTermination(v *entity.Vehicle, manoeuvreID int, now float64) {
	id := v.PhysicsID()
	if err := o.engine.SetSpeed(id, -1); err != nil {
		o.log.Error("speed release failed", "vehicle_id", id, "err", err)
		return
	}
	pending, err := o.engine.HasPendingStops(id)
	if err != nil {
		o.log.Error("stop lookup failed", "vehicle_id", id, "err", err)
		return
	}
	if pending {
		if err := o.engine.Resume(id); err != nil {
			o.log.Error("resume failed", "vehicle_id", id, "err", err)
			return
		}
	}
	if err := o.engine.SetColor(id, o.settings.Reaction.colorFor(id)); err != nil {
		o.log.Error("colour restore failed", "vehicle_id", id, "err", err)
		return
	}
	o.log.Info("normal driving restored", "vehicle_id", id, "manoeuvre_id", manoeuvreID, "resumed", pending)
	o.negotiation(telemetry.NegotiationRow{
		Event:       telemetry.EventRestored,
		StationID:   v.StationID(),
		VehicleID:   id,
		ManoeuvreID: manoeuvreID,
		SimTime:     now,
	})
}
