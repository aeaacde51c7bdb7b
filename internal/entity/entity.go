// Package entity holds the runtime state of roadside units and vehicles and
// turns it into message attributes.
package entity

import (
	"slices"

	"v2x-sim/internal/geo"
	"v2x-sim/internal/message"
	"v2x-sim/internal/trigger"
)

// Entity is anything that owns a station id and can emit messages.
type Entity interface {
	StationID() int
	Name() string
	Kinds() []message.Kind
	Enabled(kind message.Kind) bool
	Position() geo.Point
	Snapshot() trigger.Snapshot
	Attributes(kind message.Kind) message.Attributes
}

// StationTypes selects the station type advertised per message family.
type StationTypes struct {
	CAM int
	MCM int
}

// RSUStationTypes are the station types roadside units advertise.
var RSUStationTypes = StationTypes{CAM: message.CAMStationTypeRoadSideUnit, MCM: message.MCMStationTypeRSU}

func (t StationTypes) forKind(kind message.Kind) int {
	if kind.IsMCM() {
		return t.MCM
	}
	return t.CAM
}

type base struct {
	id    int
	name  string
	kinds []message.Kind
	types StationTypes
	pos   geo.Point
	geo   geo.Position
}

func (b *base) StationID() int            { return b.id }
func (b *base) Name() string              { return b.name }
func (b *base) Kinds() []message.Kind     { return slices.Clone(b.kinds) }
func (b *base) Position() geo.Point       { return b.pos }
func (b *base) GeoPosition() geo.Position { return b.geo }

func (b *base) Enabled(kind message.Kind) bool {
	return slices.Contains(b.kinds, kind)
}

func (b *base) attributes(kind message.Kind) message.Attributes {
	pos := b.geo
	return message.Attributes{
		StationID:   b.id,
		StationType: b.types.forKind(kind),
		Position:    &pos,
	}
}
