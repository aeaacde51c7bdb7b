// Package transport delivers encoded payloads to per-station brokers and
// feeds inbound manoeuvre coordination traffic back to the simulator.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"v2x-sim/internal/message"
)

var (
	// ErrUnknownStation is returned when a station has no directory entry.
	ErrUnknownStation = errors.New("unknown station")
	// ErrNoTopic is returned when a message kind has no configured topic.
	ErrNoTopic = errors.New("no topic for message kind")
)

// Default broker topics.
const (
	TopicCAM  = "vanetza/in/cam_full"
	TopicMCM  = "vanetza/in/mcm"
	TopicDENM = "vanetza/in/denm"
)

// Handler receives a raw payload delivered on topic.
type Handler func(topic string, payload []byte)

// Transport publishes payloads to stations and subscribes to station topics.
type Transport interface {
	Publish(station int, kind message.Kind, payload []byte) error
	Subscribe(station int, topic string, h Handler) error
	Close() error
}

// Topics maps message kinds to broker topics.
type Topics map[message.Kind]string

// DefaultTopics routes CAM to the full-CAM topic and every MCM kind to the
// shared MCM topic.
func DefaultTopics() Topics {
	t := Topics{message.KindCAM: TopicCAM}
	for _, k := range message.AllKinds {
		if k.IsMCM() {
			t[k] = TopicMCM
		}
	}
	return t
}

// Topic resolves the topic for kind.
func (t Topics) Topic(kind message.Kind) (string, error) {
	topic, ok := t[kind]
	if !ok || topic == "" {
		return "", fmt.Errorf("%s: %w", kind, ErrNoTopic)
	}
	return topic, nil
}

// Station is one broker endpoint.
type Station struct {
	ID   int    `json:"id"`
	Host string `json:"host"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// Directory maps station ids to broker hosts. Lookups for missing stations
// are logged once per id.
type Directory struct {
	stations map[int]Station
	log      *slog.Logger

	mu      sync.Mutex
	missing map[int]bool
}

// NewDirectory builds a directory from a list of stations.
func NewDirectory(stations []Station, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	m := make(map[int]Station, len(stations))
	for _, s := range stations {
		m[s.ID] = s
	}
	return &Directory{stations: m, log: log, missing: make(map[int]bool)}
}

// Lookup returns the station entry. A missing or host-less entry yields
// ErrUnknownStation and a single warning per station id.
func (d *Directory) Lookup(id int) (Station, error) {
	s, ok := d.stations[id]
	if ok && s.Host != "" {
		return s, nil
	}
	d.mu.Lock()
	first := !d.missing[id]
	d.missing[id] = true
	d.mu.Unlock()
	if first {
		reason := "not configured"
		if ok {
			reason = "no host configured"
		}
		d.log.Warn("station unavailable, further warnings suppressed", "station_id", id, "reason", reason)
	}
	return Station{}, fmt.Errorf("station %d: %w", id, ErrUnknownStation)
}

// Stations lists entries ordered by id.
func (d *Directory) Stations() []Station {
	out := make([]Station, 0, len(d.stations))
	for _, s := range d.stations {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
