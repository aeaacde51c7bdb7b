// Package orchestrator runs the simulation loop: it advances the physics
// engine, keeps entity state current, evaluates triggers, publishes encoded
// messages and reacts to inbound manoeuvre coordination traffic.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

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

// Mode selects whether V2X entities take part in the run.
type Mode string

const (
	ModeV2X      Mode = "V2X"
	ModeBaseline Mode = "BASELINE"
)

// ParseMode accepts the mode names case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeV2X, ModeBaseline:
		return m, nil
	}
	return "", fmt.Errorf("unknown simulation mode %q", s)
}

// Reaction holds the physical actions applied by vehicles taking part in a
// manoeuvre.
type Reaction struct {
	SafetySpeed       float64
	SlowdownDuration  float64
	PrioritySpeed     float64
	PrioritySpeedMode int

	StopColor     physics.Color
	PriorityColor physics.Color

	// DefaultColor is restored on termination unless Colors has an entry
	// for the vehicle's physics id.
	DefaultColor physics.Color
	Colors       map[string]physics.Color
}

func (r Reaction) colorFor(physicsID string) physics.Color {
	if c, ok := r.Colors[physicsID]; ok {
		return c
	}
	return r.DefaultColor
}

// Settings configures an Orchestrator.
type Settings struct {
	Mode Mode

	// RealTimeDelay paces Run between ticks. Zero runs as fast as possible.
	RealTimeDelay time.Duration
	// MaxTime stops Run once the simulation clock reaches it. Zero disables.
	MaxTime float64

	RSUs    []entity.RSUConfig
	Vehicle entity.VehicleConfig

	// Controlled lists the station ids of vehicles taking part in V2X.
	Controlled []int

	CAM      trigger.CAMParams
	Conflict trigger.ConflictParams
	Reaction Reaction

	ListenStation int
	ListenTopic   string
	InboxSize     int
}

// DefaultSettings is the reference intersection deployment.
func DefaultSettings() Settings {
	return Settings{
		Mode: ModeV2X,
		RSUs: []entity.RSUConfig{{
			StationID:         0,
			Name:              "RSU_Central",
			Position:          geo.Point{X: 500, Y: 1500},
			BroadcastInterval: 1.0,
			Kinds:             []message.Kind{message.KindCAM, message.KindMCMRequest, message.KindMCMTermination},
			FirstManoeuvreID:  10,
			RequestCost:       50,
		}},
		Vehicle: entity.VehicleConfig{
			StationType: message.CAMStationTypePassengerCar,
			Length:      8,
			Width:       2,
			Kinds:       []message.Kind{message.KindCAM, message.KindMCMResponse},
		},
		Controlled: []int{1, 2},
		CAM:        trigger.DefaultCAMParams(),
		Conflict:   trigger.DefaultConflictParams(),
		Reaction: Reaction{
			SafetySpeed:       4.0,
			SlowdownDuration:  1.0,
			PrioritySpeed:     14.0,
			PrioritySpeedMode: physics.SpeedModeRelaxed,
			StopColor:         physics.ColorOrange,
			PriorityColor:     physics.ColorBlue,
			DefaultColor:      physics.ColorRed,
			Colors:            map[string]physics.Color{"2": physics.ColorGreen},
		},
		ListenStation: 0,
		ListenTopic:   transport.TopicMCM,
		InboxSize:     256,
	}
}

// Options carries the collaborators of an Orchestrator.
type Options struct {
	Engine    physics.Engine
	Transport transport.Transport
	Registry  *message.Registry
	Writer    sink.Writer
	Logger    *slog.Logger
	RunID     string
	Now       func() time.Time
}

type inbound struct {
	topic   string
	payload []byte
}

// Orchestrator owns every entity and drives one tick at a time. Tick work
// runs on a single goroutine; transport callbacks only feed the inbox.
type Orchestrator struct {
	settings  Settings
	engine    physics.Engine
	transport transport.Transport
	registry  *message.Registry
	writer    sink.Writer
	log       *slog.Logger
	now       func() time.Time
	gen       *telemetry.Generator

	inbox   chan inbound
	dropped atomic.Int64

	mu        sync.Mutex
	rsus      []*entity.RSU
	periodic  map[int]*trigger.Periodic
	cam       *trigger.CAM
	conflict  *trigger.Conflict
	term      *trigger.Termination
	store     *trigger.Store
	vehicles  []*entity.Vehicle
	byPhysics map[string]*entity.Vehicle
	byStation map[int]*entity.Vehicle
	genDelta  int
	ticks     int
	counters  Counters

	closeOnce sync.Once
	closeErr  error
}

// New builds an orchestrator. RSU geographic positions are resolved through
// the engine when not supplied.
func New(s Settings, opts Options) (*Orchestrator, error) {
	if opts.Engine == nil {
		return nil, errors.New("orchestrator: physics engine required")
	}
	if s.Mode == "" {
		s.Mode = ModeV2X
	}
	mode, err := ParseMode(string(s.Mode))
	if err != nil {
		return nil, err
	}
	s.Mode = mode
	if s.Mode == ModeV2X && opts.Transport == nil {
		return nil, errors.New("orchestrator: transport required in V2X mode")
	}
	if s.InboxSize <= 0 {
		s.InboxSize = DefaultSettings().InboxSize
	}
	if s.ListenTopic == "" {
		s.ListenTopic = transport.TopicMCM
	}
	s.Conflict.Controlled = slices.Clone(s.Controlled)

	if opts.Registry == nil {
		opts.Registry = message.NewRegistry()
	}
	if opts.Writer == nil {
		opts.Writer = discardWriter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	gen := telemetry.NewGenerator(opts.RunID)
	gen.Now = opts.Now

	o := &Orchestrator{
		settings:  s,
		engine:    opts.Engine,
		transport: opts.Transport,
		registry:  opts.Registry,
		writer:    opts.Writer,
		log:       opts.Logger,
		now:       opts.Now,
		gen:       gen,
		inbox:     make(chan inbound, s.InboxSize),
		periodic:  make(map[int]*trigger.Periodic),
		cam:       trigger.NewCAM(s.CAM),
		conflict:  trigger.NewConflict(s.Conflict),
		term:      trigger.NewTermination(),
		store:     trigger.NewStore(),
		byPhysics: make(map[string]*entity.Vehicle),
		byStation: make(map[int]*entity.Vehicle),
		counters:  Counters{Sent: make(map[message.Kind]int)},
	}
	if s.Mode == ModeV2X {
		for _, c := range s.RSUs {
			if c.Geo == (geo.Position{}) {
				pos, err := o.engine.ToGeo(c.Position)
				if err != nil {
					o.log.Warn("rsu position not converted", "station_id", c.StationID, "err", err)
				}
				c.Geo = pos
			}
			r := entity.NewRSU(c)
			for _, kind := range r.Kinds() {
				if !o.registry.Has(kind) {
					o.log.Warn("rsu kind has no codec", "station_id", r.StationID(), "kind", kind)
				}
			}
			o.rsus = append(o.rsus, r)
			o.periodic[r.StationID()] = trigger.NewPeriodic(message.KindCAM, r.BroadcastInterval())
		}
	}
	return o, nil
}

// Mode reports the configured simulation mode.
func (o *Orchestrator) Mode() Mode { return o.settings.Mode }

func (o *Orchestrator) v2x() bool { return o.settings.Mode == ModeV2X }

// Start subscribes the inbound negotiation listener. It does nothing in
// BASELINE mode.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.v2x() {
		return nil
	}
	if err := o.transport.Subscribe(o.settings.ListenStation, o.settings.ListenTopic, o.Push); err != nil {
		return fmt.Errorf("subscribe %s on station %d: %w", o.settings.ListenTopic, o.settings.ListenStation, err)
	}
	o.log.Info("listening for manoeuvre coordination", "station_id", o.settings.ListenStation, "topic", o.settings.ListenTopic)
	return nil
}

// Push queues an inbound payload without blocking. It is safe to call from
// any goroutine; when the inbox is full the payload is dropped.
func (o *Orchestrator) Push(topic string, payload []byte) {
	select {
	case o.inbox <- inbound{topic: topic, payload: slices.Clone(payload)}:
	default:
		o.dropped.Add(1)
		o.log.Warn("inbox full, payload dropped", "topic", topic, "bytes", len(payload))
	}
}

// Run ticks until the context is cancelled, the physics engine has no
// vehicles left, or MaxTime is reached. The engine and transport are closed
// on return.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer func() {
		if err := o.Close(); err != nil {
			o.log.Error("shutdown failed", "err", err)
		}
	}()
	if err := o.Start(ctx); err != nil {
		o.log.Warn("inbound negotiation disabled", "err", err)
	}
	o.log.Info("starting orchestrator", "mode", o.settings.Mode, "delay", o.settings.RealTimeDelay)

	var pace <-chan time.Time
	if o.settings.RealTimeDelay > 0 {
		t := time.NewTicker(o.settings.RealTimeDelay)
		defer t.Stop()
		pace = t.C
	}
	for {
		select {
		case <-ctx.Done():
			o.log.Info("stopping orchestrator", "sim_time", o.engine.Time())
			return nil
		default:
		}
		if o.engine.Pending() <= 0 {
			o.log.Info("simulation finished", "sim_time", o.engine.Time(), "ticks", o.Ticks())
			return nil
		}
		if o.settings.MaxTime > 0 && o.engine.Time() >= o.settings.MaxTime {
			o.log.Info("time limit reached", "sim_time", o.engine.Time())
			return nil
		}
		if err := o.Tick(ctx); err != nil {
			return err
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				o.log.Info("stopping orchestrator", "sim_time", o.engine.Time())
				return nil
			case <-pace:
			}
		}
	}
}

// Tick runs one simulation step: generation timestamp, drain inbox, physics
// step, RSU pass, vehicle pass, cleanup of departed vehicles. Every message
// sent during the tick carries the same generation timestamp, taken when the
// tick starts.
func (o *Orchestrator) Tick(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.v2x() {
		start := o.engine.Time()
		o.genDelta = geo.GenerationDeltaTime(o.now(), start)
		o.drainInbox(start)
	}
	if err := o.engine.Step(ctx); err != nil {
		return fmt.Errorf("physics step: %w", err)
	}
	o.ticks++
	now := o.engine.Time()

	observed := o.observe(o.engine.Vehicles())
	if o.v2x() {
		o.rsuPass(now)
		o.vehiclePass(now, observed)
		o.cleanup(now, observed)
	}
	o.writeStates(now, observed)
	return nil
}

// Close shuts down the engine and the transport. It is safe to call twice.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		var errs []error
		if o.transport != nil {
			if err := o.transport.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transport: %w", err))
			}
		}
		if err := o.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close physics: %w", err))
		}
		o.closeErr = errors.Join(errs...)
	})
	return o.closeErr
}

// Ticks is the number of completed ticks.
func (o *Orchestrator) Ticks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ticks
}

func (o *Orchestrator) isControlled(stationID int) bool {
	return lo.Contains(o.settings.Controlled, stationID)
}

type discardWriter struct{}

func (discardWriter) WriteMessage(telemetry.MessageRow) error         { return nil }
func (discardWriter) WriteNegotiation(telemetry.NegotiationRow) error { return nil }
