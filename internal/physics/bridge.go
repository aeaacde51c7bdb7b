package physics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"v2x-sim/internal/geo"
)

// Bridge operations understood by the TraCI-side client.
const (
	opStep      = "step"
	opGeo       = "geo"
	opSetSpeed  = "set_speed"
	opSlowDown  = "slow_down"
	opSpeedMode = "speed_mode"
	opColor     = "color"
	opEdge      = "edge"
	opNextStops = "next_stops"
	opResume    = "resume"
	opClose     = "close"
)

type bridgeRequest struct {
	Op       string  `json:"op"`
	ID       string  `json:"id,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Mode     int     `json:"mode,omitempty"`
	Color    *Color  `json:"color,omitempty"`
}

type bridgeResponse struct {
	OK       bool           `json:"ok"`
	Error    string         `json:"error,omitempty"`
	Unknown  bool           `json:"unknown,omitempty"`
	Time     float64        `json:"time,omitempty"`
	Pending  int            `json:"pending,omitempty"`
	Vehicles []VehicleState `json:"vehicles,omitempty"`
	Lat      float64        `json:"lat,omitempty"`
	Lon      float64        `json:"lon,omitempty"`
	Edge     string         `json:"edge,omitempty"`
	Stops    int            `json:"stops,omitempty"`
}

// Bridge drives an external traffic simulator over a TCP connection. Every
// call is one request frame answered by one response frame.
type Bridge struct {
	mu       sync.Mutex
	conn     net.Conn
	time     float64
	pending  int
	vehicles []VehicleState
}

// Listen accepts a single TraCI-side client on addr.
func Listen(ctx context.Context, addr string) (*Bridge, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	defer ln.Close()
	slog.Info("waiting for traffic simulator", "addr", ln.Addr().String())

	type accepted struct {
		conn net.Conn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		c, err := ln.Accept()
		ch <- accepted{c, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return nil, fmt.Errorf("failed to accept connection: %w", a.err)
		}
		slog.Info("traffic simulator connected", "remote", a.conn.RemoteAddr().String())
		return NewBridge(a.conn), nil
	}
}

// NewBridge wraps an established connection.
func NewBridge(conn net.Conn) *Bridge {
	return &Bridge{conn: conn, pending: -1}
}

func (b *Bridge) call(req bridgeRequest) (bridgeResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var resp bridgeResponse
	if b.conn == nil {
		return resp, net.ErrClosed
	}
	if err := writeFrame(b.conn, req); err != nil {
		return resp, fmt.Errorf("%s: %w", req.Op, err)
	}
	if err := readFrame(b.conn, &resp); err != nil {
		return resp, fmt.Errorf("%s: %w", req.Op, err)
	}
	if resp.Unknown {
		return resp, fmt.Errorf("%s %s: %w", req.Op, req.ID, ErrUnknownVehicle)
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s: %s", req.Op, resp.Error)
	}
	return resp, nil
}

func (b *Bridge) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := b.call(bridgeRequest{Op: opStep})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.time = resp.Time
	b.pending = resp.Pending
	b.vehicles = resp.Vehicles
	b.mu.Unlock()
	return nil
}

func (b *Bridge) Time() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.time
}

func (b *Bridge) Vehicles() []VehicleState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]VehicleState, len(b.vehicles))
	copy(out, b.vehicles)
	return out
}

// Pending returns the simulator's expected vehicle count, or 1 before the
// first step so that run loops do not stop early.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending < 0 {
		return 1
	}
	return b.pending
}

func (b *Bridge) ToGeo(p geo.Point) (geo.Position, error) {
	resp, err := b.call(bridgeRequest{Op: opGeo, X: p.X, Y: p.Y})
	if err != nil {
		return geo.Position{}, err
	}
	return geo.Position{Lat: resp.Lat, Lon: resp.Lon}, nil
}

func (b *Bridge) SetSpeed(id string, speed float64) error {
	_, err := b.call(bridgeRequest{Op: opSetSpeed, ID: id, Speed: speed})
	return err
}

func (b *Bridge) SlowDown(id string, speed, duration float64) error {
	_, err := b.call(bridgeRequest{Op: opSlowDown, ID: id, Speed: speed, Duration: duration})
	return err
}

func (b *Bridge) SetSpeedMode(id string, mode int) error {
	_, err := b.call(bridgeRequest{Op: opSpeedMode, ID: id, Mode: mode})
	return err
}

func (b *Bridge) SetColor(id string, c Color) error {
	_, err := b.call(bridgeRequest{Op: opColor, ID: id, Color: &c})
	return err
}

func (b *Bridge) Edge(id string) (string, error) {
	resp, err := b.call(bridgeRequest{Op: opEdge, ID: id})
	return resp.Edge, err
}

func (b *Bridge) HasPendingStops(id string) (bool, error) {
	resp, err := b.call(bridgeRequest{Op: opNextStops, ID: id})
	return resp.Stops > 0, err
}

func (b *Bridge) Resume(id string) error {
	_, err := b.call(bridgeRequest{Op: opResume, ID: id})
	return err
}

// Close asks the simulator to shut down and closes the connection.
func (b *Bridge) Close() error {
	_, callErr := b.call(bridgeRequest{Op: opClose})
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	if callErr != nil && !errors.Is(callErr, net.ErrClosed) {
		slog.Debug("bridge close request failed", "error", callErr)
	}
	return err
}
