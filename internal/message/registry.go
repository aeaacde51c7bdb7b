package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrNoCodec is returned when no builder is registered for a kind.
var ErrNoCodec = errors.New("no codec registered")

// BuildFunc turns an attribute record into a payload value ready for JSON
// encoding. genDelta is the generation timestamp of the current tick.
type BuildFunc func(genDelta int, a Attributes) any

// Registry maps message kinds to builders. It is populated explicitly at
// construction and read-only afterwards.
type Registry struct {
	builders map[Kind]BuildFunc
}

// NewRegistry returns a registry holding every built-in message kind.
func NewRegistry() *Registry {
	return NewRegistryWith(map[Kind]BuildFunc{
		KindCAM:            BuildCAM,
		KindMCMIntent:      BuildIntent,
		KindMCMRequest:     BuildRequest,
		KindMCMResponse:    BuildResponse,
		KindMCMTermination: BuildTermination,
	})
}

// NewRegistryWith builds a registry from an explicit table.
func NewRegistryWith(builders map[Kind]BuildFunc) *Registry {
	m := make(map[Kind]BuildFunc, len(builders))
	for k, b := range builders {
		m[k] = b
	}
	return &Registry{builders: m}
}

// Build returns the payload for kind or ErrNoCodec.
func (r *Registry) Build(kind Kind, genDelta int, a Attributes) (any, error) {
	b, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCodec, kind)
	}
	return b(genDelta, a), nil
}

// Encode builds and JSON-encodes the payload for kind.
func (r *Registry) Encode(kind Kind, genDelta int, a Attributes) ([]byte, error) {
	p, err := r.Build(kind, genDelta, a)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return data, nil
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.builders[kind]
	return ok
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.builders))
	for k := range r.builders {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// DecodeMCM parses an inbound MCM payload.
func DecodeMCM(data []byte) (*MCM, error) {
	var m MCM
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode mcm: %w", err)
	}
	return &m, nil
}
