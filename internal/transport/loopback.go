package transport

import (
	"net"
	"sync"

	"v2x-sim/internal/message"
)

// Published is a payload recorded by the loopback transport.
type Published struct {
	Station int
	Kind    message.Kind
	Topic   string
	Payload []byte
}

type busKey struct {
	station int
	topic   string
}

// Loopback keeps one in-memory bus per station, mirroring one broker per
// station. Delivery is synchronous on the publishing goroutine.
type Loopback struct {
	dir    *Directory
	topics Topics

	mu     sync.Mutex
	subs   map[busKey][]Handler
	sent   []Published
	closed bool
}

// NewLoopback creates a loopback transport.
func NewLoopback(dir *Directory, topics Topics) *Loopback {
	if topics == nil {
		topics = DefaultTopics()
	}
	return &Loopback{dir: dir, topics: topics, subs: make(map[busKey][]Handler)}
}

func (l *Loopback) Publish(station int, kind message.Kind, payload []byte) error {
	if _, err := l.dir.Lookup(station); err != nil {
		return err
	}
	topic, err := l.topics.Topic(kind)
	if err != nil {
		return err
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return net.ErrClosed
	}
	buf := append([]byte(nil), payload...)
	l.sent = append(l.sent, Published{Station: station, Kind: kind, Topic: topic, Payload: buf})
	handlers := append([]Handler(nil), l.subs[busKey{station, topic}]...)
	l.mu.Unlock()
	for _, h := range handlers {
		h(topic, buf)
	}
	return nil
}

func (l *Loopback) Subscribe(station int, topic string, h Handler) error {
	if _, err := l.dir.Lookup(station); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return net.ErrClosed
	}
	k := busKey{station, topic}
	l.subs[k] = append(l.subs[k], h)
	return nil
}

// Sent returns everything published so far.
func (l *Loopback) Sent() []Published {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Published(nil), l.sent...)
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.subs = make(map[busKey][]Handler)
	return nil
}
