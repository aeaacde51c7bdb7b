package transport

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"v2x-sim/internal/message"
)

// DefaultNATSPort is the client port used when none is configured.
const DefaultNATSPort = nats.DefaultPort

// natsConn is the subset of *nats.Conn used here.
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
}

// Subject converts a slash separated topic into a NATS subject.
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

// NATS holds one lazily established connection per station server.
type NATS struct {
	dir    *Directory
	topics Topics
	port   int
	log    *slog.Logger
	dial   func(url string) (natsConn, error)

	mu    sync.Mutex
	conns map[int]natsConn
}

// NewNATS creates a NATS transport.
func NewNATS(dir *Directory, port int, topics Topics, log *slog.Logger) *NATS {
	if port == 0 {
		port = DefaultNATSPort
	}
	if topics == nil {
		topics = DefaultTopics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &NATS{
		dir:    dir,
		topics: topics,
		port:   port,
		log:    log,
		dial: func(url string) (natsConn, error) {
			return nats.Connect(url, nats.Name("v2x-sim"))
		},
		conns: make(map[int]natsConn),
	}
}

func (n *NATS) conn(station int) (natsConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.conns[station]; ok {
		return c, nil
	}
	st, err := n.dir.Lookup(station)
	if err != nil {
		return nil, err
	}
	url := "nats://" + st.Host + ":" + strconv.Itoa(n.port)
	c, err := n.dial(url)
	if err != nil {
		n.log.Error("nats connect failed", "station_id", station, "url", url, "error", err)
		return nil, fmt.Errorf("connect station %d: %w", station, err)
	}
	n.log.Info("nats connected", "station_id", station, "url", url)
	n.conns[station] = c
	return c, nil
}

func (n *NATS) Publish(station int, kind message.Kind, payload []byte) error {
	c, err := n.conn(station)
	if err != nil {
		return err
	}
	topic, err := n.topics.Topic(kind)
	if err != nil {
		return err
	}
	if err := c.Publish(Subject(topic), payload); err != nil {
		return fmt.Errorf("publish %s to station %d: %w", kind, station, err)
	}
	return nil
}

func (n *NATS) Subscribe(station int, topic string, h Handler) error {
	c, err := n.conn(station)
	if err != nil {
		return err
	}
	_, err = c.Subscribe(Subject(topic), func(m *nats.Msg) { h(topic, m.Data) })
	if err != nil {
		return fmt.Errorf("subscribe station %d to %s: %w", station, topic, err)
	}
	return nil
}

// Close drains every connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var first error
	for id, c := range n.conns {
		if err := c.Drain(); err != nil && first == nil {
			first = fmt.Errorf("drain station %d: %w", id, err)
		}
	}
	n.conns = make(map[int]natsConn)
	return first
}
