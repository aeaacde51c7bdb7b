package transport

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"v2x-sim/internal/message"
)

// MQTT defaults.
const (
	DefaultMQTTPort   = 1883
	DefaultKeepAlive  = 60 * time.Second
	mqttTimeout       = 5 * time.Second
	disconnectQuiesce = 250
)

// mqttClient is the subset of mqtt.Client used here.
type mqttClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// MQTTOptions tune the broker connections.
type MQTTOptions struct {
	Port      int
	KeepAlive time.Duration
	Topics    Topics
	Logger    *slog.Logger
}

// MQTT holds one lazily connected client per station broker.
type MQTT struct {
	dir  *Directory
	opts MQTTOptions
	log  *slog.Logger
	dial func(*mqtt.ClientOptions) mqttClient

	mu      sync.Mutex
	clients map[int]mqttClient
}

// NewMQTT creates an MQTT transport. No connection is made until a station
// is first used.
func NewMQTT(dir *Directory, opts MQTTOptions) *MQTT {
	if opts.Port == 0 {
		opts.Port = DefaultMQTTPort
	}
	if opts.KeepAlive == 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.Topics == nil {
		opts.Topics = DefaultTopics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &MQTT{
		dir:     dir,
		opts:    opts,
		log:     opts.Logger,
		dial:    func(o *mqtt.ClientOptions) mqttClient { return mqtt.NewClient(o) },
		clients: make(map[int]mqttClient),
	}
}

func (m *MQTT) client(station int) (mqttClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[station]; ok {
		return c, nil
	}
	st, err := m.dir.Lookup(station)
	if err != nil {
		return nil, err
	}
	broker := "tcp://" + st.Host + ":" + strconv.Itoa(m.opts.Port)
	log := m.log.With("station_id", station, "broker", broker)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("v2x_sim_%d", station)).
		SetKeepAlive(m.opts.KeepAlive).
		SetConnectTimeout(mqttTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) { log.Debug("mqtt connected") }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { log.Warn("mqtt connection lost", "error", err) })
	c := m.dial(opts)
	if err := wait(c.Connect()); err != nil {
		log.Error("mqtt connect failed", "error", err)
		return nil, fmt.Errorf("connect station %d: %w", station, err)
	}
	log.Info("mqtt client connected")
	m.clients[station] = c
	return c, nil
}

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("timed out after %s", mqttTimeout)
	}
	return t.Error()
}

func (m *MQTT) Publish(station int, kind message.Kind, payload []byte) error {
	c, err := m.client(station)
	if err != nil {
		return err
	}
	topic, err := m.opts.Topics.Topic(kind)
	if err != nil {
		m.log.Error("topic not configured", "kind", kind)
		return err
	}
	if err := wait(c.Publish(topic, 0, false, payload)); err != nil {
		return fmt.Errorf("publish %s to station %d: %w", kind, station, err)
	}
	return nil
}

func (m *MQTT) Subscribe(station int, topic string, h Handler) error {
	c, err := m.client(station)
	if err != nil {
		return err
	}
	cb := func(_ mqtt.Client, msg mqtt.Message) { h(msg.Topic(), msg.Payload()) }
	if err := wait(c.Subscribe(topic, 0, cb)); err != nil {
		return fmt.Errorf("subscribe station %d to %s: %w", station, topic, err)
	}
	m.log.Info("subscribed", "station_id", station, "topic", topic)
	return nil
}

// Close disconnects every client.
func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		c.Disconnect(disconnectQuiesce)
		m.log.Debug("mqtt client disconnected", "station_id", id)
	}
	m.clients = make(map[int]mqttClient)
	return nil
}
