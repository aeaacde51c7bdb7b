package transport

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"

	"v2x-sim/internal/logging"
	"v2x-sim/internal/message"
)

func testDirectory(buf *bytes.Buffer) *Directory {
	log := logging.Discard()
	if buf != nil {
		log = logging.NewWithWriter(buf, "debug", "text")
	}
	return NewDirectory([]Station{
		{ID: 0, Host: "192.168.98.10", Type: "rsu", Name: "RSU_Central"},
		{ID: 1, Host: "192.168.98.20", Type: "obu"},
		{ID: 5, Type: "obu"},
	}, log)
}

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics()
	if got, _ := topics.Topic(message.KindCAM); got != TopicCAM {
		t.Fatalf("cam topic %q", got)
	}
	for _, k := range []message.Kind{message.KindMCMRequest, message.KindMCMResponse, message.KindMCMTermination, message.KindMCMIntent} {
		if got, _ := topics.Topic(k); got != TopicMCM {
			t.Fatalf("%s topic %q", k, got)
		}
	}
	if _, err := topics.Topic("denm"); !errors.Is(err, ErrNoTopic) {
		t.Fatalf("expected ErrNoTopic, got %v", err)
	}
}

func TestDirectoryWarnsOncePerStation(t *testing.T) {
	var buf bytes.Buffer
	dir := testDirectory(&buf)
	for i := 0; i < 3; i++ {
		if _, err := dir.Lookup(9); !errors.Is(err, ErrUnknownStation) {
			t.Fatalf("expected ErrUnknownStation, got %v", err)
		}
	}
	if _, err := dir.Lookup(5); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("host-less station should be unknown, got %v", err)
	}
	if n := strings.Count(buf.String(), "station unavailable"); n != 2 {
		t.Fatalf("expected 2 warnings, got %d:\n%s", n, buf.String())
	}
	if st, err := dir.Lookup(0); err != nil || st.Name != "RSU_Central" {
		t.Fatalf("unexpected lookup %+v %v", st, err)
	}
	if ids := dir.Stations(); len(ids) != 3 || ids[0].ID != 0 || ids[2].ID != 5 {
		t.Fatalf("unexpected stations %+v", ids)
	}
}

func TestLoopbackDeliversPerStation(t *testing.T) {
	lb := NewLoopback(testDirectory(nil), nil)
	var got []string
	if err := lb.Subscribe(0, TopicMCM, func(topic string, p []byte) { got = append(got, string(p)) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := lb.Publish(0, message.KindMCMRequest, []byte("req")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := lb.Publish(1, message.KindMCMResponse, []byte("resp")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := lb.Publish(0, message.KindCAM, []byte("cam")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 1 || got[0] != "req" {
		t.Fatalf("expected only station 0 mcm traffic, got %v", got)
	}
	if len(lb.Sent()) != 3 {
		t.Fatalf("expected 3 recorded sends, got %d", len(lb.Sent()))
	}
	if err := lb.Publish(42, message.KindCAM, nil); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("expected unknown station, got %v", err)
	}
	_ = lb.Close()
	if err := lb.Publish(0, message.KindCAM, nil); err == nil {
		t.Fatalf("expected error after close")
	}
}

type fakeToken struct{ err error }

func (f fakeToken) Wait() bool                     { return true }
func (f fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (f fakeToken) Error() error { return f.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeMQTT struct {
	opts         *mqtt.ClientOptions
	connectErr   error
	published    map[string][]byte
	handlers     map[string]mqtt.MessageHandler
	disconnected bool
}

func (f *fakeMQTT) Connect() mqtt.Token { return fakeToken{f.connectErr} }
func (f *fakeMQTT) Disconnect(uint)     { f.disconnected = true }
func (f *fakeMQTT) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.published[topic] = payload.([]byte)
	return fakeToken{}
}
func (f *fakeMQTT) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.handlers[topic] = cb
	return fakeToken{}
}

func TestMQTTLazyClientsAndClose(t *testing.T) {
	m := NewMQTT(testDirectory(nil), MQTTOptions{Logger: logging.Discard()})
	dialed := map[string]*fakeMQTT{}
	m.dial = func(o *mqtt.ClientOptions) mqttClient {
		f := &fakeMQTT{opts: o, published: map[string][]byte{}, handlers: map[string]mqtt.MessageHandler{}}
		dialed[o.ClientID] = f
		return f
	}
	if err := m.Publish(1, message.KindCAM, []byte("{}")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := m.Publish(1, message.KindMCMResponse, []byte("r")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	f, ok := dialed["v2x_sim_1"]
	if !ok || len(dialed) != 1 {
		t.Fatalf("expected one client for station 1, got %v", dialed)
	}
	if got := f.opts.Servers[0].String(); got != "tcp://192.168.98.20:1883" {
		t.Fatalf("unexpected broker %s", got)
	}
	if f.opts.KeepAlive != 60 {
		t.Fatalf("unexpected keepalive %d", f.opts.KeepAlive)
	}
	if string(f.published[TopicCAM]) != "{}" || string(f.published[TopicMCM]) != "r" {
		t.Fatalf("unexpected publishes %v", f.published)
	}

	var inbound []byte
	if err := m.Subscribe(0, TopicMCM, func(_ string, p []byte) { inbound = p }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	dialed["v2x_sim_0"].handlers[TopicMCM](nil, fakeMessage{topic: TopicMCM, payload: []byte("x")})
	if string(inbound) != "x" {
		t.Fatalf("handler not invoked, got %q", inbound)
	}

	if err := m.Publish(7, message.KindCAM, nil); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("expected unknown station, got %v", err)
	}
	_ = m.Close()
	if !f.disconnected || !dialed["v2x_sim_0"].disconnected {
		t.Fatalf("expected all clients disconnected")
	}
}

func TestMQTTConnectFailureIsRetried(t *testing.T) {
	m := NewMQTT(testDirectory(nil), MQTTOptions{Logger: logging.Discard()})
	attempts := 0
	m.dial = func(o *mqtt.ClientOptions) mqttClient {
		attempts++
		return &fakeMQTT{connectErr: errors.New("refused"), published: map[string][]byte{}}
	}
	for i := 0; i < 2; i++ {
		if err := m.Publish(1, message.KindCAM, nil); err == nil {
			t.Fatalf("expected connect error")
		}
	}
	if attempts != 2 {
		t.Fatalf("expected a fresh connect per attempt, got %d", attempts)
	}
}

type fakeNATS struct {
	published map[string][]byte
	handlers  map[string]nats.MsgHandler
	drained   bool
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	f.published[subj] = data
	return nil
}
func (f *fakeNATS) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.handlers[subj] = cb
	return nil, nil
}
func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestNATSSubjectsAndDrain(t *testing.T) {
	n := NewNATS(testDirectory(nil), 0, nil, logging.Discard())
	fake := &fakeNATS{published: map[string][]byte{}, handlers: map[string]nats.MsgHandler{}}
	var urls []string
	n.dial = func(url string) (natsConn, error) {
		urls = append(urls, url)
		return fake, nil
	}
	if err := n.Publish(0, message.KindMCMRequest, []byte("req")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if string(fake.published["vanetza.in.mcm"]) != "req" {
		t.Fatalf("unexpected publishes %v", fake.published)
	}
	var got string
	if err := n.Subscribe(0, TopicMCM, func(topic string, p []byte) { got = topic + ":" + string(p) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	fake.handlers["vanetza.in.mcm"](&nats.Msg{Data: []byte("y")})
	if got != TopicMCM+":y" {
		t.Fatalf("unexpected delivery %q", got)
	}
	if len(urls) != 1 || urls[0] != "nats://192.168.98.10:4222" {
		t.Fatalf("unexpected dials %v", urls)
	}
	if err := n.Close(); err != nil || !fake.drained {
		t.Fatalf("expected drain, err=%v", err)
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("/vanetza/in/cam_full"); got != "vanetza.in.cam_full" {
		t.Fatalf("unexpected subject %q", got)
	}
}
