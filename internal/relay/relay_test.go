package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
)

type fakeConn struct {
	mu       sync.Mutex
	failures int
	subjects []string
	payloads [][]byte
	drained  bool
}

func (c *fakeConn) Publish(subj string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subj)
	if c.failures > 0 {
		c.failures--
		return errors.New("nats: connection closed")
	}
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

type fakeToken struct {
	mqtt.Token
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTT struct {
	mqtt.Client
	err          error
	topics       []string
	qos          []byte
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, _ bool, _ interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.qos = append(c.qos, qos)
	return &fakeToken{err: c.err}
}

func (c *fakeMQTT) Disconnect(uint) { c.disconnected = true }

type stubSink struct {
	name string
	err  error
	got  []string
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Publish(evt data.DomainEvent) error {
	s.got = append(s.got, evt.ID)
	return s.err
}
func (s *stubSink) Close() error { return nil }

var sample = data.DomainEvent{
	ID:       "evt-1",
	CameraID: "cam-7",
	Type:     data.EventTypeTrafficHeavy,
	Severity: 2,
	MetaJSON: `{"vehicleCount":14,"message":"heavy traffic"}`,
}

func TestNATSPublisher_SubjectAndEnvelope(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "monitor.events", 3)

	require.NoError(t, p.Publish(sample))
	require.Len(t, conn.payloads, 1)
	assert.Equal(t, "monitor.events.traffic_heavy", conn.subjects[0])

	var env Envelope
	require.NoError(t, json.Unmarshal(conn.payloads[0], &env))
	assert.Equal(t, "ts-vms-monitor", env.Source)
	assert.Equal(t, "evt-1", env.Event.ID)
	require.NotNil(t, env.Meta.VehicleCount)
	assert.Equal(t, 14, *env.Meta.VehicleCount)

	assert.Equal(t, "monitor.events", p.Subject(data.DomainEvent{}))
	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestNATSPublisher_Retries(t *testing.T) {
	conn := &fakeConn{failures: 2}
	p := NewNATSPublisher(conn, "monitor.events", 3)
	p.backoff = time.Millisecond

	require.NoError(t, p.Publish(sample))
	assert.Len(t, conn.subjects, 3)

	conn.failures = 10
	err := p.Publish(sample)
	assert.ErrorContains(t, err, "after 3 retries")
	assert.Len(t, conn.subjects, 3+4)
}

func TestMQTTPublisher(t *testing.T) {
	client := &fakeMQTT{}
	p := NewMQTTPublisher(client, "monitor/events", 1)

	require.NoError(t, p.Publish(sample))
	assert.Equal(t, []string{"monitor/events/cam-7"}, client.topics)
	assert.Equal(t, []byte{1}, client.qos)

	client.err = errors.New("not connected")
	assert.ErrorContains(t, p.Publish(sample), "monitor/events/cam-7")

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

func TestFanout_IsolatesFailingSink(t *testing.T) {
	bad := &stubSink{name: "bad", err: errors.New("down")}
	good := &stubSink{name: "good"}
	f := NewFanout(zap.NewNop(), bad, good)

	err := f.Publish(sample)
	assert.ErrorContains(t, err, "bad: down")
	assert.Equal(t, []string{"evt-1"}, good.got)

	f.OnEvent(data.DomainEvent{ID: "evt-2"})
	assert.Equal(t, []string{"evt-1", "evt-2"}, good.got)
	assert.Equal(t, 2, f.Len())
	assert.NoError(t, f.Close())
}
