package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
	"github.com/Ddedalus/syringe-pump/internal/simulator"
)

func recordSession(t *testing.T, r protocol.Recorder) {
	t.Helper()
	ctx := context.Background()
	d := protocol.New(simulator.New(simulator.DefaultConfig()), protocol.WithRecorder(r))
	require.NoError(t, d.Initialise(ctx))
	_, err := d.Send(ctx, "version")
	require.NoError(t, err)
	_, err = d.Send(ctx, "bogus")
	require.Error(t, err)
}

func TestMemory_RecordsDriverExchanges(t *testing.T) {
	mem := NewMemory()
	recordSession(t, mem)

	entries := mem.Entries()
	require.Len(t, entries, 4)

	assert.Equal(t, "poll on", entries[0].Frame)
	assert.Equal(t, "@version", entries[2].Frame)
	assert.Equal(t, "version", entries[2].Command)
	assert.Equal(t, "success", entries[2].Outcome)
	assert.Equal(t, ":", entries[2].Prompt)
	assert.Contains(t, entries[2].Message, "Serial number: SIM0001")

	assert.Equal(t, "command error", entries[3].Outcome)
	assert.Empty(t, entries[3].Error)

	ids := map[string]bool{}
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		ids[e.ID] = true
	}
	assert.Len(t, ids, 4)

	mem.Reset()
	assert.Empty(t, mem.Entries())
}

func TestNewEntry_IOError(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := NewEntry(protocol.Record{
		Command:  "irun",
		Frame:    "@irun\r\n",
		Err:      errors.New("read timeout"),
		Started:  started,
		Duration: 1500 * time.Microsecond,
	})

	assert.Equal(t, OutcomeIOError, e.Outcome)
	assert.Equal(t, "read timeout", e.Error)
	assert.Equal(t, "@irun", e.Frame)
	assert.Equal(t, started, e.Time)
	assert.InDelta(t, 1.5, e.DurationMS, 1e-9)
}

func TestYAMLRecorder(t *testing.T) {
	var buf bytes.Buffer
	r := NewYAMLRecorder(&buf, "session-1")
	recordSession(t, r)
	require.NoError(t, r.Close())

	entries, err := ReadYAML(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "session-1", entries[1].Session)
	assert.Equal(t, "nvram none", entries[1].Command)
	assert.Equal(t, "command error", entries[3].Outcome)
}

func TestOpenYAMLFile_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "transcript.yaml")

	for _, session := range []string{"a", "b"} {
		r, err := OpenYAMLFile(path, session)
		require.NoError(t, err)
		recordSession(t, r)
		require.NoError(t, r.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	entries, err := ReadYAML(f)
	require.NoError(t, err)
	require.Len(t, entries, 8)
	assert.Equal(t, "a", entries[0].Session)
	assert.Equal(t, "b", entries[7].Session)
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) Record(protocol.Record) error {
	f.calls++
	return errors.New("disk full")
}

func TestMulti(t *testing.T) {
	mem := NewMemory()
	bad := &failingRecorder{}
	r := Multi(bad, nil, mem)

	err := r.Record(protocol.Record{Command: "stp"})
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, mem.Entries(), 1)

	assert.NoError(t, Multi().Record(protocol.Record{}))
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(complete bool, err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements only the calls the recorder makes.
type fakeClient struct {
	mqtt.Client
	token        *fakeToken
	messages     []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestMQTTRecorder(t *testing.T) {
	client := &fakeClient{token: newFakeToken(true, nil)}
	r := NewMQTTRecorder(client, MQTTConfig{Topic: "lab/pump1/transcript", QoS: 1}, "s1")
	recordSession(t, r)

	require.Len(t, client.messages, 4)
	msg := client.messages[2]
	assert.Equal(t, "lab/pump1/transcript", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var e Entry
	require.NoError(t, json.Unmarshal(msg.payload, &e))
	assert.Equal(t, "version", e.Command)
	assert.Equal(t, "s1", e.Session)

	require.NoError(t, r.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTRecorder_Errors(t *testing.T) {
	client := &fakeClient{token: newFakeToken(false, nil)}
	r := NewMQTTRecorder(client, MQTTConfig{Topic: "t", Timeout: 10 * time.Millisecond}, "")
	assert.ErrorIs(t, r.Record(protocol.Record{Command: "stp"}), ErrPublishTimeout)

	client.token = newFakeToken(true, errors.New("not connected"))
	err := r.Record(protocol.Record{Command: "stp"})
	assert.ErrorContains(t, err, "not connected")
}

func TestDialMQTT_RequiresBrokerAndTopic(t *testing.T) {
	_, err := DialMQTT(MQTTConfig{Topic: "t"}, "")
	assert.Error(t, err)
	_, err = DialMQTT(MQTTConfig{Broker: "tcp://localhost:1883"}, "")
	assert.Error(t, err)
}
