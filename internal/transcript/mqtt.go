package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTConfig describes the broker the transcript is published to.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Timeout  time.Duration
}

// MQTTRecorder publishes each exchange as a JSON message.
type MQTTRecorder struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	session string
}

// DialMQTT connects to the broker and returns a recorder publishing to cfg.Topic.
func DialMQTT(cfg MQTTConfig, session string) (*MQTTRecorder, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, errors.New("mqtt broker and topic are required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return NewMQTTRecorder(client, cfg, session), nil
}

// NewMQTTRecorder publishes through an already connected client.
func NewMQTTRecorder(client mqtt.Client, cfg MQTTConfig, session string) *MQTTRecorder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MQTTRecorder{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		timeout: timeout,
		session: session,
	}
}

// Record publishes the exchange and waits for the broker.
func (r *MQTTRecorder) Record(rec protocol.Record) error {
	e := NewEntry(rec)
	e.Session = r.session

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode transcript entry: %w", err)
	}

	token := r.client.Publish(r.topic, r.qos, false, payload)
	if !token.WaitTimeout(r.timeout) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish transcript entry: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (r *MQTTRecorder) Close() error {
	r.client.Disconnect(250)
	return nil
}
