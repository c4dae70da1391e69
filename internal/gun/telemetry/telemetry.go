// Package telemetry publishes device status and control-state events to
// an MQTT broker.
//
// Topics, under the configured prefix and device id:
//
//	<prefix>/<device>/status   periodic JSON status, retained
//	<prefix>/<device>/events   one JSON message per control transition
//	<prefix>/<device>/online   "1" while connected, "0" as the last will
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/monitor"
	"github.com/banshee-data/pigun/internal/gun/pipeline"
	"github.com/banshee-data/pigun/internal/monitoring"
	"github.com/banshee-data/pigun/internal/timeutil"
)

// Client is the subset of mqtt.Client used here.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// StatusSource supplies the periodic status body.
type StatusSource interface {
	Status() monitor.Status
}

// Config holds broker and topic settings.
type Config struct {
	Broker    string
	ClientID  string
	Prefix    string
	Device    string
	Interval  time.Duration
	QoS       byte
	Timeout   time.Duration
	KeepAlive time.Duration
}

// DefaultConfig publishes every 5 s to a local broker.
func DefaultConfig() Config {
	return Config{
		Broker:    "tcp://localhost:1883",
		Prefix:    "pigun",
		Device:    "pigun",
		Interval:  5 * time.Second,
		QoS:       1,
		Timeout:   2 * time.Second,
		KeepAlive: 10 * time.Second,
	}
}

func (c Config) topic(leaf string) string {
	return fmt.Sprintf("%s/%s/%s", c.Prefix, c.Device, leaf)
}

// Connect dials the broker with a last-will marking the device offline.
func Connect(cfg Config) (mqtt.Client, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = cfg.Device + "-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetPingTimeout(cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.SetWill(cfg.topic("online"), "0", cfg.QoS, true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		c.Publish(cfg.topic("online"), cfg.QoS, true, "1")
		gun.Opsf("telemetry connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		gun.Opsf("telemetry connection lost: %v", err)
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("timed out connecting to %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
	}
	return c, nil
}

// StatusMessage is the body published on the status topic.
type StatusMessage struct {
	Session string    `json:"session"`
	Time    time.Time `json:"time"`
	monitor.Status
}

// EventMessage is the body published on the events topic.
type EventMessage struct {
	Session string    `json:"session"`
	Time    time.Time `json:"time"`
	Seq     uint64    `json:"seq"`
	From    string    `json:"from"`
	To      string    `json:"to"`
}

// Reporter publishes status on a timer and transitions as they happen.
// It implements pipeline.Observer; events are handed off through a
// buffered channel and dropped when the publisher falls behind.
type Reporter struct {
	cfg     Config
	client  Client
	source  StatusSource
	clock   timeutil.Clock
	session uuid.UUID
	events  chan EventMessage
}

// NewReporter returns a reporter with a fresh session id.
func NewReporter(cfg Config, client Client, source StatusSource, clock timeutil.Clock) *Reporter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Reporter{
		cfg:     cfg,
		client:  client,
		source:  source,
		clock:   clock,
		session: uuid.New(),
		events:  make(chan EventMessage, 32),
	}
}

// Session identifies this run in every message.
func (r *Reporter) Session() uuid.UUID { return r.session }

// ObserveFrame queues an event when the control state changed.
func (r *Reporter) ObserveFrame(res pipeline.Result) {
	if !res.Transition.Changed() {
		return
	}
	ev := EventMessage{
		Session: r.session.String(),
		Time:    res.At,
		Seq:     res.Seq,
		From:    res.Transition.From.String(),
		To:      res.Transition.To.String(),
	}
	select {
	case r.events <- ev:
	default:
		monitoring.Logf("telemetry: dropped event %s -> %s", ev.From, ev.To)
	}
}

// Run publishes until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.publishStatus()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			r.publish(r.cfg.topic("events"), false, ev)
		case <-ticker.C():
			r.publishStatus()
		}
	}
}

func (r *Reporter) publishStatus() {
	if r.source == nil {
		return
	}
	msg := StatusMessage{Session: r.session.String(), Time: r.clock.Now(), Status: r.source.Status()}
	r.publish(r.cfg.topic("status"), true, msg)
}

func (r *Reporter) publish(topic string, retained bool, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		monitoring.Logf("telemetry: failed to encode %s: %v", topic, err)
		return
	}
	token := r.client.Publish(topic, r.cfg.QoS, retained, payload)
	if r.cfg.Timeout > 0 && !token.WaitTimeout(r.cfg.Timeout) {
		monitoring.Logf("telemetry: publish to %s timed out", topic)
		return
	}
	if err := token.Error(); err != nil {
		monitoring.Logf("telemetry: publish to %s failed: %v", topic, err)
	}
}
