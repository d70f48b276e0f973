// Package emitter publishes healing progress to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config contains MQTT broker settings.
type Config struct {
	Broker   string // host:port or scheme://host:port
	ClientID string
	Topic    string // reports go to Topic/progress and Topic/summary
	QoS      byte
}

// Report is one progress snapshot of a healing run.
type Report struct {
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
	Final      bool      `json:"final"`

	Frames     uint64  `json:"frames"`
	FPS        float64 `json:"fps"`
	JitterMS   float64 `json:"jitter_ms"`
	Stable     bool    `json:"stable"`
	Saved      uint64  `json:"saved"`
	SaveFailed uint64  `json:"save_failed"`

	DeadPixels int `json:"dead_pixels"`
	Degenerate int `json:"degenerate"`

	Captured       uint64 `json:"captured,omitempty"`
	CaptureDropped uint64 `json:"capture_dropped,omitempty"`
	Reconnects     uint32 `json:"reconnects,omitempty"`
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// MQTTEmitter publishes run reports as JSON.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter validates cfg. Call Connect before publishing.
func NewMQTTEmitter(cfg Config) (*MQTTEmitter, error) {
	if cfg.Broker == "" {
		return nil, errors.New("emitter: broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("emitter: topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("emitter: invalid qos %d", cfg.QoS)
	}
	if !strings.Contains(cfg.Broker, "://") {
		cfg.Broker = "tcp://" + cfg.Broker
	}
	cfg.Topic = strings.TrimSuffix(cfg.Topic, "/")

	return &MQTTEmitter{cfg: cfg, published: make(map[string]uint64)}, nil
}

// Connect establishes the broker connection. The client reconnects on its
// own after a later connection loss.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)
	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Topic returns the topic a report is published to.
func (e *MQTTEmitter) Topic(r Report) string {
	if r.Final {
		return e.cfg.Topic + "/summary"
	}
	return e.cfg.Topic + "/progress"
}

// Publish sends r. The final summary is retained so late subscribers see
// the outcome of the last run.
func (e *MQTTEmitter) Publish(r Report) error {
	if !e.isConnected() {
		e.addError()
		return errors.New("emitter: mqtt not connected")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		e.addError()
		return fmt.Errorf("emitter: marshal report: %w", err)
	}

	topic := e.Topic(r)
	token := e.client.Publish(topic, e.cfg.QoS, r.Final, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.addError()
		return errors.New("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.addError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: report published", "topic", topic, "size", len(payload))
	return nil
}

// Disconnect closes the connection after a 250ms grace period.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) addError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
