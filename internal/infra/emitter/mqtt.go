// Package emitter forwards vision replies and errors to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
	"github.com/matiasleandrokruk/camvision/internal/infra/config"
	"github.com/matiasleandrokruk/camvision/internal/infra/eventbus"
)

const (
	connectTimeout  = 5 * time.Second
	publishTimeout  = 2 * time.Second
	disconnectQuiet = 250 // ms
)

var errNotConnected = errors.New("mqtt not connected")

// Publisher is the subset of mqtt.Client the emitter needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes ReplyEvents to {prefix}/replies and {prefix}/errors.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	logger *zap.Logger
	client mqtt.Client
	pub    Publisher

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter; call Connect before Run.
func NewMQTTEmitter(cfg config.MQTTConfig, logger *zap.Logger) *MQTTEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTEmitter{
		cfg:       cfg,
		logger:    logger,
		published: make(map[string]uint64),
	}
}

// NewWithPublisher creates an emitter over an already connected publisher.
func NewWithPublisher(pub Publisher, cfg config.MQTTConfig, logger *zap.Logger) *MQTTEmitter {
	e := NewMQTTEmitter(cfg, logger)
	e.pub = pub
	e.connected = true
	return e
}

// Connect establishes the broker connection with auto-reconnect.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("mqtt connection established", zap.String("broker", broker), zap.String("client_id", e.cfg.ClientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("mqtt connection lost, will auto-reconnect", zap.Error(err), zap.String("broker", broker))
	}

	e.client = mqtt.NewClient(opts)
	e.pub = e.client

	e.logger.Info("connecting to mqtt broker", zap.String("broker", broker))
	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

// Run forwards bus events until ctx is done, then unsubscribes.
func (e *MQTTEmitter) Run(ctx context.Context, bus eventbus.EventBus) error {
	replies := bus.Subscribe(vision.TopicReply)
	errs := bus.Subscribe(vision.TopicError)
	defer bus.Unsubscribe(vision.TopicReply, replies)
	defer bus.Unsubscribe(vision.TopicError, errs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-replies:
			if !ok {
				return nil
			}
			e.forward(e.topic("replies"), evt)
		case evt, ok := <-errs:
			if !ok {
				return nil
			}
			e.forward(e.topic("errors"), evt)
		}
	}
}

func (e *MQTTEmitter) forward(topic string, evt eventbus.Event) {
	if err := e.Publish(topic, evt.Payload); err != nil {
		e.logger.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Publish marshals payload to JSON and publishes it with QoS 0.
func (e *MQTTEmitter) Publish(topic string, payload any) error {
	if !e.isConnected() {
		e.countError()
		return errNotConnected
	}
	body, err := json.Marshal(payload)
	if err != nil {
		e.countError()
		return fmt.Errorf("mqtt marshal: %w", err)
	}

	token := e.pub.Publish(topic, 0, false, body)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debug("event published", zap.String("topic", topic), zap.Int("size", len(body)))
	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(disconnectQuiet)
		e.logger.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Stats returns a snapshot of emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}

func (e *MQTTEmitter) topic(leaf string) string {
	return strings.TrimSuffix(e.cfg.TopicPrefix, "/") + "/" + leaf
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
