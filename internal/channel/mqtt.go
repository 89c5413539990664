package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ssrltools/beamcore/internal/infrastructure/mqtt"
)

// defaultReadTimeout applies when NewMQTT is given a non-positive timeout.
const defaultReadTimeout = 2 * time.Second

// Broker is the subset of *mqtt.Client used by the MQTT backend.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	QoS() byte
}

// Logger defines the logging interface used by the MQTT backend.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// valuePayload is the JSON body on channel set and value topics.
type valuePayload struct {
	Value float64   `json:"value"`
	TS    time.Time `json:"ts"`
}

// sample is the latest value seen on a channel.
type sample struct {
	value float64
	ts    time.Time
}

// MQTT is a channel backend that relays through an MQTT broker.
//
// Writes publish to beamcore/channel/{name}/set. Reads return the latest
// value received on beamcore/channel/{name}/value; when none has arrived yet
// the read waits up to the read timeout.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type MQTT struct {
	broker      Broker
	clock       Clock
	readTimeout time.Duration
	logger      Logger

	mu      sync.Mutex
	latest  map[string]sample
	waiters map[string][]chan struct{}
}

// NewMQTT subscribes to every channel value topic and returns the backend.
func NewMQTT(broker Broker, readTimeout time.Duration) (*MQTT, error) {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	m := &MQTT{
		broker:      broker,
		clock:       SystemClock{},
		readTimeout: readTimeout,
		logger:      noopLogger{},
		latest:      make(map[string]sample),
		waiters:     make(map[string][]chan struct{}),
	}

	if err := broker.Subscribe(mqtt.Topics{}.AllChannelValues(), broker.QoS(), m.handleValue); err != nil {
		return nil, fmt.Errorf("%w: subscribing to channel values: %w", ErrUnavailable, err)
	}
	return m, nil
}

// SetLogger sets the logger for the backend.
func (m *MQTT) SetLogger(logger Logger) {
	m.logger = logger
}

// SetClock replaces the clock used to stamp outgoing writes.
func (m *MQTT) SetClock(clock Clock) {
	m.clock = clock
}

// Read returns the latest value of name.
func (m *MQTT) Read(ctx context.Context, name string) (float64, error) {
	if !m.broker.IsConnected() {
		return 0, fmt.Errorf("%w: %s: broker not connected", ErrUnavailable, name)
	}

	m.mu.Lock()
	if s, ok := m.latest[name]; ok {
		m.mu.Unlock()
		return s.value, nil
	}
	wait := make(chan struct{})
	m.waiters[name] = append(m.waiters[name], wait)
	m.mu.Unlock()

	timer := time.NewTimer(m.readTimeout)
	defer timer.Stop()

	select {
	case <-wait:
		m.mu.Lock()
		s := m.latest[name]
		m.mu.Unlock()
		return s.value, nil
	case <-timer.C:
		m.dropWaiter(name, wait)
		return 0, fmt.Errorf("%w: %s after %v", ErrTimeout, name, m.readTimeout)
	case <-ctx.Done():
		m.dropWaiter(name, wait)
		return 0, fmt.Errorf("%w: %s: %w", ErrTimeout, name, ctx.Err())
	}
}

// Write publishes a setpoint for name.
func (m *MQTT) Write(ctx context.Context, name string, value float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
	if !m.broker.IsConnected() {
		return fmt.Errorf("%w: %s: broker not connected", ErrUnavailable, name)
	}

	payload, err := json.Marshal(valuePayload{Value: value, TS: m.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding %s setpoint: %w", name, err)
	}
	if err := m.broker.Publish(mqtt.Topics{}.ChannelSet(name), payload, m.broker.QoS(), false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
	return nil
}

// handleValue records a value published by the IOC gateway.
func (m *MQTT) handleValue(topic string, payload []byte) error {
	name, action, ok := mqtt.ParseChannelTopic(topic)
	if !ok || action != "value" {
		return nil
	}

	var p valuePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding %s value: %w", name, err)
	}

	m.mu.Lock()
	m.latest[name] = sample{value: p.Value, ts: p.TS}
	waiters := m.waiters[name]
	delete(m.waiters, name)
	m.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	m.logger.Debug("channel value", "channel", name, "value", p.Value, "ts", p.TS)
	return nil
}

func (m *MQTT) dropWaiter(name string, wait chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.waiters[name]
	for i, w := range ws {
		if w == wait {
			m.waiters[name] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(m.waiters[name]) == 0 {
		delete(m.waiters, name)
	}
}
