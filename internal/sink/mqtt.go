package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/ds-detect/internal/detection"
)

// MQTTConfig configures the MQTT detection publisher
type MQTTConfig struct {
	Broker   string // host:port, tcp:// is implied
	ClientID string
	Topic    string // messages go to Topic/<source_id>
	QoS      byte
	Encoding string // "json" (default) or "msgpack"
}

// publisher is the subset of mqtt.Client the sink publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTStats contains publisher statistics
type MQTTStats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// MQTT publishes detection batches to a broker, one message per source.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	pub    publisher

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// detectionMessage is the wire shape of one published message.
type detectionMessage struct {
	TraceID    string          `json:"trace_id" msgpack:"trace_id"`
	Seq        uint64          `json:"seq" msgpack:"seq"`
	SourceID   uint32          `json:"source_id" msgpack:"source_id"`
	Timestamp  string          `json:"timestamp" msgpack:"timestamp"`
	Detections []objectMessage `json:"detections" msgpack:"detections"`
}

type objectMessage struct {
	ClassID    int     `json:"class_id" msgpack:"class_id"`
	Label      string  `json:"label,omitempty" msgpack:"label,omitempty"`
	Confidence float32 `json:"confidence" msgpack:"confidence"`
	Left       float32 `json:"bbox_left" msgpack:"bbox_left"`
	Top        float32 `json:"bbox_top" msgpack:"bbox_top"`
	Width      float32 `json:"bbox_width" msgpack:"bbox_width"`
	Height     float32 `json:"bbox_height" msgpack:"bbox_height"`
	FrameNum   int     `json:"frame_num" msgpack:"frame_num"`
	ObjectID   uint64  `json:"object_id" msgpack:"object_id"`
}

// NewMQTT validates cfg and creates an unconnected publisher.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("sink: mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("sink: mqtt topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("sink: invalid mqtt qos %d (must be 0-2)", cfg.QoS)
	}
	switch cfg.Encoding {
	case "":
		cfg.Encoding = "json"
	case "json", "msgpack":
	default:
		return nil, fmt.Errorf("sink: unknown mqtt encoding %q (must be json or msgpack)", cfg.Encoding)
	}

	return &MQTT{
		cfg:       cfg,
		published: make(map[string]uint64),
	}, nil
}

// Connect establishes the broker connection with automatic reconnection.
func (m *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", m.cfg.Broker))
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		m.setConnected(true)
		slog.Info("sink: mqtt connection established",
			"broker", m.cfg.Broker,
			"client_id", m.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		m.setConnected(false)
		slog.Warn("sink: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", m.cfg.Broker,
		)
	}

	client := mqtt.NewClient(opts)
	m.client = client
	m.pub = client

	slog.Info("sink: connecting to mqtt broker", "broker", m.cfg.Broker)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("sink: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("sink: mqtt connection failed: %w", err)
	}

	m.setConnected(true)
	return nil
}

// Write implements Sink.
func (m *MQTT) Write(_ context.Context, batch detection.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if m.pub == nil || !m.isConnected() {
		m.countError()
		return fmt.Errorf("sink: mqtt not connected")
	}

	for _, msg := range m.messages(batch) {
		topic := m.cfg.Topic + "/" + strconv.FormatUint(uint64(msg.SourceID), 10)

		payload, err := m.encode(msg)
		if err != nil {
			m.countError()
			return fmt.Errorf("sink: failed to encode detections: %w", err)
		}

		token := m.pub.Publish(topic, m.cfg.QoS, false, payload)
		if !token.WaitTimeout(2 * time.Second) {
			m.countError()
			return fmt.Errorf("sink: mqtt publish timeout")
		}
		if err := token.Error(); err != nil {
			m.countError()
			return fmt.Errorf("sink: mqtt publish failed: %w", err)
		}

		m.mu.Lock()
		m.published[topic]++
		m.mu.Unlock()

		slog.Debug("sink: detections published",
			"topic", topic,
			"qos", m.cfg.QoS,
			"objects", len(msg.Detections),
			"size", len(payload),
		)
	}

	return nil
}

// Close implements Sink.
func (m *MQTT) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
		slog.Info("sink: mqtt disconnected")
	}
	m.setConnected(false)
	return nil
}

// Stats returns publisher statistics.
func (m *MQTT) Stats() MQTTStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	published := make(map[string]uint64, len(m.published))
	for k, v := range m.published {
		published[k] = v
	}
	return MQTTStats{
		Connected: m.connected,
		Published: published,
		Errors:    m.errors,
	}
}

// messages splits a batch per source id, sources in ascending order.
func (m *MQTT) messages(batch detection.Batch) []detectionMessage {
	bySource := make(map[uint32]*detectionMessage)
	ts := batch.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	for _, d := range batch.Detections {
		msg, ok := bySource[d.SourceID]
		if !ok {
			msg = &detectionMessage{
				TraceID:   batch.TraceID,
				Seq:       batch.Seq,
				SourceID:  d.SourceID,
				Timestamp: ts.UTC().Format(time.RFC3339Nano),
			}
			bySource[d.SourceID] = msg
		}
		msg.Detections = append(msg.Detections, objectMessage{
			ClassID:    d.ClassID,
			Label:      d.Label,
			Confidence: d.Confidence,
			Left:       d.Left,
			Top:        d.Top,
			Width:      d.Width,
			Height:     d.Height,
			FrameNum:   d.FrameNum,
			ObjectID:   d.ObjectID,
		})
	}

	sources := make([]uint32, 0, len(bySource))
	for id := range bySource {
		sources = append(sources, id)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	out := make([]detectionMessage, 0, len(sources))
	for _, id := range sources {
		out = append(out, *bySource[id])
	}
	return out
}

func (m *MQTT) encode(msg detectionMessage) ([]byte, error) {
	if m.cfg.Encoding == "msgpack" {
		return msgpack.Marshal(msg)
	}
	return json.Marshal(msg)
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MQTT) isConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MQTT) countError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}
