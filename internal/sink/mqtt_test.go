package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/ds-detect/internal/detection"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	token *fakeToken
}

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if f.token != nil {
		return f.token
	}
	return &fakeToken{}
}

func connectedMQTT(t *testing.T, cfg MQTTConfig, pub publisher) *MQTT {
	t.Helper()
	m, err := NewMQTT(cfg)
	if err != nil {
		t.Fatalf("NewMQTT failed: %v", err)
	}
	m.pub = pub
	m.setConnected(true)
	return m
}

func multiSourceBatch() detection.Batch {
	return detection.Batch{
		Seq:     9,
		TraceID: "trace-9",
		Detections: []detection.Detection{
			{ClassID: 0, Confidence: 0.5, SourceID: 1, FrameNum: 4},
			{ClassID: 1, Confidence: 0.25, SourceID: 0, FrameNum: 4},
			{ClassID: 2, Confidence: 0.75, SourceID: 1, FrameNum: 4},
		},
	}
}

func TestMQTT_PublishesPerSourceJSON(t *testing.T) {
	pub := &fakePublisher{}
	m := connectedMQTT(t, MQTTConfig{Broker: "localhost:1883", Topic: "ds/detections", QoS: 1}, pub)

	if err := m.Write(context.Background(), multiSourceBatch()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if len(pub.msgs) != 2 {
		t.Fatalf("expected 2 messages (one per source), got %d", len(pub.msgs))
	}
	if pub.msgs[0].topic != "ds/detections/0" || pub.msgs[1].topic != "ds/detections/1" {
		t.Errorf("unexpected topics: %s, %s", pub.msgs[0].topic, pub.msgs[1].topic)
	}
	if pub.msgs[0].qos != 1 {
		t.Errorf("qos = %d, want 1", pub.msgs[0].qos)
	}

	var msg detectionMessage
	if err := json.Unmarshal(pub.msgs[1].payload, &msg); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if msg.TraceID != "trace-9" || msg.SourceID != 1 || len(msg.Detections) != 2 {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Detections[0].ClassID != 0 || msg.Detections[1].ClassID != 2 {
		t.Errorf("detections out of order: %+v", msg.Detections)
	}

	stats := m.Stats()
	if stats.Published["ds/detections/1"] != 1 || stats.Errors != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMQTT_MsgpackEncoding(t *testing.T) {
	pub := &fakePublisher{}
	m := connectedMQTT(t, MQTTConfig{Broker: "b:1883", Topic: "t", Encoding: "msgpack"}, pub)

	batch := detection.Batch{TraceID: "x", Detections: []detection.Detection{{ClassID: 3, Confidence: 0.5}}}
	if err := m.Write(context.Background(), batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var msg detectionMessage
	if err := msgpack.Unmarshal(pub.msgs[0].payload, &msg); err != nil {
		t.Fatalf("payload is not msgpack: %v", err)
	}
	if msg.TraceID != "x" || msg.Detections[0].ClassID != 3 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestMQTT_NotConnected(t *testing.T) {
	m, _ := NewMQTT(MQTTConfig{Broker: "b:1883", Topic: "t"})

	if err := m.Write(context.Background(), multiSourceBatch()); err == nil {
		t.Fatal("expected error when not connected")
	}
	if m.Stats().Errors != 1 {
		t.Errorf("expected error counter 1, got %d", m.Stats().Errors)
	}
}

func TestMQTT_PublishFailures(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"timeout", &fakeToken{timeout: true}},
		{"broker error", &fakeToken{err: errors.New("refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{token: tt.token}
			m := connectedMQTT(t, MQTTConfig{Broker: "b:1883", Topic: "t"}, pub)

			if err := m.Write(context.Background(), multiSourceBatch()); err == nil {
				t.Fatal("expected publish error")
			}
			if m.Stats().Errors != 1 {
				t.Errorf("expected error counter 1, got %d", m.Stats().Errors)
			}
		})
	}
}

func TestNewMQTT_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     MQTTConfig
		wantErr bool
	}{
		{"valid", MQTTConfig{Broker: "b:1883", Topic: "t"}, false},
		{"missing broker", MQTTConfig{Topic: "t"}, true},
		{"missing topic", MQTTConfig{Broker: "b:1883"}, true},
		{"bad qos", MQTTConfig{Broker: "b:1883", Topic: "t", QoS: 3}, true},
		{"bad encoding", MQTTConfig{Broker: "b:1883", Topic: "t", Encoding: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMQTT(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMQTT() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type recordingSink struct {
	writes   int
	closed   bool
	writeErr error
	closeErr error
}

func (r *recordingSink) Write(context.Context, detection.Batch) error {
	r.writes++
	return r.writeErr
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.closeErr
}

func TestMulti_AttemptsEverySink(t *testing.T) {
	failing := &recordingSink{writeErr: errors.New("disk full"), closeErr: errors.New("close failed")}
	ok := &recordingSink{}
	m := Multi{failing, ok}

	if err := m.Write(context.Background(), sampleBatch()); err == nil {
		t.Error("expected combined write error")
	}
	if ok.writes != 1 {
		t.Errorf("second sink should still be written, writes=%d", ok.writes)
	}

	if err := m.Close(); err == nil {
		t.Error("expected combined close error")
	}
	if !ok.closed || !failing.closed {
		t.Error("all sinks should be closed")
	}
}
