package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nerrad567/couch-control/internal/bridge"
	"github.com/nerrad567/couch-control/internal/infrastructure/config"
)

// ErrDisabled is returned by New when kafka.enabled is false.
var ErrDisabled = errors.New("kafka: exporter disabled")

// ErrClosed is returned by Export after Close.
var ErrClosed = errors.New("kafka: exporter closed")

// messageWriter is the subset of kafka.Writer the exporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Logger defines the logging interface used by the Exporter.
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

// Exporter publishes bridge events to one topic.
type Exporter struct {
	writer messageWriter
	topic  string
	logger Logger
	closed atomic.Bool

	sent   atomic.Int64
	failed atomic.Int64
}

// New creates an exporter from configuration.
//
// The underlying writer is asynchronous: Export returns once the message
// is queued, and delivery errors are logged.
func New(cfg config.KafkaConfig, logger Logger) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: brokers and topic are required")
	}
	if logger == nil {
		logger = noopLogger{}
	}

	e := &Exporter{topic: cfg.Topic, logger: logger}
	e.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: time.Duration(cfg.BatchTimeout) * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
		Completion:   e.completion,
	}
	return e, nil
}

// newWithWriter is used by tests to inject a writer.
func newWithWriter(w messageWriter, topic string, logger Logger) *Exporter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Exporter{writer: w, topic: topic, logger: logger}
}

// Topic returns the destination topic.
func (e *Exporter) Topic() string {
	return e.topic
}

// Export queues one event.
func (e *Exporter) Export(ctx context.Context, ev bridge.Event) error {
	if e.closed.Load() {
		return ErrClosed
	}
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		e.failed.Add(1)
		return fmt.Errorf("kafka: writing message: %w", err)
	}
	return nil
}

// Stats returns delivered and failed message counts.
func (e *Exporter) Stats() (sent, failed int64) {
	return e.sent.Load(), e.failed.Load()
}

// Close flushes queued messages and closes the writer. It is idempotent.
func (e *Exporter) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.writer.Close(); err != nil {
		return fmt.Errorf("kafka: closing writer: %w", err)
	}
	return nil
}

func (e *Exporter) completion(msgs []kafkago.Message, err error) {
	if err != nil {
		e.failed.Add(int64(len(msgs)))
		e.logger.Error("kafka delivery failed", "topic", e.topic, "messages", len(msgs), "error", err)
		return
	}
	e.sent.Add(int64(len(msgs)))
}

// encode builds the message for ev, keyed by entity ID.
func encode(ev bridge.Event) (kafkago.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("kafka: encoding event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.Data.EntityID),
		Value: value,
		Time:  ev.TimeFired,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	}, nil
}
