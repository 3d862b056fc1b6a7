package integration

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/nerrad567/couch-control/internal/bridge"
	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/infrastructure/mqtt"
	"github.com/nerrad567/couch-control/internal/selection"
)

// exportTimeout bounds one Export call of the export sink.
const exportTimeout = 5 * time.Second

// PointWriter queues entity states as time-series points.
// influxdb.Client satisfies it.
type PointWriter interface {
	WriteEntityState(entityID, state string, attrs map[string]any, ts time.Time) bool
}

// TelemetrySink writes numeric and binary states of selected entities to
// a time-series store. The initial snapshot is written too, so every
// series starts at subscribe time.
type TelemetrySink struct {
	writer  PointWriter
	written atomic.Int64
}

// NewTelemetrySink creates a sink over w.
func NewTelemetrySink(w PointWriter) *TelemetrySink {
	return &TelemetrySink{writer: w}
}

// Initial implements bridge.Subscriber.
func (s *TelemetrySink) Initial(states []entity.State) {
	for i := range states {
		s.write(&states[i])
	}
}

// Event implements bridge.Subscriber. Removals write nothing.
func (s *TelemetrySink) Event(ev bridge.Event) {
	if ev.Data.NewState != nil {
		s.write(ev.Data.NewState)
	}
}

func (s *TelemetrySink) write(st *entity.State) {
	if s.writer.WriteEntityState(st.EntityID, st.State, st.Attributes, st.LastUpdated) {
		s.written.Add(1)
	}
}

// Written returns the number of points queued.
func (s *TelemetrySink) Written() int64 {
	return s.written.Load()
}

// EventExporter publishes filtered changes to an external stream.
// kafka.Exporter satisfies it.
type EventExporter interface {
	Export(ctx context.Context, ev bridge.Event) error
}

// ExportSink forwards every filtered change to an EventExporter. The
// initial snapshot is not exported; consumers see changes only.
type ExportSink struct {
	exporter EventExporter
	logger   Logger
	failed   atomic.Int64
}

// NewExportSink creates a sink over e.
func NewExportSink(e EventExporter, logger Logger) *ExportSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ExportSink{exporter: e, logger: logger}
}

// Initial implements bridge.Subscriber.
func (s *ExportSink) Initial([]entity.State) {}

// Event implements bridge.Subscriber.
func (s *ExportSink) Event(ev bridge.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	if err := s.exporter.Export(ctx, ev); err != nil {
		s.failed.Add(1)
		s.logger.Warn("exporting change failed", "entity_id", ev.Data.EntityID, "error", err)
	}
}

// Failed returns the number of failed exports.
func (s *ExportSink) Failed() int64 {
	return s.failed.Load()
}

// RetainedPublisher publishes retained messages. mqtt.Client satisfies it.
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// SelectionMessage is the retained payload describing one entry's
// committed selection.
type SelectionMessage struct {
	EntryID   string    `json:"entry_id"`
	Entities  []string  `json:"entities"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// publishingScheduler forwards saves to next and mirrors each committed
// selection to a retained topic.
type publishingScheduler struct {
	next      selection.Scheduler
	publisher RetainedPublisher
	entryID   string
	logger    Logger
}

func (p *publishingScheduler) Schedule(entities []string) {
	p.next.Schedule(entities)
	publishSelection(p.publisher, p.entryID, entities, p.logger)
}

func publishSelection(pub RetainedPublisher, entryID string, entities []string, logger Logger) {
	if entities == nil {
		entities = []string{}
	}
	payload, err := json.Marshal(SelectionMessage{
		EntryID:   entryID,
		Entities:  entities,
		Count:     len(entities),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Error("encoding selection message failed", "entry_id", entryID, "error", err)
		return
	}
	if err := pub.PublishRetained(mqtt.Topics{}.Selection(entryID), payload); err != nil {
		logger.Warn("publishing selection failed", "entry_id", entryID, "error", err)
	}
}

// clearSelection removes the retained message of a deleted entry.
func clearSelection(pub RetainedPublisher, entryID string, logger Logger) {
	if err := pub.PublishRetained(mqtt.Topics{}.Selection(entryID), nil); err != nil {
		logger.Warn("clearing retained selection failed", "entry_id", entryID, "error", err)
	}
}
