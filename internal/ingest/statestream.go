// Package ingest feeds live entity states from an MQTT statestream into
// the state machine.
//
// Topic layout is <prefix>/<domain>/<object_id>/<leaf>:
//
//	state       raw state string; an empty payload removes the entity
//	attributes  JSON object replacing the entity's attributes
//
// Attributes that arrive before the first state are held until the state
// arrives.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/infrastructure/mqtt"
)

// ErrUnknownTopic is returned for topics outside the statestream layout.
var ErrUnknownTopic = errors.New("ingest: unknown topic")

// Subscriber is the MQTT surface used by StateStream. *mqtt.Client
// satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// StateWriter is the state surface used by StateStream.
// *entity.StateMachine satisfies it.
type StateWriter interface {
	Get(entityID string) (*entity.State, bool)
	Set(entityID, state string, attrs map[string]any, origin string) (bool, error)
	Remove(entityID, origin string) bool
}

// Logger defines the logging interface used by StateStream.
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

// StateStream subscribes to statestream topics and applies them.
type StateStream struct {
	sub    Subscriber
	states StateWriter
	prefix string
	qos    byte
	logger Logger

	mu      sync.Mutex
	pending map[string]map[string]any
	topics  []string
}

// New creates a statestream ingester.
func New(sub Subscriber, states StateWriter, prefix string, qos byte) *StateStream {
	return &StateStream{
		sub:     sub,
		states:  states,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		logger:  noopLogger{},
		pending: make(map[string]map[string]any),
	}
}

// SetLogger sets the logger.
func (s *StateStream) SetLogger(logger Logger) {
	s.logger = logger
}

// Start subscribes to the state and attributes wildcards.
func (s *StateStream) Start() error {
	topics := mqtt.Topics{}
	wanted := []string{
		topics.StateStreamStates(s.prefix),
		topics.StateStreamAttributes(s.prefix),
	}
	for _, t := range wanted {
		if err := s.sub.Subscribe(t, s.qos, s.HandleMessage); err != nil {
			_ = s.Stop()
			return fmt.Errorf("subscribing to %s: %w", t, err)
		}
		s.mu.Lock()
		s.topics = append(s.topics, t)
		s.mu.Unlock()
	}
	s.logger.Info("statestream ingest started", "prefix", s.prefix)
	return nil
}

// Stop unsubscribes every topic Start subscribed.
func (s *StateStream) Stop() error {
	s.mu.Lock()
	topics := s.topics
	s.topics = nil
	s.mu.Unlock()

	var errs []error
	for _, t := range topics {
		if err := s.sub.Unsubscribe(t); err != nil {
			errs = append(errs, err)
		}
	}
	if len(topics) > 0 {
		s.logger.Info("statestream ingest stopped", "pending_attributes", s.Pending())
	}
	return errors.Join(errs...)
}

// HandleMessage applies one statestream message. It is the MQTT handler.
func (s *StateStream) HandleMessage(topic string, payload []byte) error {
	entityID, leaf, ok := mqtt.ParseStateStreamTopic(s.prefix, topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	switch leaf {
	case mqtt.LeafState:
		return s.applyState(entityID, strings.TrimSpace(string(payload)))
	case mqtt.LeafAttributes:
		return s.applyAttributes(entityID, payload)
	default:
		return fmt.Errorf("%w: leaf %q", ErrUnknownTopic, leaf)
	}
}

func (s *StateStream) applyState(entityID, state string) error {
	if state == "" {
		s.mu.Lock()
		delete(s.pending, entityID)
		s.mu.Unlock()
		if s.states.Remove(entityID, entity.OriginRemote) {
			s.logger.Debug("entity state removed", "entity_id", entityID)
		}
		return nil
	}

	s.mu.Lock()
	attrs, held := s.pending[entityID]
	delete(s.pending, entityID)
	s.mu.Unlock()

	if !held {
		if current, ok := s.states.Get(entityID); ok {
			attrs = current.Attributes
		}
	}

	if _, err := s.states.Set(entityID, state, attrs, entity.OriginRemote); err != nil {
		return fmt.Errorf("applying state for %s: %w", entityID, err)
	}
	return nil
}

func (s *StateStream) applyAttributes(entityID string, payload []byte) error {
	var attrs map[string]any
	if err := json.Unmarshal(payload, &attrs); err != nil {
		return fmt.Errorf("decoding attributes for %s: %w", entityID, err)
	}

	current, ok := s.states.Get(entityID)
	if !ok {
		s.mu.Lock()
		s.pending[entityID] = attrs
		s.mu.Unlock()
		return nil
	}

	if _, err := s.states.Set(entityID, current.State, attrs, entity.OriginRemote); err != nil {
		return fmt.Errorf("applying attributes for %s: %w", entityID, err)
	}
	return nil
}

// Pending returns the number of entities with attributes waiting for a state.
func (s *StateStream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
