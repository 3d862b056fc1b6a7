package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/couch-control/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "couchcontrol-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// offlineClient is a Client that never connected.
func offlineClient() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// =============================================================================
// Validation Tests (no broker)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := offlineClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"single-level wildcard", "couchcontrol/selection/+", []byte("x"), 1, ErrInvalidTopic},
		{"multi-level wildcard", "couchcontrol/#", []byte("x"), 1, ErrInvalidTopic},
		{"payload too large", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := offlineClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("a/b", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("a/b", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(offline) error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
}

func TestHealthCheck_Offline(t *testing.T) {
	c := offlineClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := offlineClient().Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1 // nothing listens here

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Connect(ctx, cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// =============================================================================
// Handler Dispatch Tests
// =============================================================================

func TestDispatch_RecoversPanic(t *testing.T) {
	c := offlineClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "a/b", nil)

	if len(logger.errors) != 1 {
		t.Fatalf("expected 1 error log, got %d", len(logger.errors))
	}
}

func TestDispatch_LogsHandlerError(t *testing.T) {
	c := offlineClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "a/b", nil)

	if len(logger.warns) != 1 {
		t.Fatalf("expected 1 warn log, got %d", len(logger.warns))
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	c := offlineClient()
	// Must not panic without a logger.
	c.dispatch(func(string, []byte) error { panic("boom") }, "a/b", nil)
}

func TestHandleDisconnect_Callback(t *testing.T) {
	c := offlineClient()
	c.connected = true

	var got error
	c.SetOnDisconnect(func(err error) { got = err })
	c.handleDisconnect(errors.New("link down"))

	if got == nil || got.Error() != "link down" {
		t.Errorf("callback error = %v, want link down", got)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBrokerURL(t *testing.T) {
	b := config.MQTTBrokerConfig{Host: "broker.local", Port: 8883}
	if got := brokerURL(b); got != "tcp://broker.local:8883" {
		t.Errorf("brokerURL() = %q", got)
	}
	b.TLS = true
	if got := brokerURL(b); got != "ssl://broker.local:8883" {
		t.Errorf("brokerURL(tls) = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"

	opts := buildClientOptions(cfg)
	if opts.ClientID != "couchcontrol-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" {
		t.Errorf("Username = %q", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
}

func TestStatusPayloads(t *testing.T) {
	var msg StatusMessage
	if err := json.Unmarshal([]byte(buildOnlinePayload("cc-1")), &msg); err != nil {
		t.Fatalf("online payload not JSON: %v", err)
	}
	if msg.Status != "online" || msg.ClientID != "cc-1" || msg.Reason != "" {
		t.Errorf("online payload = %+v", msg)
	}

	if err := json.Unmarshal([]byte(buildOfflinePayload("cc-1")), &msg); err != nil {
		t.Fatalf("offline payload not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.Reason != "graceful_shutdown" {
		t.Errorf("offline payload = %+v", msg)
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"SystemStatus", Topics{}.SystemStatus(), "couchcontrol/system/status"},
		{"Selection", Topics{}.Selection("abc"), "couchcontrol/selection/abc"},
		{"StateStreamStates", Topics{}.StateStreamStates("homeassistant/statestream"), "homeassistant/statestream/+/+/state"},
		{"StateStreamStates trailing slash", Topics{}.StateStreamStates("ha/"), "ha/+/+/state"},
		{"StateStreamAttributes", Topics{}.StateStreamAttributes("ha"), "ha/+/+/attributes"},
		{"StateStreamTopic", Topics{}.StateStreamTopic("ha", "light.kitchen", LeafState), "ha/light/kitchen/state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestParseStateStreamTopic(t *testing.T) {
	tests := []struct {
		topic    string
		entityID string
		leaf     string
		ok       bool
	}{
		{"ha/light/kitchen/state", "light.kitchen", "state", true},
		{"ha/sensor/temp/attributes", "sensor.temp", "attributes", true},
		{"ha/sensor/temp/unit_of_measurement", "sensor.temp", "unit_of_measurement", true},
		{"other/light/kitchen/state", "", "", false},
		{"ha/light/state", "", "", false},
		{"ha/light/kitchen/extra/state", "", "", false},
		{"ha//kitchen/state", "", "", false},
		{"hax/light/kitchen/state", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			entityID, leaf, ok := ParseStateStreamTopic("ha", tt.topic)
			if ok != tt.ok || entityID != tt.entityID || leaf != tt.leaf {
				t.Errorf("ParseStateStreamTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, entityID, leaf, ok, tt.entityID, tt.leaf, tt.ok)
			}
		})
	}
}

func TestStateStreamRoundTrip(t *testing.T) {
	topic := Topics{}.StateStreamTopic("ha", "binary_sensor.front_door", LeafAttributes)
	entityID, leaf, ok := ParseStateStreamTopic("ha", topic)
	if !ok || entityID != "binary_sensor.front_door" || leaf != LeafAttributes {
		t.Errorf("round trip of %q = (%q, %q, %v)", topic, entityID, leaf, ok)
	}
	if !strings.HasPrefix(topic, "ha/binary_sensor/") {
		t.Errorf("topic = %q", topic)
	}
}
