package mqtt

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/config"
)

// testConfig returns a configuration for a local Mosquitto at 127.0.0.1:1883.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// requireBroker skips the test when no broker is listening locally.
func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 500*time.Millisecond)
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	conn.Close()
}

func connectTest(t *testing.T, clientID string) *Client {
	t.Helper()
	requireBroker(t)
	client, err := Connect(testConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// =============================================================================
// Topics
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SensorBinary", topics.SensorBinary("gh-01"), "sensors/binary/gh-01"},
		{"ModbusResponse", topics.ModbusResponse("gh-01"), "modbus/responses/gh-01"},
		{"DeviceStatus", topics.DeviceStatus("gh-01"), "device/status/gh-01"},
		{"ModbusCommand", topics.ModbusCommand("gh-01"), "modbus/commands/gh-01"},
		{"GatewayStatus", topics.GatewayStatus(), "farm/gateway/status"},
		{"AllSensorBinary", topics.AllSensorBinary(), "sensors/binary/+"},
		{"AllModbusResponses", topics.AllModbusResponses(), "modbus/responses/+"},
		{"AllDeviceStatus", topics.AllDeviceStatus(), "device/status/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}

	if got := len(topics.Inbound()); got != 3 {
		t.Errorf("Inbound() returned %d topics, want 3", got)
	}
}

func TestParseTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantKind TopicKind
		wantID   string
	}{
		{"sensors/binary/gh-01", TopicSensorBinary, "gh-01"},
		{"modbus/responses/pump-2", TopicModbusResponse, "pump-2"},
		{"device/status/abc", TopicDeviceStatus, "abc"},
		{"sensors/binary/", TopicUnknown, ""},
		{"sensors/binary/a/b", TopicUnknown, ""},
		{"modbus/commands/gh-01", TopicUnknown, ""},
		{"sensors/json/gh-01", TopicUnknown, ""},
		{"", TopicUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			kind, id := ParseTopic(tt.topic)
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("ParseTopic(%q) = (%v, %q), want (%v, %q)", tt.topic, kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestTopicKindString(t *testing.T) {
	if TopicSensorBinary.String() != "sensor_binary" {
		t.Errorf("TopicSensorBinary.String() = %q", TopicSensorBinary.String())
	}
	if TopicKind(99).String() != "unknown" {
		t.Errorf("TopicKind(99).String() = %q", TopicKind(99).String())
	}
}

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("farm-gw-opts")
	cfg.Auth.Username = "gateway"
	cfg.Auth.Password = "secret"
	cfg.Reconnect.InitialDelay = 0

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "farm-gw-opts" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "gateway" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.Order {
		t.Error("Order = false, want ordered delivery")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.ConnectRetryInterval != time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 1s fallback", opts.ConnectRetryInterval)
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig("farm-gw-tls")
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("expected TLS config with minimum version set")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig("farm-gw-lwt"))
	configureLWT(opts, "farm-gw-lwt")

	if !opts.WillEnabled || opts.WillTopic != TopicGatewayStatus || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
}

// =============================================================================
// Validation without a broker
// =============================================================================

func TestOperationsOnDisconnectedClient(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("t", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 1, noop), ErrNotConnected},
		{"unsubscribe empty", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("t"), ErrNotConnected},
		{"health check", c.HealthCheck(context.Background()), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := &Client{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestWrapHandler_RecoversPanicAndLogsErrors(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	panicking := c.wrapHandler(func(string, []byte) error { panic("boom") })
	failing := c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })

	panicking(nil, fakeMessage{topic: "sensors/binary/x"})
	failing(nil, fakeMessage{topic: "sensors/binary/x"})

	if logger.count() != 2 {
		t.Errorf("logged %d messages, want 2", logger.count())
	}
}

// =============================================================================
// Broker-backed tests
// =============================================================================

func TestConnectAndHealthCheck(t *testing.T) {
	client := connectTest(t, "farm-gw-test-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	requireBroker(t)
	cfg := testConfig("farm-gw-test-invalid")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestSubscribeTracking(t *testing.T) {
	client := connectTest(t, "farm-gw-test-subs")
	noop := func(string, []byte) error { return nil }

	for _, topic := range (Topics{}).Inbound() {
		if err := client.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%q) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != 3 {
		t.Errorf("SubscriptionCount() = %d, want 3", client.SubscriptionCount())
	}

	if err := client.Unsubscribe(Topics{}.AllDeviceStatus()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(Topics{}.AllDeviceStatus()) {
		t.Error("HasSubscription() = true after Unsubscribe")
	}
}

func TestPublishSubscribeOrdered(t *testing.T) {
	client := connectTest(t, "farm-gw-test-order")

	const n = 20
	received := make(chan string, n)
	err := client.Subscribe(Topics{}.AllModbusResponses(), 1, func(topic string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < n; i++ {
		payload := []byte{byte('a' + i)}
		if err := client.Publish(Topics{}.ModbusResponse("order-test"), payload, 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-received:
			if want := string(rune('a' + i)); got != want {
				t.Fatalf("message %d = %q, want %q", i, got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}
