package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/auth"
	"github.com/ETC11111/app-serial-sub001/internal/frame"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/logging"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/mqtt"
	"github.com/ETC11111/app-serial-sub001/internal/metrics"
	"github.com/ETC11111/app-serial-sub001/internal/telemetry"
)

// Broker is the subset of the MQTT client the gateway uses.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// ErrNoBroker is returned by Start when no broker is configured.
var ErrNoBroker = errors.New("gateway: no broker configured")

// Options configures a Gateway.
type Options struct {
	Registry *Registry
	Cache    *telemetry.Cache
	Broker   Broker
	Verifier auth.Verifier
	QoS      byte

	// RequireAuth rejects data requests and skips broadcasts for clients
	// that have not authenticated.
	RequireAuth bool

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Gateway routes broker traffic to clients and client requests to their
// handlers.
type Gateway struct {
	registry    *Registry
	cache       *telemetry.Cache
	broker      Broker
	verifier    auth.Verifier
	qos         byte
	requireAuth bool
	logger      *logging.Logger
	metrics     *metrics.Metrics
	topics      mqtt.Topics
	now         func() time.Time

	// fanout orders cache updates and their broadcast against subscription
	// replays, so a client never receives a reading older than one it was
	// already sent.
	fanout    sync.Mutex
	responses *ResponseStore
}

// New builds a gateway. A nil Registry or Cache is replaced with an empty
// one; a nil Verifier accepts any non-empty token.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry(logger)
	}
	registry.SetMetrics(opts.Metrics)
	registry.SetRequireAuth(opts.RequireAuth)

	cache := opts.Cache
	if cache == nil {
		cache = telemetry.NewCache(0)
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = auth.Permissive{}
	}

	return &Gateway{
		registry:    registry,
		cache:       cache,
		broker:      opts.Broker,
		verifier:    verifier,
		qos:         opts.QoS,
		requireAuth: opts.RequireAuth,
		logger:      logger,
		metrics:     opts.Metrics,
		now:         time.Now,
		responses:   NewResponseStore(),
	}
}

// Registry returns the client registry.
func (g *Gateway) Registry() *Registry { return g.registry }

// Cache returns the telemetry cache.
func (g *Gateway) Cache() *telemetry.Cache { return g.cache }

// LatestResponse returns the most recent modbus response received from a
// device.
func (g *Gateway) LatestResponse(deviceID string) (StoredResponse, bool) {
	return g.responses.Get(deviceID)
}

// Start subscribes to the inbound broker topics. The broker client replays
// these subscriptions after a reconnect.
func (g *Gateway) Start() error {
	if g.broker == nil {
		return ErrNoBroker
	}
	for _, topic := range g.topics.Inbound() {
		if err := g.broker.Subscribe(topic, g.qos, g.HandleBrokerMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		g.logger.Info("subscribed to broker topic", "topic", topic)
	}
	return nil
}

// Connect registers a new client socket.
func (g *Gateway) Connect(s Socket) *Client {
	return g.registry.Register(s)
}

// Disconnect removes a client.
func (g *Gateway) Disconnect(clientID string) {
	g.registry.Unregister(clientID)
}

// ConnectedClients implements metrics.StatusSource.
func (g *Gateway) ConnectedClients() int { return g.registry.Count() }

// CachedDevices implements metrics.StatusSource.
func (g *Gateway) CachedDevices() int { return g.cache.Len() }

// BrokerConnected implements metrics.StatusSource.
func (g *Gateway) BrokerConnected() bool {
	return g.broker != nil && g.broker.IsConnected()
}

// HandleBrokerMessage processes one inbound broker message. Malformed
// payloads are logged and dropped; the returned error is always nil so the
// broker client keeps delivering.
func (g *Gateway) HandleBrokerMessage(topic string, payload []byte) error {
	kind, deviceID := mqtt.ParseTopic(topic)
	if kind == mqtt.TopicUnknown {
		g.logger.Debug("ignoring message on unexpected topic", "topic", topic)
		return nil
	}
	g.metrics.BrokerMessage(kind.String())

	switch kind {
	case mqtt.TopicSensorBinary:
		g.handleSensorFrame(deviceID, payload)

	case mqtt.TopicModbusResponse:
		raw, ok := g.parseJSON(topic, payload)
		if !ok {
			return nil
		}
		now := g.now()
		g.responses.Put(deviceID, raw, now)
		g.registry.Broadcast(ModbusResponseMessage{
			Type:      TypeModbusResponse,
			DeviceID:  deviceID,
			Response:  raw,
			Timestamp: formatTimestamp(now),
		}, deviceID)

	case mqtt.TopicDeviceStatus:
		raw, ok := g.parseJSON(topic, payload)
		if !ok {
			return nil
		}
		g.registry.Broadcast(DeviceStatusMessage{
			Type:      TypeDeviceStatus,
			DeviceID:  deviceID,
			Status:    raw,
			Timestamp: formatTimestamp(g.now()),
		}, deviceID)
	}
	return nil
}

// handleSensorFrame decodes a binary frame, caches the reading and fans it
// out to subscribers. Frames that fail validation are counted and dropped.
func (g *Gateway) handleSensorFrame(deviceID string, payload []byte) {
	now := g.now()
	reading, err := frame.DecodeSensorFrame(deviceID, payload, now)
	g.metrics.FrameDecoded(err)
	if err != nil {
		g.logger.Debug("dropping sensor frame", "device_id", deviceID, "size", len(payload), "error", err)
		return
	}

	g.fanout.Lock()
	defer g.fanout.Unlock()
	g.cache.Set(reading)
	g.registry.Broadcast(SensorDataMessage{
		Type:      TypeSensorData,
		DeviceID:  deviceID,
		Data:      reading,
		Timestamp: formatTimestamp(now),
	}, deviceID)
}

// parseJSON checks that payload is valid JSON and returns it unchanged.
func (g *Gateway) parseJSON(topic string, payload []byte) (json.RawMessage, bool) {
	var raw json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		g.logger.Warn("invalid JSON on broker topic", "topic", topic, "error", err)
		return nil, false
	}
	return raw, true
}

// HandleClientMessage processes one message from a client. Replies go to
// that client only.
func (g *Gateway) HandleClientMessage(ctx context.Context, clientID string, data []byte) {
	client, ok := g.registry.Get(clientID)
	if !ok {
		return
	}

	msg, err := ParseClientMessage(data)
	if err != nil {
		g.metrics.ClientMessage("malformed")
		g.logger.Debug("client message parse error", "client_id", clientID, "error", err)
		g.sendError(clientID, ErrMsgParse)
		return
	}

	if _, unknown := msg.(UnknownRequest); unknown {
		g.metrics.ClientMessage("unknown")
	} else {
		g.metrics.ClientMessage(msg.messageType())
	}

	switch m := msg.(type) {
	case AuthRequest:
		g.handleAuth(ctx, clientID, m)
	case SubscribeRequest:
		if g.authorised(client) {
			g.handleSubscribe(clientID, m)
		}
	case LatestRequest:
		if g.authorised(client) {
			g.handleLatest(clientID, m)
		}
	case CommandRequest:
		if g.authorised(client) {
			g.handleCommand(clientID, m)
		}
	case PingRequest:
		g.registry.Send(clientID, PongMessage{Type: TypePong, Timestamp: formatTimestamp(g.now())})
	case UnknownRequest:
		g.sendError(clientID, "Unknown message type: "+m.Type)
	}
}

// authorised replies with an error and returns false when authentication is
// required and missing.
func (g *Gateway) authorised(c *Client) bool {
	if !g.requireAuth || c.Authenticated() {
		return true
	}
	g.sendError(c.ID(), ErrMsgAuthRequired)
	return false
}

// handleAuth verifies the token and marks the client authenticated. A
// failed verification leaves any earlier authentication in place.
func (g *Gateway) handleAuth(ctx context.Context, clientID string, m AuthRequest) {
	user, err := g.verifier.Verify(ctx, m.Token)
	if err != nil {
		g.logger.Info("client authentication failed", "client_id", clientID, "error", err)
		g.sendError(clientID, ErrMsgAuthFailed)
		return
	}

	g.registry.SetAuth(clientID, user)
	g.logger.Info("client authenticated", "client_id", clientID, "user_id", user.ID)
	g.registry.Send(clientID, AuthSuccessMessage{
		Type:      TypeAuthSuccess,
		User:      user,
		Timestamp: formatTimestamp(g.now()),
	})
}

// handleSubscribe replays cached readings under the fanout lock so a frame
// arriving mid-subscribe is delivered after the replay, never before it.
func (g *Gateway) handleSubscribe(clientID string, m SubscribeRequest) {
	g.fanout.Lock()
	defer g.fanout.Unlock()

	g.registry.SetFilter(clientID, m.DeviceIDs)

	devices := m.DeviceIDs
	if devices == nil {
		devices = []string{}
	}
	now := formatTimestamp(g.now())
	g.registry.Send(clientID, SubscriptionUpdatedMessage{
		Type:              TypeSubscriptionUpdated,
		SubscribedDevices: devices,
		Timestamp:         now,
	})

	for _, id := range m.DeviceIDs {
		reading, ok := g.cache.Get(id)
		if !ok {
			continue
		}
		g.registry.Send(clientID, SensorDataMessage{
			Type:      TypeSensorData,
			DeviceID:  id,
			Data:      reading,
			Timestamp: now,
		})
	}
}

// handleLatest answers with one device's reading, or every cached reading
// when no device is named. A missing reading is reported as null data.
func (g *Gateway) handleLatest(clientID string, m LatestRequest) {
	now := formatTimestamp(g.now())
	if m.DeviceID == "" {
		g.registry.Send(clientID, AllLatestDataMessage{
			Type:      TypeAllLatestData,
			Data:      g.cache.All(),
			Timestamp: now,
		})
		return
	}

	resp := LatestDataResponse{
		Type:      TypeLatestDataResponse,
		DeviceID:  m.DeviceID,
		Timestamp: now,
	}
	if reading, ok := g.cache.Get(m.DeviceID); ok {
		resp.Data = &reading
	}
	g.registry.Send(clientID, resp)
}

// handleCommand republishes the command to the device's broker topic and
// acknowledges it. The command is not validated here.
func (g *Gateway) handleCommand(clientID string, m CommandRequest) {
	if err := g.publishCommand(m.DeviceID, m.Command); err != nil {
		g.logger.Warn("publishing client command", "client_id", clientID, "device_id", m.DeviceID, "error", err)
		g.sendError(clientID, ErrMsgPublishFailed)
		return
	}

	g.registry.Send(clientID, CommandSentMessage{
		Type:      TypeCommandSent,
		DeviceID:  m.DeviceID,
		Command:   m.Command,
		Timestamp: formatTimestamp(g.now()),
	})
}

// publishCommand marshals cmd and publishes it non-retained.
func (g *Gateway) publishCommand(deviceID string, cmd frame.Command) error {
	if g.broker == nil {
		return ErrNoBroker
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}
	return g.broker.Publish(g.topics.ModbusCommand(deviceID), payload, g.qos, false)
}

// sendError replies with an error message to one client.
func (g *Gateway) sendError(clientID, message string) {
	g.registry.Send(clientID, ErrorMessage{
		Type:      TypeError,
		Message:   message,
		Timestamp: formatTimestamp(g.now()),
	})
}
