// Package metrics exposes the gateway's Prometheus metrics.
//
// All recording methods are safe to call on a nil *Metrics, so components can
// be constructed without instrumentation in tests.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ETC11111/app-serial-sub001/internal/dispatch"
	"github.com/ETC11111/app-serial-sub001/internal/frame"
)

const namespace = "farmgw"

// Frame decode results.
const (
	FrameAccepted    = "accepted"
	FrameBadLength   = "bad_length"
	FrameBadChecksum = "bad_checksum"
)

// Metrics holds the gateway's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	frames           *prometheus.CounterVec
	brokerMessages   *prometheus.CounterVec
	clientMessages   *prometheus.CounterVec
	delivered        prometheus.Counter
	dropped          prometheus.Counter
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_frames_total",
			Help:      "Binary sensor frames received, by decode result.",
		}, []string{"result"}),
		brokerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_messages_total",
			Help:      "Messages received from the MQTT broker, by topic kind.",
		}, []string{"kind"}),
		clientMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_messages_total",
			Help:      "Messages received from WebSocket clients, by type.",
		}, []string{"type"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_messages_sent_total",
			Help:      "Messages queued to WebSocket clients.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_messages_dropped_total",
			Help:      "Messages dropped because a client's send buffer was full.",
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dispatched_total",
			Help:      "Device commands dispatched over HTTP, by command type and outcome.",
		}, []string{"type", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_dispatch_duration_seconds",
			Help:      "Round-trip time of device command requests.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.frames,
		m.brokerMessages,
		m.clientMessages,
		m.delivered,
		m.dropped,
		m.dispatchTotal,
		m.dispatchDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// FrameDecoded counts a sensor frame by the error DecodeSensorFrame returned.
func (m *Metrics) FrameDecoded(err error) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(frameResult(err)).Inc()
}

// BrokerMessage counts an inbound broker message.
func (m *Metrics) BrokerMessage(kind string) {
	if m == nil {
		return
	}
	m.brokerMessages.WithLabelValues(kind).Inc()
}

// ClientMessage counts an inbound client message.
func (m *Metrics) ClientMessage(msgType string) {
	if m == nil {
		return
	}
	m.clientMessages.WithLabelValues(msgType).Inc()
}

// MessageQueued counts a message handed to a client's writer.
func (m *Metrics) MessageQueued() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

// MessageDropped counts a message lost to a full send buffer.
func (m *Metrics) MessageDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// CommandDispatched implements dispatch.Observer.
func (m *Metrics) CommandDispatched(_ context.Context, o dispatch.Outcome) {
	if m == nil {
		return
	}
	cmdType := string(o.Command.Type)
	if !o.Command.Type.Valid() {
		cmdType = "invalid"
	}
	m.dispatchTotal.WithLabelValues(cmdType, DispatchOutcome(o.Result)).Inc()
	if o.StatusCode != 0 {
		m.dispatchDuration.WithLabelValues(cmdType).Observe(o.Duration.Seconds())
	}
}

// DispatchOutcome maps a dispatch result onto a low-cardinality label.
func DispatchOutcome(r dispatch.Result) string {
	switch {
	case r.Success:
		return "success"
	case r.Error == dispatch.MsgInvalidType:
		return "invalid_type"
	case r.Error == dispatch.MsgDeviceNotFound:
		return "not_found"
	case strings.HasPrefix(r.Error, "HTTP "):
		return "http_error"
	case strings.HasPrefix(r.Error, "Request timeout"):
		return "timeout"
	default:
		return "network_error"
	}
}

func frameResult(err error) string {
	switch {
	case err == nil:
		return FrameAccepted
	case errors.Is(err, frame.ErrFrameLength):
		return FrameBadLength
	default:
		return FrameBadChecksum
	}
}
