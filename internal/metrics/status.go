package metrics

import "github.com/prometheus/client_golang/prometheus"

// StatusSource reports point-in-time gateway state.
type StatusSource interface {
	ConnectedClients() int
	CachedDevices() int
	BrokerConnected() bool
}

// statusCollector reads StatusSource on every scrape.
type statusCollector struct {
	src StatusSource

	clientsDesc *prometheus.Desc
	devicesDesc *prometheus.Desc
	brokerDesc  *prometheus.Desc
}

// RegisterStatus exposes src as gauges.
func (m *Metrics) RegisterStatus(src StatusSource) error {
	return m.registry.Register(&statusCollector{
		src: src,
		clientsDesc: prometheus.NewDesc(
			namespace+"_connected_clients",
			"WebSocket clients currently connected.",
			nil, nil,
		),
		devicesDesc: prometheus.NewDesc(
			namespace+"_cached_devices",
			"Devices with a cached latest reading.",
			nil, nil,
		),
		brokerDesc: prometheus.NewDesc(
			namespace+"_broker_connected",
			"1 if the MQTT broker connection is up.",
			nil, nil,
		),
	})
}

// Describe implements prometheus.Collector.
func (c *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.clientsDesc
	ch <- c.devicesDesc
	ch <- c.brokerDesc
}

// Collect implements prometheus.Collector.
func (c *statusCollector) Collect(ch chan<- prometheus.Metric) {
	broker := 0.0
	if c.src.BrokerConnected() {
		broker = 1
	}
	ch <- prometheus.MustNewConstMetric(c.clientsDesc, prometheus.GaugeValue, float64(c.src.ConnectedClients()))
	ch <- prometheus.MustNewConstMetric(c.devicesDesc, prometheus.GaugeValue, float64(c.src.CachedDevices()))
	ch <- prometheus.MustNewConstMetric(c.brokerDesc, prometheus.GaugeValue, broker)
}
