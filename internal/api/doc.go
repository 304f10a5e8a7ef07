// Package api serves the gateway over HTTP.
//
// Routes:
//
//	GET  /ws                                  WebSocket upgrade (path configurable)
//	GET  /api/v1/health                       component health
//	GET  /api/v1/status                       client and device counts, uptime
//	GET  /api/v1/devices/{deviceId}/latest    cached reading
//	POST /api/v1/devices/{deviceId}/commands  dispatch a Modbus command
//	GET  /api/v1/devices/{deviceId}/commands  command history
//	GET  /metrics                             Prometheus exposition
//
// Each WebSocket connection gets a read goroutine, which hands frames to the
// gateway in receipt order, and a write goroutine fed by a bounded queue.
//
// The server keeps working without a broker: WebSocket clients still
// connect and HTTP command dispatch is unaffected.
package api
