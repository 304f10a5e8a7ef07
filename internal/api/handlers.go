package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ETC11111/app-serial-sub001/internal/commandlog"
	"github.com/ETC11111/app-serial-sub001/internal/frame"
	"github.com/ETC11111/app-serial-sub001/internal/gateway"
)

const healthCheckTimeout = 3 * time.Second

// handleHealth runs every registered health check. Any failure turns the
// response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.health[name].HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	ConnectedClients int                  `json:"connectedClients"`
	DeviceCount      int                  `json:"deviceCount"`
	UptimeSeconds    float64              `json:"uptimeSeconds"`
	MQTT             MQTTStatus           `json:"mqtt"`
	Clients          []gateway.ClientInfo `json:"clients"`
	Version          string               `json:"version"`
}

// MQTTStatus reports the broker connection.
type MQTTStatus struct {
	Connected bool `json:"connected"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		ConnectedClients: s.gateway.ConnectedClients(),
		DeviceCount:      s.gateway.CachedDevices(),
		UptimeSeconds:    time.Since(s.startedAt).Seconds(),
		MQTT:             MQTTStatus{Connected: s.gateway.BrokerConnected()},
		Clients:          s.gateway.Registry().Snapshot(),
		Version:          s.version,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	reading, ok := s.gateway.Cache().Get(deviceID)
	if !ok {
		writeNotFound(w, "no reading for device "+deviceID)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// handleSendCommand dispatches the body to the device. The dispatch result
// is returned as-is: 200 on success, 502 on any failure.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	var cmd frame.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid command body: "+err.Error())
		return
	}

	result := s.dispatcher.Send(r.Context(), deviceID, cmd)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	filter := commandlog.Filter{DeviceID: chi.URLParam(r, "deviceId")}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	res, err := s.commands.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command history", "device_id", filter.DeviceID, "error", err)
		writeInternalError(w, "failed to load command history")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
