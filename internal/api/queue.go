package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ETC11111/app-serial-sub001/internal/cmdqueue"
	"github.com/ETC11111/app-serial-sub001/internal/commandlog"
	"github.com/ETC11111/app-serial-sub001/internal/frame"
	"github.com/ETC11111/app-serial-sub001/internal/gateway"
)

const defaultStatsHours = 24

// PendingResponse is the body of GET /devices/{deviceId}/queue.
type PendingResponse struct {
	DeviceID string             `json:"deviceId"`
	Commands []cmdqueue.Command `json:"commands"`
	Count    int                `json:"count"`
}

// ClearResponse is the body of DELETE /devices/{deviceId}/queue.
type ClearResponse struct {
	DeviceID     string `json:"deviceId"`
	DeletedCount int64  `json:"deletedCount"`
}

// LatestResponseBody is the body of GET /devices/{deviceId}/responses.
type LatestResponseBody struct {
	DeviceID              string                  `json:"deviceId"`
	LatestCommandResponse *gateway.StoredResponse `json:"latestCommandResponse"`
	HasResponse           bool                    `json:"hasResponse"`
	PendingCommands       int                     `json:"pendingCommands"`
}

// StatsResponse is the body of GET /devices/{deviceId}/commands/stats.
type StatsResponse struct {
	DeviceID  string           `json:"deviceId"`
	Stats     commandlog.Stats `json:"stats"`
	TimeRange string           `json:"timeRange"`
}

// handleQueueCommand stores the body for the device to collect later.
func (s *Server) handleQueueCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	var cmd frame.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid command body: "+err.Error())
		return
	}

	queued, err := s.queue.Enqueue(r.Context(), deviceID, cmd)
	if errors.Is(err, frame.ErrInvalidCommandType) {
		writeBadRequest(w, "command type must be text or binary")
		return
	}
	if err != nil {
		s.logger.Error("queueing command", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to queue command")
		return
	}
	writeJSON(w, http.StatusCreated, queued)
}

func (s *Server) handlePendingCommands(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	cmds, err := s.queue.Pending(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("listing pending commands", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load pending commands")
		return
	}
	writeJSON(w, http.StatusOK, PendingResponse{DeviceID: deviceID, Commands: cmds, Count: len(cmds)})
}

func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	n, err := s.queue.Clear(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("clearing pending commands", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to clear pending commands")
		return
	}
	s.logger.Info("pending commands cleared", "device_id", deviceID, "count", n)
	writeJSON(w, http.StatusOK, ClearResponse{DeviceID: deviceID, DeletedCount: n})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	st, err := s.queue.Status(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("reading queue status", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to read queue status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleLatestResponse reports the last modbus response the device published.
// pendingCommands is zero when the queue is disabled.
func (s *Server) handleLatestResponse(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	body := LatestResponseBody{DeviceID: deviceID}

	if resp, ok := s.gateway.LatestResponse(deviceID); ok {
		body.LatestCommandResponse = &resp
		body.HasResponse = true
	}
	if s.queue != nil {
		n, err := s.queue.Count(r.Context(), deviceID)
		if err != nil {
			s.logger.Error("counting pending commands", "device_id", deviceID, "error", err)
			writeInternalError(w, "failed to count pending commands")
			return
		}
		body.PendingCommands = n
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCommandStats(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	hours := defaultStatsHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "hours must be a positive integer")
			return
		}
		hours = n
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	st, err := s.commands.Stats(r.Context(), deviceID, since)
	if err != nil {
		s.logger.Error("reading command stats", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load command stats")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		DeviceID:  deviceID,
		Stats:     st,
		TimeRange: strconv.Itoa(hours) + " hours",
	})
}
