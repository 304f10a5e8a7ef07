package api

import (
	"net/http"
	"testing"
)

func TestCommandQueueRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	const base = "/api/v1/devices/gh-05/queue"

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"binary", `{"slaveId":1,"functionCode":6,"address":2,"value":5,"type":"binary"}`, http.StatusCreated},
		{"text", `{"slaveId":1,"functionCode":3,"address":0,"value":10,"type":"text"}`, http.StatusCreated},
		{"bad type", `{"slaveId":1,"type":"hex"}`, http.StatusBadRequest},
		{"bad json", `{"slaveId":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, base, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}

	rec := env.do(t, http.MethodGet, base, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pending: status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	cmds := body["commands"].([]any)
	if body["count"] != float64(2) || len(cmds) != 2 {
		t.Fatalf("pending body = %v", body)
	}
	if first := cmds[0].(map[string]any)["command"].(map[string]any); first["type"] != "binary" {
		t.Errorf("first pending command = %v, want the binary one", first)
	}

	rec = env.do(t, http.MethodGet, base+"/status", "")
	if body := decodeBody(t, rec); body["queueCount"] != float64(2) || body["deviceId"] != "gh-05" {
		t.Errorf("status body = %v", body)
	}

	rec = env.do(t, http.MethodDelete, base, "")
	if body := decodeBody(t, rec); rec.Code != http.StatusOK || body["deletedCount"] != float64(2) {
		t.Errorf("clear: status = %d, body = %v", rec.Code, body)
	}

	rec = env.do(t, http.MethodGet, base+"/status", "")
	if body := decodeBody(t, rec); body["queueCount"] != float64(0) {
		t.Errorf("status after clear = %v", body)
	}
}

func TestLatestResponseRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/gh-01/responses", "")
	body := decodeBody(t, rec)
	if rec.Code != http.StatusOK || body["hasResponse"] != false || body["latestCommandResponse"] != nil {
		t.Fatalf("before response: status = %d, body = %v", rec.Code, body)
	}

	env.do(t, http.MethodPost, "/api/v1/devices/gh-01/queue", `{"slaveId":1,"type":"text"}`)
	env.gw.HandleBrokerMessage("modbus/responses/gh-01", []byte(`{"register":2,"value":77}`))

	body = decodeBody(t, env.do(t, http.MethodGet, "/api/v1/devices/gh-01/responses", ""))
	if body["hasResponse"] != true || body["pendingCommands"] != float64(1) {
		t.Fatalf("after response: body = %v", body)
	}
	latest := body["latestCommandResponse"].(map[string]any)
	if resp := latest["response"].(map[string]any); resp["value"] != float64(77) {
		t.Errorf("response = %v", resp)
	}
	if latest["receivedAt"] == nil {
		t.Error("latest response missing receivedAt")
	}
}

func TestCommandStatsRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/v1/devices/gh-01/commands", `{"slaveId":1,"type":"text"}`)
	env.do(t, http.MethodPost, "/api/v1/devices/gh-01/commands", `{"slaveId":1,"type":"binary"}`)
	env.do(t, http.MethodPost, "/api/v1/devices/gh-01/commands", `{"slaveId":1,"type":"hex"}`)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/gh-01/commands/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	stats := body["stats"].(map[string]any)
	if stats["totalCommands"] != float64(3) || stats["successfulCommands"] != float64(2) || stats["failedCommands"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}
	if body["timeRange"] != "24 hours" || body["deviceId"] != "gh-01" {
		t.Errorf("body = %v", body)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/devices/gh-01/commands/stats?hours=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("hours=0: status = %d, want 400", rec.Code)
	}
}
