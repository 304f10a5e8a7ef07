package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ETC11111/app-serial-sub001/internal/dispatch"
	"github.com/ETC11111/app-serial-sub001/internal/frame"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/config"
)

// fakeInflux answers /ping and collects line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "farm",
		Bucket:        "gateway",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := Connect(testConfig(url)); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_WritesDispatchPoints(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.CommandDispatched(context.Background(), dispatch.Outcome{
		DeviceID:   "gh-01",
		Command:    frame.Command{SlaveID: 1, FunctionCode: 6, Type: frame.TypeText},
		Result:     dispatch.Result{Success: true, Message: dispatch.MsgTextSent},
		StatusCode: 200,
		Duration:   12 * time.Millisecond,
	})
	client.WriteGatewayStats("gw-1", 3, 2, true)
	client.Flush()

	deadline := time.Now().Add(2 * time.Second)
	var lines []string
	for time.Now().Before(deadline) {
		if lines = fake.received(); len(lines) >= 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "command_dispatch,command_type=text,device_id=gh-01,outcome=success") {
		t.Errorf("dispatch point missing from %q", joined)
	}
	if !strings.Contains(joined, "gateway_stats,gateway_id=gw-1") {
		t.Errorf("stats point missing from %q", joined)
	}
}

func TestClient_CloseStopsWrites(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	client.WritePoint("custom", nil, map[string]interface{}{"v": 1.0})
	client.Flush()
	client.Close()
}

func TestClient_NilSafe(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
	c.CommandDispatched(context.Background(), dispatch.Outcome{})
}

func TestDispatchPoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		outcome dispatch.Outcome
		want    []string
	}{
		{
			name: "success",
			outcome: dispatch.Outcome{
				DeviceID:   "gh-01",
				Command:    frame.Command{SlaveID: 2, FunctionCode: 3, Type: frame.TypeBinary},
				Result:     dispatch.Result{Success: true},
				StatusCode: 200,
				Duration:   1500 * time.Microsecond,
				At:         at,
			},
			want: []string{
				"command_dispatch,command_type=binary,device_id=gh-01,outcome=success",
				"duration_ms=1.5",
				"function_code=3i",
				"slave_id=2i",
				"status_code=200i",
			},
		},
		{
			name: "timeout",
			outcome: dispatch.Outcome{
				DeviceID: "gh-02",
				Command:  frame.Command{Type: frame.TypeText},
				Result:   dispatch.Result{Error: "Request timeout (5s)"},
				At:       at,
			},
			want: []string{
				"outcome=failure",
				`error="Request timeout (5s)"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(dispatchPoint(tt.outcome), time.Nanosecond)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
			if tt.outcome.StatusCode == 0 && strings.Contains(line, "status_code") {
				t.Errorf("line %q carries a status code for a transport failure", line)
			}
		})
	}
}
