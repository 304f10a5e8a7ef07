package gateway

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/frame"
)

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ClientMessage
		wantErr bool
	}{
		{"auth", `{"type":"auth","token":"abc"}`, AuthRequest{Token: "abc"}, false},
		{"subscribe", `{"type":"subscribe_devices","deviceIds":["a","b"]}`, SubscribeRequest{DeviceIDs: []string{"a", "b"}}, false},
		{"subscribe empty", `{"type":"subscribe_devices","deviceIds":[]}`, SubscribeRequest{DeviceIDs: []string{}}, false},
		{"latest one", `{"type":"get_latest_data","deviceId":"gh-01"}`, LatestRequest{DeviceID: "gh-01"}, false},
		{"latest all", `{"type":"get_latest_data"}`, LatestRequest{}, false},
		{
			"command",
			`{"type":"send_modbus_command","deviceId":"gh-01","command":{"slaveId":1,"functionCode":6,"address":2,"value":300,"type":"binary"}}`,
			CommandRequest{DeviceID: "gh-01", Command: frame.Command{SlaveID: 1, FunctionCode: 6, Address: 2, Value: 300, Type: frame.TypeBinary}},
			false,
		},
		{"ping", `{"type":"ping"}`, PingRequest{}, false},
		{"unknown", `{"type":"reboot"}`, UnknownRequest{Type: "reboot"}, false},

		{"not json", `{nope`, nil, true},
		{"missing type", `{}`, nil, true},
		{"empty type", `{"type":""}`, nil, true},
		{"null", `null`, nil, true},
		{"not an object", `[1,2]`, nil, true},
		{"type not string", `{"type":5}`, nil, true},
		{"token not string", `{"type":"auth","token":1}`, nil, true},
		{"deviceIds missing", `{"type":"subscribe_devices"}`, nil, true},
		{"deviceIds not array", `{"type":"subscribe_devices","deviceIds":"gh-01"}`, nil, true},
		{"deviceIds wrong element", `{"type":"subscribe_devices","deviceIds":[1]}`, nil, true},
		{"command missing", `{"type":"send_modbus_command","deviceId":"gh-01"}`, nil, true},
		{"command device missing", `{"type":"send_modbus_command","command":{"slaveId":1}}`, nil, true},
		{"command field overflow", `{"type":"send_modbus_command","deviceId":"x","command":{"slaveId":300}}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientMessage([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 21, 4, 5, 123456789, time.FixedZone("KST", 9*3600))
	if got := formatTimestamp(ts); got != "2026-03-01T12:04:05.123Z" {
		t.Errorf("formatTimestamp() = %q", got)
	}
}
