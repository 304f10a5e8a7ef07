// Package directory resolves device IDs to the network endpoint that accepts
// their commands.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// DefaultPort is used when a device record carries no port.
const DefaultPort = 80

// ErrDeviceNotFound is returned when no record exists for a device ID.
var ErrDeviceNotFound = errors.New("directory: device not found")

// Endpoint is where a device listens for HTTP commands.
type Endpoint struct {
	DeviceID  string `json:"deviceId"`
	IPAddress string `json:"ipAddress"`
	Port      int    `json:"port"`
}

// HostPort returns "ip:port", substituting DefaultPort for a zero port.
func (e Endpoint) HostPort() string {
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(e.IPAddress, strconv.Itoa(port))
}

// Directory looks up device endpoints. Implementations must be safe for
// concurrent use.
type Directory interface {
	Lookup(ctx context.Context, deviceID string) (Endpoint, error)
}

// Static is an in-memory Directory, mainly for tests and fixed installs.
type Static map[string]Endpoint

// Lookup implements Directory.
func (s Static) Lookup(_ context.Context, deviceID string) (Endpoint, error) {
	ep, ok := s[deviceID]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	ep.DeviceID = deviceID
	return ep, nil
}
