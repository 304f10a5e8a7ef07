package gateway

import (
	"encoding/json"
	"sync"
	"time"
)

// StoredResponse is the last modbus response seen for a device.
type StoredResponse struct {
	Response   json.RawMessage `json:"response"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// ResponseStore keeps the latest modbus response per device. It is safe for
// concurrent use.
type ResponseStore struct {
	mu    sync.RWMutex
	byDev map[string]StoredResponse
}

// NewResponseStore returns an empty store.
func NewResponseStore() *ResponseStore {
	return &ResponseStore{byDev: make(map[string]StoredResponse)}
}

// Put replaces the stored response for deviceID.
func (s *ResponseStore) Put(deviceID string, resp json.RawMessage, at time.Time) {
	cp := make(json.RawMessage, len(resp))
	copy(cp, resp)
	s.mu.Lock()
	s.byDev[deviceID] = StoredResponse{Response: cp, ReceivedAt: at}
	s.mu.Unlock()
}

// Get returns the stored response for deviceID.
func (s *ResponseStore) Get(deviceID string) (StoredResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byDev[deviceID]
	return r, ok
}
