// Package telemetry holds the latest sensor reading per device.
package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/frame"
)

// Mirror receives a copy of every stored reading. Implementations must not
// block; the Redis mirror queues and writes asynchronously.
type Mirror interface {
	Store(reading frame.SensorReading)
}

// Cache maps device IDs to their most recent verified reading.
//
// A Set for a device fully replaces its previous reading. When a staleness
// window is configured, readings older than the window are invisible to
// readers and are removed by Prune.
//
// All methods are safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	readings   map[string]frame.SensorReading
	staleAfter time.Duration
	mirror     Mirror
	now        func() time.Time
}

// NewCache creates an empty cache. A zero staleAfter keeps readings until
// they are overwritten.
func NewCache(staleAfter time.Duration) *Cache {
	return &Cache{
		readings:   make(map[string]frame.SensorReading),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// SetMirror attaches a mirror that sees every subsequent Set.
func (c *Cache) SetMirror(m Mirror) {
	c.mu.Lock()
	c.mirror = m
	c.mu.Unlock()
}

// Set stores reading as the latest for its device.
func (c *Cache) Set(reading frame.SensorReading) {
	c.mu.Lock()
	c.readings[reading.DeviceID] = reading
	mirror := c.mirror
	c.mu.Unlock()

	if mirror != nil {
		mirror.Store(reading)
	}
}

// Restore seeds the cache without forwarding to the mirror. A reading is
// ignored if the cache already holds a newer one for that device.
func (c *Cache) Restore(readings []frame.SensorReading) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	restored := 0
	for _, r := range readings {
		if cur, ok := c.readings[r.DeviceID]; ok && !cur.ServerTimestamp.Before(r.ServerTimestamp) {
			continue
		}
		c.readings[r.DeviceID] = r
		restored++
	}
	return restored
}

// Get returns the latest reading for deviceID.
func (c *Cache) Get(deviceID string) (frame.SensorReading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.readings[deviceID]
	if !ok || c.isStale(r) {
		return frame.SensorReading{}, false
	}
	return r, true
}

// All returns a snapshot of every live reading keyed by device ID.
func (c *Cache) All() map[string]frame.SensorReading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]frame.SensorReading, len(c.readings))
	for id, r := range c.readings {
		if !c.isStale(r) {
			out[id] = r
		}
	}
	return out
}

// DeviceIDs returns the sorted IDs of every live reading.
func (c *Cache) DeviceIDs() []string {
	all := c.All()
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live readings.
func (c *Cache) Len() int {
	return len(c.All())
}

// Prune deletes stale readings and returns how many were removed.
func (c *Cache) Prune() int {
	if c.staleAfter <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, r := range c.readings {
		if c.isStale(r) {
			delete(c.readings, id)
			removed++
		}
	}
	return removed
}

// RunPruner calls Prune every interval until ctx is cancelled.
func (c *Cache) RunPruner(ctx context.Context, interval time.Duration) {
	if c.staleAfter <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}

// isStale must be called with mu held.
func (c *Cache) isStale(r frame.SensorReading) bool {
	if c.staleAfter <= 0 {
		return false
	}
	return c.now().Sub(r.ServerTimestamp) > c.staleAfter
}
