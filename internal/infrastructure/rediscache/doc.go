// Package rediscache mirrors the latest sensor reading per device into Redis.
//
// Readings are stored as JSON under "sensor:last:{deviceId}" with a TTL so
// devices that stop reporting age out. Writes are queued and performed by a
// background worker so the broker delivery path never waits on Redis. On
// startup the gateway can read the mirror back to warm its in-memory cache.
package rediscache
