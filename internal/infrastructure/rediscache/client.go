package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ETC11111/app-serial-sub001/internal/frame"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/config"
)

// KeyPrefix namespaces mirrored readings.
const KeyPrefix = "sensor:last:"

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 2 * time.Second
	scanBatch           = 100
)

// ErrQueueFull is reported when a reading is dropped because the writer is behind.
var ErrQueueFull = errors.New("rediscache: write queue full")

// Logger is the subset of logging.Logger the mirror needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client wraps a go-redis client with the reading mirror.
type Client struct {
	rdb    *redis.Client
	ttl    time.Duration
	queue  chan frame.SensorReading
	logger Logger
	done   chan struct{}
}

// Connect creates the client and verifies the server answers PING.
func Connect(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return newClient(rdb, ttl), nil
}

func newClient(rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{
		rdb:   rdb,
		ttl:   ttl,
		queue: make(chan frame.SensorReading, defaultQueueSize),
		done:  make(chan struct{}),
	}
}

// SetLogger sets the logger for write failures.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Key returns the Redis key for deviceID.
func Key(deviceID string) string {
	return KeyPrefix + deviceID
}

// Store queues reading for writing. It never blocks; when the queue is full
// the reading is dropped and logged.
func (c *Client) Store(reading frame.SensorReading) {
	select {
	case c.queue <- reading:
	default:
		if c.logger != nil {
			c.logger.Warn("dropping mirrored reading", "device_id", reading.DeviceID, "error", ErrQueueFull)
		}
	}
}

// Run drains the write queue until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-c.queue:
			writeCtx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
			if err := c.Write(writeCtx, r); err != nil && c.logger != nil {
				c.logger.Error("mirroring reading to redis", "device_id", r.DeviceID, "error", err)
			}
			cancel()
		}
	}
}

// Write stores reading synchronously.
func (c *Client) Write(ctx context.Context, reading frame.SensorReading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(reading.DeviceID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", Key(reading.DeviceID), err)
	}
	return nil
}

// Latest reads one mirrored reading. ok is false when the key is absent.
func (c *Client) Latest(ctx context.Context, deviceID string) (frame.SensorReading, bool, error) {
	data, err := c.rdb.Get(ctx, Key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return frame.SensorReading{}, false, nil
	}
	if err != nil {
		return frame.SensorReading{}, false, fmt.Errorf("redis get %s: %w", Key(deviceID), err)
	}

	var r frame.SensorReading
	if err := json.Unmarshal(data, &r); err != nil {
		return frame.SensorReading{}, false, fmt.Errorf("decoding %s: %w", Key(deviceID), err)
	}
	return r, true, nil
}

// LoadAll returns every mirrored reading. Entries that fail to decode or
// expire mid-scan are skipped.
func (c *Client) LoadAll(ctx context.Context) ([]frame.SensorReading, error) {
	var readings []frame.SensorReading

	iter := c.rdb.Scan(ctx, 0, KeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		deviceID := iter.Val()[len(KeyPrefix):]
		r, ok, err := c.Latest(ctx, deviceID)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("skipping mirrored reading", "device_id", deviceID, "error", err)
			}
			continue
		}
		if ok {
			readings = append(readings, r)
		}
	}
	if err := iter.Err(); err != nil {
		return readings, fmt.Errorf("redis scan: %w", err)
	}
	return readings, nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection pool. Cancel Run's context first.
func (c *Client) Close() error {
	return c.rdb.Close()
}
