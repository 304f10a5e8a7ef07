// Package cmdqueue holds Modbus commands for devices that poll the gateway
// for work instead of accepting direct HTTP dispatch.
package cmdqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/frame"
)

// timeLayout is fixed-width so created_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Command is a queued command.
type Command struct {
	ID        int64         `json:"id"`
	DeviceID  string        `json:"deviceId"`
	Command   frame.Command `json:"command"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Status summarises one device's queue.
type Status struct {
	DeviceID   string    `json:"deviceId"`
	QueueCount int       `json:"queueCount"`
	Timestamp  time.Time `json:"timestamp"`
}

// Queue stores pending commands in SQLite.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a queue on db. The pending_commands migration must already be
// applied.
func New(db *sql.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

// Enqueue validates cmd and appends it to deviceID's queue.
func (q *Queue) Enqueue(ctx context.Context, deviceID string, cmd frame.Command) (Command, error) {
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	qc := Command{DeviceID: deviceID, Command: cmd, CreatedAt: q.now().UTC()}

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO pending_commands
		    (device_id, slave_id, function_code, address, value, command_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deviceID,
		int64(cmd.SlaveID), int64(cmd.FunctionCode),
		int64(cmd.Address), int64(cmd.Value),
		string(cmd.Type),
		qc.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Command{}, fmt.Errorf("queueing command for %s: %w", deviceID, err)
	}
	if qc.ID, err = res.LastInsertId(); err != nil {
		return Command{}, fmt.Errorf("reading queued command id: %w", err)
	}
	return qc, nil
}

// Pending returns deviceID's queued commands, oldest first.
func (q *Queue) Pending(ctx context.Context, deviceID string) ([]Command, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, device_id, slave_id, function_code, address, value, command_type, created_at
		   FROM pending_commands
		  WHERE device_id = ?
		  ORDER BY created_at, id`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending commands: %w", err)
	}
	defer rows.Close()

	out := []Command{}
	for rows.Next() {
		var (
			c                    Command
			slave, fn, addr, val int64
			cmdType, createdAt   string
		)
		if err := rows.Scan(&c.ID, &c.DeviceID, &slave, &fn, &addr, &val, &cmdType, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning pending command: %w", err)
		}
		//nolint:gosec // columns are written from the same unsigned widths
		c.Command = frame.Command{
			SlaveID:      uint8(slave),
			FunctionCode: uint8(fn),
			Address:      uint16(addr),
			Value:        uint16(val),
			Type:         frame.CommandType(cmdType),
		}
		if c.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending commands: %w", err)
	}
	return out, nil
}

// Count returns how many commands are queued for deviceID.
func (q *Queue) Count(ctx context.Context, deviceID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pending_commands WHERE device_id = ?", deviceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending commands: %w", err)
	}
	return n, nil
}

// Status returns the queue size for deviceID stamped with the current time.
func (q *Queue) Status(ctx context.Context, deviceID string) (Status, error) {
	n, err := q.Count(ctx, deviceID)
	if err != nil {
		return Status{}, err
	}
	return Status{DeviceID: deviceID, QueueCount: n, Timestamp: q.now().UTC()}, nil
}

// Clear drops every command queued for deviceID and returns how many went.
func (q *Queue) Clear(ctx context.Context, deviceID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, "DELETE FROM pending_commands WHERE device_id = ?", deviceID)
	if err != nil {
		return 0, fmt.Errorf("clearing pending commands for %s: %w", deviceID, err)
	}
	return res.RowsAffected()
}

// Cleanup drops commands queued more than keep ago.
func (q *Queue) Cleanup(ctx context.Context, keep time.Duration) (int64, error) {
	cutoff := q.now().Add(-keep).UTC().Format(timeLayout)
	res, err := q.db.ExecContext(ctx, "DELETE FROM pending_commands WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up pending commands: %w", err)
	}
	return res.RowsAffected()
}

// Logger is the subset of logging.Logger RunCleanup needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RunCleanup calls Cleanup every interval until ctx is cancelled.
func (q *Queue) RunCleanup(ctx context.Context, interval, keep time.Duration, logger Logger) {
	if interval <= 0 || keep <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.Cleanup(ctx, keep)
			if err != nil {
				logger.Warn("pending command cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired pending commands removed", "count", n)
			}
		}
	}
}
