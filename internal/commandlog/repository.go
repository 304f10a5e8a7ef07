// Package commandlog records every command the gateway dispatches to a device
// in the command_logs table and serves the history back to the API.
package commandlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/frame"
)

// timeLayout is fixed-width so executed_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is a single dispatched command.
type Entry struct {
	ID         int64         `json:"id"`
	DeviceID   string        `json:"deviceId"`
	Command    frame.Command `json:"command"`
	Success    bool          `json:"success"`
	Response   string        `json:"response,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"durationMs"`
	ExecutedAt time.Time     `json:"executedAt"`
}

// Filter controls which entries List returns.
type Filter struct {
	DeviceID string // optional
	Limit    int    // default 50, max 200
	Offset   int
}

// ListResult is a page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Stats counts the commands sent to one device since a point in time.
type Stats struct {
	Total      int `json:"totalCommands"`
	Successful int `json:"successfulCommands"`
	Failed     int `json:"failedCommands"`
}

// Repository stores command history.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Stats(ctx context.Context, deviceID string, since time.Time) (Stats, error)
}

// SQLiteRepository keeps command history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db. The command_logs migration
// must already be applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e and sets its ID. ExecutedAt defaults to now.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now().UTC()
	}
	if e.DurationMS == 0 && e.Duration > 0 {
		e.DurationMS = e.Duration.Milliseconds()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO command_logs
		    (device_id, slave_id, function_code, address, value, command_type,
		     success, response, duration_ms, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DeviceID,
		int64(e.Command.SlaveID), int64(e.Command.FunctionCode),
		int64(e.Command.Address), int64(e.Command.Value),
		string(e.Command.Type),
		boolToInt(e.Success), e.Response, e.DurationMS,
		e.ExecutedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading command log id: %w", err)
	}
	e.ID = id
	return nil
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		where string
		args  []any
	)
	if filter.DeviceID != "" {
		where = " WHERE device_id = ?"
		args = append(args, filter.DeviceID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM command_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command logs: %w", err)
	}

	var q strings.Builder
	q.WriteString(`SELECT id, device_id, slave_id, function_code, address, value, command_type,
	       success, response, duration_ms, executed_at
	  FROM command_logs`)
	q.WriteString(where)
	q.WriteString(" ORDER BY executed_at DESC, id DESC LIMIT ? OFFSET ?")
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying command logs: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, filter.Limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command logs: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Stats counts deviceID's commands executed after since.
func (r *SQLiteRepository) Stats(ctx context.Context, deviceID string, since time.Time) (Stats, error) {
	var st Stats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		   FROM command_logs
		  WHERE device_id = ? AND executed_at > ?`,
		deviceID, since.UTC().Format(timeLayout),
	).Scan(&st.Total, &st.Successful, &st.Failed)
	if err != nil {
		return Stats{}, fmt.Errorf("counting commands for %s: %w", deviceID, err)
	}
	return st, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                          Entry
		slave, fn, addr, val, succ int64
		cmdType, executedAt        string
	)
	if err := rows.Scan(&e.ID, &e.DeviceID, &slave, &fn, &addr, &val, &cmdType,
		&succ, &e.Response, &e.DurationMS, &executedAt); err != nil {
		return Entry{}, fmt.Errorf("scanning command log: %w", err)
	}

	//nolint:gosec // columns are written from the same unsigned widths
	e.Command = frame.Command{
		SlaveID:      uint8(slave),
		FunctionCode: uint8(fn),
		Address:      uint16(addr),
		Value:        uint16(val),
		Type:         frame.CommandType(cmdType),
	}
	e.Success = succ != 0
	e.Duration = time.Duration(e.DurationMS) * time.Millisecond

	t, err := time.Parse(timeLayout, executedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing executed_at %q: %w", executedAt, err)
	}
	e.ExecutedAt = t
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
