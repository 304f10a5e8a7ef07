package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteDirectory reads endpoints from the gateway's local devices table.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLite returns a directory backed by db, which must carry the devices table.
func NewSQLite(db *sql.DB) *SQLiteDirectory {
	return &SQLiteDirectory{db: db}
}

// Lookup implements Directory.
func (d *SQLiteDirectory) Lookup(ctx context.Context, deviceID string) (Endpoint, error) {
	ep := Endpoint{DeviceID: deviceID}
	var port sql.NullInt64

	err := d.db.QueryRowContext(ctx,
		"SELECT ip_address, port FROM devices WHERE device_id = ?", deviceID,
	).Scan(&ep.IPAddress, &port)
	if errors.Is(err, sql.ErrNoRows) {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("querying device %s: %w", deviceID, err)
	}

	ep.Port = int(port.Int64)
	return ep, nil
}

// Upsert inserts or replaces the endpoint for ep.DeviceID.
func (d *SQLiteDirectory) Upsert(ctx context.Context, ep Endpoint) error {
	if ep.DeviceID == "" || ep.IPAddress == "" {
		return fmt.Errorf("directory: device id and ip address are required")
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, ip_address, port)
		VALUES (?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			ip_address = excluded.ip_address,
			port = excluded.port,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		ep.DeviceID, ep.IPAddress, ep.Port,
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", ep.DeviceID, err)
	}
	return nil
}

// Count returns the number of registered devices.
func (d *SQLiteDirectory) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return n, nil
}

// Seed upserts every endpoint and returns the resulting device count.
func (d *SQLiteDirectory) Seed(ctx context.Context, eps []Endpoint) (int, error) {
	for _, ep := range eps {
		if err := d.Upsert(ctx, ep); err != nil {
			return 0, err
		}
	}
	return d.Count(ctx)
}
