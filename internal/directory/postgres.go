package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads endpoints from a shared PostgreSQL devices table,
// for installations where device registration is managed centrally.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool to url and verifies it with a ping.
func ConnectPostgres(ctx context.Context, url string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("configuring postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres not reachable: %w", err)
	}
	return &PostgresDirectory{pool: pool}, nil
}

// Lookup implements Directory.
func (d *PostgresDirectory) Lookup(ctx context.Context, deviceID string) (Endpoint, error) {
	ep := Endpoint{DeviceID: deviceID}
	var port *int32

	err := d.pool.QueryRow(ctx,
		"SELECT ip_address, port FROM devices WHERE device_id = $1", deviceID,
	).Scan(&ep.IPAddress, &port)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("querying device %s: %w", deviceID, err)
	}

	if port != nil {
		ep.Port = int(*port)
	}
	return ep, nil
}

// HealthCheck pings the pool.
func (d *PostgresDirectory) HealthCheck(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close releases the pool.
func (d *PostgresDirectory) Close() {
	d.pool.Close()
}
