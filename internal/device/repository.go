package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device persistence.
//
// UpsertStatus and UpdateStatus diverge deliberately: broker-originated
// writes create unknown devices, API writes refuse them. Callers pick the
// path that matches their provenance.
type Repository interface {
	GetByID(ctx context.Context, deviceID string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	UpsertStatus(ctx context.Context, deviceID string, status json.RawMessage) error
	UpdateStatus(ctx context.Context, deviceID string, status json.RawMessage) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed device repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, deviceID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT device_id, status, updated_at FROM devices WHERE device_id = ?",
		deviceID,
	)

	d, err := scanDevice(row)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// List returns all devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT device_id, status, updated_at FROM devices ORDER BY device_id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// UpsertStatus stores a device's status, creating the device row if it does
// not exist. This is the broker-originated write path.
func (r *SQLiteRepository) UpsertStatus(ctx context.Context, deviceID string, status json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (device_id, status, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		deviceID, statusText(status), now,
	)
	if err != nil {
		return fmt.Errorf("upserting device status: %w", err)
	}
	return nil
}

// UpdateStatus stores a device's status only if the device already exists.
// Reports ErrDeviceNotFound when no row matched. This is the API write path.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, deviceID string, status json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET status = ?, updated_at = ? WHERE device_id = ?",
		statusText(status), now, deviceID,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// statusText serialises a status for the nullable TEXT column.
// JSON null and an absent status both store as SQL NULL.
func statusText(status json.RawMessage) any {
	if len(status) == 0 || string(status) == "null" {
		return nil
	}
	return string(status)
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var d Device
	var status sql.NullString
	var updatedAt string

	if err := s.Scan(&d.DeviceID, &status, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	if status.Valid {
		d.Status = json.RawMessage(status.String)
	} else {
		d.Status = json.RawMessage("null")
	}

	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &d, nil
}
