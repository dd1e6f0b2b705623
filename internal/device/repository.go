package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByUUID retrieves a device by its UUID.
	// Soft-deleted devices are treated as absent.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByUUID(ctx context.Context, uuid string) (*Device, error)

	// List retrieves all devices that have not been soft-deleted.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same UUID already exists.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device's alias and credential hash,
	// bumping its version. Returns ErrDeviceNotFound if the device does
	// not exist or has been soft-deleted.
	Update(ctx context.Context, device *Device) error

	// Delete soft-deletes a device by UUID. The row is kept so that
	// historical readings stay attributable.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, uuid string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = "uuid, alias, api_key_hash, version, created_at, updated_at, deleted_at"

// GetByUUID retrieves a device by its UUID, excluding soft-deleted rows.
func (r *SQLiteRepository) GetByUUID(ctx context.Context, uuid string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE uuid = ? AND deleted_at IS NULL`

	row := r.db.QueryRowContext(ctx, query, uuid)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by uuid: %w", err)
	}
	return device, nil
}

// List retrieves all devices that have not been soft-deleted.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE deleted_at IS NULL
		ORDER BY alias`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.Version == 0 {
		device.Version = 1
	}

	query := `
		INSERT INTO devices (uuid, alias, api_key_hash, version, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)`

	_, err := r.db.ExecContext(ctx, query,
		device.UUID,
		device.Alias,
		device.APIKeyHash,
		device.Version,
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies an existing device's mutable fields and bumps its version.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices
		SET alias = ?, api_key_hash = ?, version = version + 1, updated_at = ?
		WHERE uuid = ? AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query,
		device.Alias,
		device.APIKeyHash,
		device.UpdatedAt.Format(time.RFC3339),
		device.UUID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	device.Version++
	return nil
}

// Delete soft-deletes a device by UUID.
func (r *SQLiteRepository) Delete(ctx context.Context, uuid string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		UPDATE devices
		SET deleted_at = ?, updated_at = ?
		WHERE uuid = ? AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, now, now, uuid)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var createdAt, updatedAt string
	var deletedAt sql.NullString

	err := scanner.Scan(
		&d.UUID,
		&d.Alias,
		&d.APIKeyHash,
		&d.Version,
		&createdAt,
		&updatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	d.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339, deletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing deleted_at: %w", err)
		}
		d.DeletedAt = &t
	}

	return &d, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
