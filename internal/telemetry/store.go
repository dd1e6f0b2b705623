package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// WriteOutcome classifies the result of a durable write.
type WriteOutcome int

const (
	// Written means a new row was persisted.
	Written WriteOutcome = iota

	// Duplicate means a row with the same (device_uuid, device_time)
	// already exists. Not an error; the earlier write succeeded.
	Duplicate

	// Failed means the store rejected or could not complete the write.
	// Retryable by the caller.
	Failed
)

// String returns the outcome name for logging.
func (o WriteOutcome) String() string {
	switch o {
	case Written:
		return "written"
	case Duplicate:
		return "duplicate"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Store defines the interface for durable reading persistence.
type Store interface {
	// Write persists a reading. A reading whose (device_uuid, device_time)
	// pair already exists reports Duplicate without error. Failed outcomes
	// carry the underlying error.
	Write(ctx context.Context, r *Reading) (WriteOutcome, error)

	// LatestForDevice returns the reading with the greatest device_time
	// for a device. Returns ErrNoReadings if the device has none.
	LatestForDevice(ctx context.Context, deviceUUID string) (*Reading, error)
}

// storedTimeLayout is a fixed-width RFC 3339 layout. Trailing fractional
// zeros are kept so that lexicographic ordering of the TEXT column matches
// chronological ordering.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite. The unique constraint on
// (device_uuid, device_time) is the store-level atomicity guarantee the
// idempotent write relies on.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed reading store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Write persists a reading as a single insert.
func (s *SQLiteStore) Write(ctx context.Context, r *Reading) (WriteOutcome, error) {
	query := `
		INSERT INTO telemetry_readings (ingestion_id, device_uuid, device_time, x_coord, y_coord, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		r.IngestionID,
		r.DeviceUUID,
		r.DeviceTime.UTC().Format(storedTimeLayout),
		r.XCoord,
		r.YCoord,
		r.ReceivedAt.UTC().Format(storedTimeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return Duplicate, nil
		}
		return Failed, fmt.Errorf("inserting reading: %w", err)
	}

	return Written, nil
}

// LatestForDevice returns the newest reading by device_time.
func (s *SQLiteStore) LatestForDevice(ctx context.Context, deviceUUID string) (*Reading, error) {
	query := `
		SELECT ingestion_id, device_uuid, device_time, x_coord, y_coord, received_at
		FROM telemetry_readings
		WHERE device_uuid = ?
		ORDER BY device_time DESC
		LIMIT 1`

	var r Reading
	var deviceTime, receivedAt string
	err := s.db.QueryRowContext(ctx, query, deviceUUID).Scan(
		&r.IngestionID,
		&r.DeviceUUID,
		&deviceTime,
		&r.XCoord,
		&r.YCoord,
		&receivedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoReadings
		}
		return nil, fmt.Errorf("querying latest reading: %w", err)
	}

	r.DeviceTime, err = time.Parse(time.RFC3339Nano, deviceTime)
	if err != nil {
		return nil, fmt.Errorf("parsing device_time: %w", err)
	}
	r.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing received_at: %w", err)
	}

	return &r, nil
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
