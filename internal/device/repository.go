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
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByName retrieves a device by its broker identity.
	// Returns ErrDeviceNotFound if no device carries the name.
	GetByName(ctx context.Context, name string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the ID or name is already taken.
	Create(ctx context.Context, device *Device) error

	// Delete removes a device by ID. The device must not be linked to
	// any horse; returns ErrDeviceAssigned otherwise.
	Delete(ctx context.Context, id string) error

	// ListScheduledFeedersDue returns feeders in SCHEDULED mode with any
	// slot time equal to hhmm ("HH:MM" in the site timezone).
	ListScheduledFeedersDue(ctx context.Context, hhmm string) ([]Device, error)

	// SetStreamToken stores a fresh token for a camera and marks it valid,
	// replacing any previous token.
	SetStreamToken(ctx context.Context, id, token string) error

	// InvalidateStreamToken marks the camera's current token invalid.
	// No-op when the device has no token.
	InvalidateStreamToken(ctx context.Context, id string) error

	// GetByStreamToken resolves a camera by a currently valid token.
	// Returns ErrDeviceNotFound for unknown or invalidated tokens.
	GetByStreamToken(ctx context.Context, token string) (*Device, error)
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

const deviceColumns = `id, name, label, class, feeder_mode, scheduled_kg,
		morning_time, day_time, night_time, stream_token, stream_token_valid,
		created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// GetByName retrieves a device by its broker identity.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE name = ?`

	row := r.db.QueryRowContext(ctx, query, name)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by name: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`
	return r.queryDevices(ctx, query)
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if device.Name == "" {
		return ErrInvalidName
	}
	if device.Class != ClassFeeder && device.Class != ClassCamera {
		return fmt.Errorf("%w: %q", ErrInvalidClass, device.Class)
	}

	// Set timestamps if not set
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, name, label, class, feeder_mode, scheduled_kg,
			morning_time, day_time, night_time, stream_token, stream_token_valid,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.Label,
		string(device.Class),
		nullableMode(device.FeederMode),
		nullableFloat(device.ScheduledKg),
		nullableString(device.MorningTime),
		nullableString(device.DayTime),
		nullableString(device.NightTime),
		nullableString(device.StreamToken),
		boolToInt(device.StreamTokenValid),
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

// Delete removes a device by ID.
// Refuses when the device is still linked as a horse's feeder or camera.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	var linked int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM horses WHERE feeder_id = ? OR camera_id = ?", id, id,
	).Scan(&linked)
	if err != nil {
		return fmt.Errorf("checking device assignment: %w", err)
	}
	if linked > 0 {
		return ErrDeviceAssigned
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
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

// ListScheduledFeedersDue returns SCHEDULED feeders with a slot matching hhmm.
func (r *SQLiteRepository) ListScheduledFeedersDue(ctx context.Context, hhmm string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + `
		FROM devices
		WHERE class = 'FEEDER'
		  AND feeder_mode = 'SCHEDULED'
		  AND (morning_time = ? OR day_time = ? OR night_time = ?)
		ORDER BY name`

	return r.queryDevices(ctx, query, hhmm, hhmm, hhmm)
}

// SetStreamToken stores a fresh token for a camera and marks it valid.
func (r *SQLiteRepository) SetStreamToken(ctx context.Context, id, token string) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET stream_token = ?, stream_token_valid = 1, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, token, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("setting stream token: %w", err)
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

// InvalidateStreamToken marks the camera's current token invalid.
func (r *SQLiteRepository) InvalidateStreamToken(ctx context.Context, id string) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET stream_token_valid = 0, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("invalidating stream token: %w", err)
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

// GetByStreamToken resolves a camera by a currently valid token.
func (r *SQLiteRepository) GetByStreamToken(ctx context.Context, token string) (*Device, error) {
	query := `SELECT ` + deviceColumns + `
		FROM devices
		WHERE stream_token = ? AND stream_token_valid = 1`

	row := r.db.QueryRowContext(ctx, query, token)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by stream token: %w", err)
	}
	return device, nil
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var feederMode sql.NullString
	var scheduledKg sql.NullFloat64
	var morningTime, dayTime, nightTime sql.NullString
	var streamToken sql.NullString
	var tokenValid int
	var class string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&d.Label,
		&class,
		&feederMode,
		&scheduledKg,
		&morningTime,
		&dayTime,
		&nightTime,
		&streamToken,
		&tokenValid,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Class = Class(class)
	d.StreamTokenValid = tokenValid != 0

	if feederMode.Valid {
		d.FeederMode = FeederMode(feederMode.String)
	}
	if scheduledKg.Valid {
		d.ScheduledKg = scheduledKg.Float64
	}
	if morningTime.Valid {
		d.MorningTime = &morningTime.String
	}
	if dayTime.Valid {
		d.DayTime = &dayTime.String
	}
	if nightTime.Valid {
		d.NightTime = &nightTime.String
	}
	if streamToken.Valid {
		d.StreamToken = &streamToken.String
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableMode returns a sql.NullString for an optional feeder mode.
func nullableMode(m FeederMode) sql.NullString {
	if m == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(m), Valid: true}
}

// nullableFloat returns a sql.NullFloat64 treating zero as unset.
func nullableFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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
