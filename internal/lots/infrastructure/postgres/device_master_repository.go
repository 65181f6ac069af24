package postgres

import (
	"context"
	"database/sql"
	"time"

	benchtest "devicelab/internal/benchtest/domain"
	lots "devicelab/internal/lots/domain"
)

// DeviceMasterRepository writes bench test fields of the devices table.
type DeviceMasterRepository struct {
	db *sql.DB
}

// NewDeviceMasterRepository constructs a repository.
func NewDeviceMasterRepository(db *sql.DB) *DeviceMasterRepository {
	return &DeviceMasterRepository{db: db}
}

// MarkBenchTestVerified sets the verified flag. Repeating it keeps the first
// verification time.
func (r *DeviceMasterRepository) MarkBenchTestVerified(ctx context.Context, serialNumber string, at time.Time) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	return r.exec(ctx, `
UPDATE devices
SET bench_test_verified = TRUE,
	bench_test_verified_at = COALESCE(bench_test_verified_at, $2),
	updated_at = $2
WHERE serial_number = $1`, serialNumber, at)
}

// RecordBenchTestStatus stores the latest bench test status of a device.
func (r *DeviceMasterRepository) RecordBenchTestStatus(ctx context.Context, serialNumber string, status benchtest.DeviceStatus, at time.Time) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	return r.exec(ctx, `
UPDATE devices
SET bench_test_status_code = $2, updated_at = $3
WHERE serial_number = $1`, serialNumber, string(status), at)
}

func (r *DeviceMasterRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return lots.ErrDeviceNotFound
	}
	return nil
}
