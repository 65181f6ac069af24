package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	benchtest "devicelab/internal/benchtest/domain"
	lots "devicelab/internal/lots/domain"
)

const lotColumns = `lot_seq_id, name, lot_type, status, created_at, updated_at`

var errNilDB = errors.New("lot repo: nil db")

// LotRepository is a Postgres implementation of the lot store.
type LotRepository struct {
	db *sql.DB
}

// NewLotRepository constructs a repository.
func NewLotRepository(db *sql.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Get fetches a lot by sequence id.
func (r *LotRepository) Get(ctx context.Context, seqID int64) (*lots.DeviceLot, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+lotColumns+`
FROM device_lots
WHERE lot_seq_id = $1`, seqID)
	lot, err := scanLot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return lot, err
}

// ListByStatus lists lots in any of the statuses.
func (r *LotRepository) ListByStatus(ctx context.Context, statuses ...lots.LotStatus) ([]lots.DeviceLot, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+lotColumns+`
FROM device_lots
WHERE status = ANY($1::text[])
ORDER BY lot_seq_id ASC`, values)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lots.DeviceLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *lot)
	}
	return result, rows.Err()
}

// ListDevices lists a lot's devices joined with their master record.
func (r *LotRepository) ListDevices(ctx context.Context, seqID int64, lotType lots.LotType) ([]lots.LotDevice, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT a.serial_number, a.lot_seq_id, a.lot_type, d.bench_test_status_code, d.bench_test_verified, d.bench_test_verified_at
FROM device_lot_devices a
JOIN devices d ON d.serial_number = a.serial_number
WHERE a.lot_seq_id = $1 AND ($2 = '' OR a.lot_type = $2)
ORDER BY a.assigned_at ASC, a.serial_number ASC`, seqID, string(lotType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lots.LotDevice
	for rows.Next() {
		var (
			device     lots.LotDevice
			lotTypeStr string
			statusStr  string
			verifiedAt sql.NullTime
		)
		if err := rows.Scan(&device.SerialNumber, &device.LotSeqID, &lotTypeStr, &statusStr, &device.BenchTestVerified, &verifiedAt); err != nil {
			return nil, err
		}
		device.LotType = lots.LotType(lotTypeStr)
		device.Status = benchtest.DeviceStatus(statusStr)
		if verifiedAt.Valid {
			at := verifiedAt.Time.UTC()
			device.VerifiedAt = &at
		}
		result = append(result, device)
	}
	return result, rows.Err()
}

// UpdateStatus sets a lot's status.
func (r *LotRepository) UpdateStatus(ctx context.Context, seqID int64, status lots.LotStatus, at time.Time) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE device_lots
SET status = $2, updated_at = $3
WHERE lot_seq_id = $1`, seqID, string(status), at)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return lots.ErrLotNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (*lots.DeviceLot, error) {
	var (
		lot       lots.DeviceLot
		lotType   string
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&lot.SeqID, &lot.Name, &lotType, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	lot.Type = lots.LotType(lotType)
	lot.Status = lots.LotStatus(status)
	lot.CreatedAt = createdAt.UTC()
	lot.UpdatedAt = updatedAt.UTC()
	return &lot, nil
}
