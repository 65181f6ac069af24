package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	benchtest "devicelab/internal/benchtest/domain"
)

const (
	uniqueViolation = "23505"

	constraintDeviceSerial = "bench_test_board_devices_pkey"
	constraintDeviceSlot   = "bench_test_board_devices_slot_key"
)

const boardColumns = `board_id, name, location_code, owner_user_id, status, device_count, created_at, updated_at`

const deviceColumns = `board_id, device_serial_number, location_on_board, bench_test_status_code, created_at, updated_at`

// BoardRepository is a Postgres implementation of the board store.
type BoardRepository struct {
	db *sql.DB
}

// NewBoardRepository constructs a repository.
func NewBoardRepository(db *sql.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

var errNilDB = errors.New("board repo: nil db")

// Create inserts a board and assigns its id.
func (r *BoardRepository) Create(ctx context.Context, board *benchtest.Board) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if board == nil {
		return errors.New("board repo: nil board")
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO bench_test_boards (
	name, location_code, owner_user_id, status, device_count, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, 0, $5, $6
)
RETURNING board_id`, board.Name, board.LocationCode, board.OwnerUserID, board.Status, board.CreatedAt, board.UpdatedAt).Scan(&board.ID)
}

// Get fetches a board by id.
func (r *BoardRepository) Get(ctx context.Context, id int64) (*benchtest.Board, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+boardColumns+`
FROM bench_test_boards
WHERE board_id = $1`, id)
	return scanBoard(row)
}

// ListByLocation lists boards at a location.
func (r *BoardRepository) ListByLocation(ctx context.Context, locationCode string) ([]benchtest.Board, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	return r.queryBoards(ctx, `
SELECT `+boardColumns+`
FROM bench_test_boards
WHERE location_code = $1
ORDER BY board_id ASC`, locationCode)
}

// ListByStatus lists boards in a status.
func (r *BoardRepository) ListByStatus(ctx context.Context, status benchtest.Status) ([]benchtest.Board, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	return r.queryBoards(ctx, `
SELECT `+boardColumns+`
FROM bench_test_boards
WHERE status = $1
ORDER BY board_id ASC`, status)
}

func (r *BoardRepository) queryBoards(ctx context.Context, query string, args ...any) ([]benchtest.Board, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []benchtest.Board
	for rows.Next() {
		board, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *board)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateDetails updates the client-writable fields of a board.
func (r *BoardRepository) UpdateDetails(ctx context.Context, board *benchtest.Board) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	if board == nil {
		return errors.New("board repo: nil board")
	}
	row := r.db.QueryRowContext(ctx, `
UPDATE bench_test_boards
SET name = $2, location_code = $3, owner_user_id = $4, updated_at = $5
WHERE board_id = $1
RETURNING `+boardColumns, board.ID, board.Name, board.LocationCode, board.OwnerUserID, board.UpdatedAt)
	updated, err := scanBoard(row)
	if err != nil {
		return err
	}
	if updated == nil {
		return benchtest.ErrBoardNotFound
	}
	*board = *updated
	return nil
}

// Delete removes an open, empty board; device rows cascade.
func (r *BoardRepository) Delete(ctx context.Context, id int64) error {
	if r == nil || r.db == nil {
		return errNilDB
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM bench_test_boards
WHERE board_id = $1 AND status = $2 AND device_count = 0`, id, benchtest.StatusOpen)
	if err != nil {
		return err
	}
	if count, _ := result.RowsAffected(); count == 1 {
		return nil
	}
	board, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if board == nil {
		return benchtest.ErrBoardNotFound
	}
	if err := board.CanDelete(); err != nil {
		return err
	}
	return benchtest.ErrStatusConflict
}

// TransitionStatus moves a board from t.From to t.To in a single conditional update.
func (r *BoardRepository) TransitionStatus(ctx context.Context, id int64, t benchtest.Transition, at time.Time) (*benchtest.Board, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRowContext(ctx, `
UPDATE bench_test_boards
SET status = $3, updated_at = $4
WHERE board_id = $1 AND status = $2 AND (NOT $5 OR device_count > 0)
RETURNING `+boardColumns, id, t.From, t.To, at, t.RequireDevices)
	board, err := scanBoard(row)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, r.missOrConflict(ctx, id)
	}
	return board, nil
}

// ClearDevices deletes all device rows of a complete board and reopens it.
func (r *BoardRepository) ClearDevices(ctx context.Context, id int64, at time.Time) (*benchtest.Board, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	row := tx.QueryRowContext(ctx, `
UPDATE bench_test_boards
SET status = $3, device_count = 0, updated_at = $4
WHERE board_id = $1 AND status = $2
RETURNING `+boardColumns, id, benchtest.TransitionClear.From, benchtest.TransitionClear.To, at)
	board, err := scanBoard(row)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if board == nil {
		_ = tx.Rollback()
		return nil, r.missOrConflict(ctx, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bench_test_board_devices WHERE board_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return board, nil
}

// ListDevices lists devices on a board ordered by slot.
func (r *BoardRepository) ListDevices(ctx context.Context, boardID int64) ([]benchtest.BoardDevice, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+deviceColumns+`
FROM bench_test_board_devices
WHERE board_id = $1
ORDER BY location_on_board ASC`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]benchtest.BoardDevice, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AttachDevice inserts a device row and bumps the board's device count.
func (r *BoardRepository) AttachDevice(ctx context.Context, device benchtest.BoardDevice) (*benchtest.Board, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	row := tx.QueryRowContext(ctx, `
UPDATE bench_test_boards
SET device_count = device_count + 1, updated_at = $3
WHERE board_id = $1 AND status = $2
RETURNING `+boardColumns, device.BoardID, benchtest.StatusOpen, device.CreatedAt)
	board, err := scanBoard(row)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if board == nil {
		_ = tx.Rollback()
		return nil, r.changeDevicesError(ctx, device.BoardID)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO bench_test_board_devices (
	board_id, device_serial_number, location_on_board, bench_test_status_code, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6
)`, device.BoardID, device.SerialNumber, device.LocationOnBoard, device.Status, device.CreatedAt, device.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return nil, mapUniqueViolation(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return board, nil
}

// DetachDevice deletes a device row and decrements the board's device count.
func (r *BoardRepository) DetachDevice(ctx context.Context, boardID int64, serialNumber string, at time.Time) (*benchtest.Board, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	result, err := tx.ExecContext(ctx, `
DELETE FROM bench_test_board_devices
WHERE board_id = $1 AND device_serial_number = $2`, boardID, serialNumber)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if count, _ := result.RowsAffected(); count == 0 {
		_ = tx.Rollback()
		board, err := r.Get(ctx, boardID)
		if err != nil {
			return nil, err
		}
		if board == nil {
			return nil, benchtest.ErrBoardNotFound
		}
		return nil, benchtest.ErrDeviceNotFound
	}
	row := tx.QueryRowContext(ctx, `
UPDATE bench_test_boards
SET device_count = device_count - 1, updated_at = $3
WHERE board_id = $1 AND status = $2
RETURNING `+boardColumns, boardID, benchtest.StatusOpen, at)
	board, err := scanBoard(row)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if board == nil {
		_ = tx.Rollback()
		return nil, r.changeDevicesError(ctx, boardID)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return board, nil
}

// UpdateDeviceStatus records a reported bench test status.
func (r *BoardRepository) UpdateDeviceStatus(ctx context.Context, boardID int64, serialNumber string, status benchtest.DeviceStatus, at time.Time) (*benchtest.BoardDevice, error) {
	if r == nil || r.db == nil {
		return nil, errNilDB
	}
	row := r.db.QueryRowContext(ctx, `
UPDATE bench_test_board_devices
SET bench_test_status_code = $3, updated_at = $4
WHERE board_id = $1 AND device_serial_number = $2
RETURNING `+deviceColumns, boardID, serialNumber, status, at)
	device, err := scanDevice(row)
	if err != nil {
		return nil, err
	}
	if device != nil {
		return device, nil
	}
	board, err := r.Get(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, benchtest.ErrBoardNotFound
	}
	return nil, benchtest.ErrDeviceNotFound
}

func (r *BoardRepository) missOrConflict(ctx context.Context, id int64) error {
	board, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if board == nil {
		return benchtest.ErrBoardNotFound
	}
	return benchtest.ErrStatusConflict
}

func (r *BoardRepository) changeDevicesError(ctx context.Context, id int64) error {
	board, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if board == nil {
		return benchtest.ErrBoardNotFound
	}
	return board.CanChangeDevices()
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintDeviceSerial:
		return benchtest.ErrDeviceAttached
	case constraintDeviceSlot:
		return benchtest.ErrSlotOccupied
	default:
		return benchtest.InvalidRequestf("%s", pgErr.Detail)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBoard(row rowScanner) (*benchtest.Board, error) {
	var board benchtest.Board
	var status string
	if err := row.Scan(
		&board.ID,
		&board.Name,
		&board.LocationCode,
		&board.OwnerUserID,
		&status,
		&board.DeviceCount,
		&board.CreatedAt,
		&board.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	board.Status = benchtest.Status(status)
	board.CreatedAt = board.CreatedAt.UTC()
	board.UpdatedAt = board.UpdatedAt.UTC()
	return &board, nil
}

func scanDevice(row rowScanner) (*benchtest.BoardDevice, error) {
	var device benchtest.BoardDevice
	var status string
	if err := row.Scan(
		&device.BoardID,
		&device.SerialNumber,
		&device.LocationOnBoard,
		&status,
		&device.CreatedAt,
		&device.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	device.Status = benchtest.DeviceStatus(status)
	device.CreatedAt = device.CreatedAt.UTC()
	device.UpdatedAt = device.UpdatedAt.UTC()
	return &device, nil
}
