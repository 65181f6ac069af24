package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	benchtest "devicelab/internal/benchtest/domain"
)

// BoardRepository is an in-memory board store.
type BoardRepository struct {
	mu      sync.RWMutex
	nextID  int64
	boards  map[int64]benchtest.Board
	devices map[int64]map[string]benchtest.BoardDevice
}

// NewBoardRepository constructs a repository.
func NewBoardRepository() *BoardRepository {
	return &BoardRepository{
		boards:  make(map[int64]benchtest.Board),
		devices: make(map[int64]map[string]benchtest.BoardDevice),
	}
}

// Create stores a new board and assigns its id.
func (r *BoardRepository) Create(ctx context.Context, board *benchtest.Board) error {
	_ = ctx
	if board == nil {
		return benchtest.InvalidRequestf("nil board")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	board.ID = r.nextID
	r.boards[board.ID] = *board
	r.devices[board.ID] = make(map[string]benchtest.BoardDevice)
	return nil
}

// Get returns a board or nil.
func (r *BoardRepository) Get(ctx context.Context, id int64) (*benchtest.Board, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	board, ok := r.boards[id]
	if !ok {
		return nil, nil
	}
	return &board, nil
}

// ListByLocation returns boards at a location ordered by id.
func (r *BoardRepository) ListByLocation(ctx context.Context, locationCode string) ([]benchtest.Board, error) {
	return r.list(ctx, func(b benchtest.Board) bool { return b.LocationCode == locationCode })
}

// ListByStatus returns boards in a status ordered by id.
func (r *BoardRepository) ListByStatus(ctx context.Context, status benchtest.Status) ([]benchtest.Board, error) {
	return r.list(ctx, func(b benchtest.Board) bool { return b.Status == status })
}

func (r *BoardRepository) list(ctx context.Context, match func(benchtest.Board) bool) ([]benchtest.Board, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []benchtest.Board
	for _, board := range r.boards {
		if match(board) {
			result = append(result, board)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateDetails updates name, location and owner.
func (r *BoardRepository) UpdateDetails(ctx context.Context, board *benchtest.Board) error {
	_ = ctx
	if board == nil {
		return benchtest.InvalidRequestf("nil board")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.boards[board.ID]
	if !ok {
		return benchtest.ErrBoardNotFound
	}
	stored.Name = board.Name
	stored.LocationCode = board.LocationCode
	stored.OwnerUserID = board.OwnerUserID
	stored.UpdatedAt = board.UpdatedAt
	r.boards[board.ID] = stored
	*board = stored
	return nil
}

// Delete removes an open, empty board.
func (r *BoardRepository) Delete(ctx context.Context, id int64) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.boards[id]
	if !ok {
		return benchtest.ErrBoardNotFound
	}
	if err := stored.CanDelete(); err != nil {
		return err
	}
	delete(r.boards, id)
	delete(r.devices, id)
	return nil
}

// TransitionStatus applies a transition if the stored board still matches it.
func (r *BoardRepository) TransitionStatus(ctx context.Context, id int64, t benchtest.Transition, at time.Time) (*benchtest.Board, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.boards[id]
	if !ok {
		return nil, benchtest.ErrBoardNotFound
	}
	if stored.Status != t.From || (t.RequireDevices && stored.DeviceCount <= 0) {
		return nil, benchtest.ErrStatusConflict
	}
	stored.Status = t.To
	stored.UpdatedAt = at
	r.boards[id] = stored
	return &stored, nil
}

// ClearDevices removes every device of a complete board and reopens it.
func (r *BoardRepository) ClearDevices(ctx context.Context, id int64, at time.Time) (*benchtest.Board, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.boards[id]
	if !ok {
		return nil, benchtest.ErrBoardNotFound
	}
	if stored.Status != benchtest.TransitionClear.From {
		return nil, benchtest.ErrStatusConflict
	}
	r.devices[id] = make(map[string]benchtest.BoardDevice)
	stored.Status = benchtest.TransitionClear.To
	stored.DeviceCount = 0
	stored.UpdatedAt = at
	r.boards[id] = stored
	return &stored, nil
}

// ListDevices returns devices ordered by slot.
func (r *BoardRepository) ListDevices(ctx context.Context, boardID int64) ([]benchtest.BoardDevice, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.boards[boardID]; !ok {
		return nil, benchtest.ErrBoardNotFound
	}
	result := make([]benchtest.BoardDevice, 0, len(r.devices[boardID]))
	for _, device := range r.devices[boardID] {
		result = append(result, device)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LocationOnBoard < result[j].LocationOnBoard })
	return result, nil
}

// AttachDevice places a device on an open board.
func (r *BoardRepository) AttachDevice(ctx context.Context, device benchtest.BoardDevice) (*benchtest.Board, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.boards[device.BoardID]
	if !ok {
		return nil, benchtest.ErrBoardNotFound
	}
	if err := stored.CanChangeDevices(); err != nil {
		return nil, err
	}
	for _, devices := range r.devices {
		if _, exists := devices[device.SerialNumber]; exists {
			return nil, benchtest.ErrDeviceAttached
		}
	}
	for _, existing := range r.devices[device.BoardID] {
		if existing.LocationOnBoard == device.LocationOnBoard {
			return nil, benchtest.ErrSlotOccupied
		}
	}
	r.devices[device.BoardID][device.SerialNumber] = device
	stored.DeviceCount = len(r.devices[device.BoardID])
	stored.UpdatedAt = device.CreatedAt
	r.boards[device.BoardID] = stored
	return &stored, nil
}

// DetachDevice removes a device from an open board.
func (r *BoardRepository) DetachDevice(ctx context.Context, boardID int64, serialNumber string, at time.Time) (*benchtest.Board, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.boards[boardID]
	if !ok {
		return nil, benchtest.ErrBoardNotFound
	}
	if err := stored.CanChangeDevices(); err != nil {
		return nil, err
	}
	if _, exists := r.devices[boardID][serialNumber]; !exists {
		return nil, benchtest.ErrDeviceNotFound
	}
	delete(r.devices[boardID], serialNumber)
	stored.DeviceCount = len(r.devices[boardID])
	stored.UpdatedAt = at
	r.boards[boardID] = stored
	return &stored, nil
}

// UpdateDeviceStatus records a reported bench test status.
func (r *BoardRepository) UpdateDeviceStatus(ctx context.Context, boardID int64, serialNumber string, status benchtest.DeviceStatus, at time.Time) (*benchtest.BoardDevice, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.boards[boardID]; !ok {
		return nil, benchtest.ErrBoardNotFound
	}
	device, exists := r.devices[boardID][serialNumber]
	if !exists {
		return nil, benchtest.ErrDeviceNotFound
	}
	device.Status = status
	device.UpdatedAt = at
	r.devices[boardID][serialNumber] = device
	return &device, nil
}
