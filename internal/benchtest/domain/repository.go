package benchtest

import (
	"context"
	"time"
)

// BoardRepository persists boards and their device rows. Get returns nil, nil
// for a missing board. Status changes are compare-and-swap: a transition whose
// From status no longer matches the stored row fails with ErrStatusConflict.
type BoardRepository interface {
	Create(ctx context.Context, board *Board) error
	Get(ctx context.Context, id int64) (*Board, error)
	ListByLocation(ctx context.Context, locationCode string) ([]Board, error)
	ListByStatus(ctx context.Context, status Status) ([]Board, error)
	UpdateDetails(ctx context.Context, board *Board) error
	Delete(ctx context.Context, id int64) error

	TransitionStatus(ctx context.Context, id int64, t Transition, at time.Time) (*Board, error)
	ClearDevices(ctx context.Context, id int64, at time.Time) (*Board, error)

	ListDevices(ctx context.Context, boardID int64) ([]BoardDevice, error)
	AttachDevice(ctx context.Context, device BoardDevice) (*Board, error)
	DetachDevice(ctx context.Context, boardID int64, serialNumber string, at time.Time) (*Board, error)
	UpdateDeviceStatus(ctx context.Context, boardID int64, serialNumber string, status DeviceStatus, at time.Time) (*BoardDevice, error)
}
