package benchtest

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a test board.
type Status string

const (
	StatusOpen     Status = "Open"
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
)

// ParseStatus normalizes a board status string.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "open":
		return StatusOpen, true
	case "running":
		return StatusRunning, true
	case "complete":
		return StatusComplete, true
	default:
		return "", false
	}
}

// Board is a physical test rig with numbered device slots.
type Board struct {
	ID           int64     `json:"boardId"`
	Name         string    `json:"name"`
	LocationCode string    `json:"locationCode"`
	OwnerUserID  string    `json:"ownerUserId"`
	Status       Status    `json:"status"`
	DeviceCount  int       `json:"deviceCount"`
	CreatedAt    time.Time `json:"createDateTime"`
	UpdatedAt    time.Time `json:"updateDateTime"`
}

// Validate checks the client-writable fields of a board.
func (b Board) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return InvalidRequestf("name required")
	}
	if strings.TrimSpace(b.LocationCode) == "" {
		return InvalidRequestf("locationCode required")
	}
	return nil
}

// Transition is one edge of the board state machine.
type Transition struct {
	Name           string
	From           Status
	To             Status
	RequireDevices bool
}

var (
	// TransitionStart moves a loaded board into testing.
	TransitionStart = Transition{Name: "start", From: StatusOpen, To: StatusRunning, RequireDevices: true}
	// TransitionStop completes a running board, whether or not its devices finished.
	TransitionStop = Transition{Name: "stop", From: StatusRunning, To: StatusComplete}
	// TransitionClear returns a completed board to Open and removes its devices.
	TransitionClear = Transition{Name: "clear", From: StatusComplete, To: StatusOpen}
)

// Check reports whether the transition may be applied to the board.
func (t Transition) Check(board *Board) error {
	if board == nil {
		return ErrBoardNotFound
	}
	if board.Status != t.From {
		return transitionError(t, board.Status, "")
	}
	if t.RequireDevices && board.DeviceCount <= 0 {
		return transitionError(t, board.Status, "board has no devices")
	}
	return nil
}

// CanDelete reports whether the board may be removed.
func (b Board) CanDelete() error {
	if b.Status != StatusOpen {
		return transitionErrorf("delete requires status %s, board is %s", StatusOpen, b.Status)
	}
	if b.DeviceCount > 0 {
		return transitionErrorf("delete requires an empty board, board has %d devices", b.DeviceCount)
	}
	return nil
}

// CanChangeDevices reports whether devices may be attached or detached.
func (b Board) CanChangeDevices() error {
	if b.Status != StatusOpen {
		return transitionErrorf("devices can only change while board is %s, board is %s", StatusOpen, b.Status)
	}
	return nil
}
