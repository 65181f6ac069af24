package benchtest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates malformed or missing input.
	ErrInvalidRequest = errors.New("benchtest: invalid request")
	// ErrInvalidTransition indicates a state machine precondition was not met.
	ErrInvalidTransition = errors.New("benchtest: invalid transition")
	// ErrBoardNotFound indicates a missing board.
	ErrBoardNotFound = errors.New("benchtest: board not found")
	// ErrDeviceNotFound indicates a missing board device.
	ErrDeviceNotFound = errors.New("benchtest: device not found")
	// ErrStatusConflict is returned by stores when a compare-and-swap loses.
	ErrStatusConflict = errors.New("benchtest: board status changed concurrently")

	// ErrDeviceAttached indicates the serial is already on a board.
	ErrDeviceAttached = fmt.Errorf("%w: device already attached to a board", ErrInvalidRequest)
	// ErrSlotOccupied indicates the board slot is already used.
	ErrSlotOccupied = fmt.Errorf("%w: location on board already occupied", ErrInvalidRequest)
	// ErrEmptyBoard marks a running board without devices.
	ErrEmptyBoard = fmt.Errorf("%w: running board has no devices", ErrInvalidTransition)
	// ErrUnknownDeviceStatus indicates an unrecognized bench test status.
	ErrUnknownDeviceStatus = fmt.Errorf("%w: unknown bench test status", ErrInvalidRequest)
)

// InvalidRequestf wraps ErrInvalidRequest with a detail message.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func transitionError(t Transition, current Status, detail string) error {
	if detail == "" {
		return fmt.Errorf("%w: %s requires status %s, board is %s", ErrInvalidTransition, t.Name, t.From, current)
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidTransition, t.Name, detail)
}

func transitionErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}
