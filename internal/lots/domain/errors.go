package lots

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates malformed or missing input.
	ErrInvalidRequest = errors.New("lots: invalid request")
	// ErrLotNotFound indicates a missing lot.
	ErrLotNotFound = errors.New("lots: lot not found")
	// ErrDeviceNotFound indicates a serial unknown to the device master.
	ErrDeviceNotFound = errors.New("lots: device not found")
	// ErrNoDevicesFound indicates a lot without any tested device.
	ErrNoDevicesFound = errors.New("lots: no tested devices found")
)

// InvalidRequestf wraps ErrInvalidRequest with a detail message.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
