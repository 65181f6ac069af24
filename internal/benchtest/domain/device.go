package benchtest

import (
	"strings"
	"time"
)

// DeviceStatus is the bench test status reported for a device.
type DeviceStatus string

const (
	DeviceQueued         DeviceStatus = "Queued"
	DeviceConfigUpdating DeviceStatus = "ConfigUpdating"
	DeviceRunning        DeviceStatus = "Running"
	DeviceCompleted      DeviceStatus = "Completed"
	DeviceError          DeviceStatus = "Error"
	DeviceFirmwareError  DeviceStatus = "FirmwareError"
)

var deviceStatuses = map[string]DeviceStatus{
	"queued":         DeviceQueued,
	"configupdating": DeviceConfigUpdating,
	"running":        DeviceRunning,
	"completed":      DeviceCompleted,
	"error":          DeviceError,
	"firmwareerror":  DeviceFirmwareError,
}

// ParseDeviceStatus normalizes a status string, accepting any case and
// ignoring spaces, dashes and underscores.
func ParseDeviceStatus(value string) (DeviceStatus, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	status, ok := deviceStatuses[key]
	if !ok {
		return "", ErrUnknownDeviceStatus
	}
	return status, nil
}

// IsTerminal reports whether no further automatic transition occurs.
func (s DeviceStatus) IsTerminal() bool {
	switch s {
	case DeviceCompleted, DeviceError, DeviceFirmwareError:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the device passed its bench test.
func (s DeviceStatus) IsSuccess() bool {
	return s == DeviceCompleted
}

// BoardDevice is one device placed on a board.
type BoardDevice struct {
	BoardID         int64        `json:"boardId"`
	SerialNumber    string       `json:"deviceSerialNumber"`
	LocationOnBoard int          `json:"locationOnBoard"`
	Status          DeviceStatus `json:"benchTestStatusCode"`
	CreatedAt       time.Time    `json:"createDateTime"`
	UpdatedAt       time.Time    `json:"updateDateTime"`
}

// Validate checks a device before it is attached.
func (d BoardDevice) Validate() error {
	if d.BoardID <= 0 {
		return InvalidRequestf("boardId must be positive")
	}
	if strings.TrimSpace(d.SerialNumber) == "" {
		return InvalidRequestf("deviceSerialNumber required")
	}
	if d.LocationOnBoard < 0 {
		return InvalidRequestf("locationOnBoard must not be negative")
	}
	return nil
}
