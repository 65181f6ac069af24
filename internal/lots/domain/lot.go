package lots

import (
	"strings"
	"time"

	benchtest "devicelab/internal/benchtest/domain"
)

// LotType is the intake channel a lot was created for.
type LotType string

const (
	LotManufacturer LotType = "Manufacturer"
	LotReturned     LotType = "Returned"
	LotRMA          LotType = "RMA"
	LotInventory    LotType = "Inventory"
)

// ParseLotType normalizes a lot type. An empty value is allowed and means
// "the lot's own type".
func ParseLotType(value string) (LotType, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	for _, t := range []LotType{LotManufacturer, LotReturned, LotRMA, LotInventory} {
		if strings.EqualFold(value, string(t)) {
			return t, nil
		}
	}
	return "", InvalidRequestf("unknown lotType %q", value)
}

// LotStatus is the lifecycle status of a lot.
type LotStatus string

const (
	LotOpen              LotStatus = "Open"
	LotActive            LotStatus = "Active"
	LotBenchTestComplete LotStatus = "BenchTestComplete"
	LotClosed            LotStatus = "Closed"
)

// AssigningStatuses are the statuses in which devices are actively assigned.
var AssigningStatuses = []LotStatus{LotOpen, LotActive}

// DeviceLot is a batch of devices received together.
type DeviceLot struct {
	SeqID     int64     `json:"lotSeqId"`
	Name      string    `json:"name"`
	Type      LotType   `json:"lotType"`
	Status    LotStatus `json:"status"`
	CreatedAt time.Time `json:"createDateTime"`
	UpdatedAt time.Time `json:"updateDateTime"`
}

// LotDevice is a device assigned to a lot with its master record bench test fields.
type LotDevice struct {
	SerialNumber      string                 `json:"serialNumber"`
	LotSeqID          int64                  `json:"lotSeqId"`
	LotType           LotType                `json:"lotType"`
	Status            benchtest.DeviceStatus `json:"benchTestStatusCode"`
	BenchTestVerified bool                   `json:"benchTestVerified"`
	VerifiedAt        *time.Time             `json:"benchTestVerifiedDateTime,omitempty"`
}

// Statuses returns the bench test statuses of devices.
func Statuses(devices []LotDevice) []benchtest.DeviceStatus {
	statuses := make([]benchtest.DeviceStatus, len(devices))
	for i, device := range devices {
		statuses[i] = device.Status
	}
	return statuses
}
