package events

import (
	"time"

	benchtest "devicelab/internal/benchtest/domain"
)

// BoardUpdated is emitted after every successful board transition.
type BoardUpdated struct {
	EventID        string           `json:"eventId"`
	BoardID        int64            `json:"boardId"`
	Transition     string           `json:"transition"`
	PreviousStatus benchtest.Status `json:"previousStatus"`
	Status         benchtest.Status `json:"status"`
	DeviceCount    int              `json:"deviceCount"`
	Actor          string           `json:"actor"`
	OccurredAt     time.Time        `json:"occurredAt"`
}

// BoardCleared is emitted when a completed board is emptied and reopened.
type BoardCleared struct {
	EventID        string    `json:"eventId"`
	BoardID        int64     `json:"boardId"`
	RemovedDevices int       `json:"removedDevices"`
	Actor          string    `json:"actor"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// DeviceStatusChanged is emitted when a rig reports a device bench test status.
type DeviceStatusChanged struct {
	EventID      string                 `json:"eventId"`
	BoardID      int64                  `json:"boardId"`
	SerialNumber string                 `json:"deviceSerialNumber"`
	Status       benchtest.DeviceStatus `json:"benchTestStatusCode"`
	Source       string                 `json:"source"`
	Summary      benchtest.Summary      `json:"summary"`
	OccurredAt   time.Time              `json:"occurredAt"`
}
