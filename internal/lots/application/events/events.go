package events

import (
	"time"

	lots "devicelab/internal/lots/domain"
)

// LotVerified is emitted after every Verify call that attempted writes.
type LotVerified struct {
	EventID           string       `json:"eventId"`
	LotSeqID          int64        `json:"lotSeqId"`
	LotType           lots.LotType `json:"lotType"`
	TotalDevices      int          `json:"totalDevices"`
	SuccessfulUpdates int          `json:"successfulUpdates"`
	FailedUpdates     int          `json:"failedUpdates"`
	LotMarkedComplete bool         `json:"lotMarkedComplete"`
	Actor             string       `json:"actor"`
	OccurredAt        time.Time    `json:"occurredAt"`
}

// RequiredPercentageChanged is emitted when an admin changes the tunable.
type RequiredPercentageChanged struct {
	EventID    string    `json:"eventId"`
	Previous   int       `json:"previous"`
	Percentage int       `json:"percentage"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurredAt"`
}
