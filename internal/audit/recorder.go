package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strconv"
	"time"

	"devicelab/internal/auth"
	benchevents "devicelab/internal/benchtest/application/events"
	lotevents "devicelab/internal/lots/application/events"
)

// Recorder turns domain events into audit entries. Caller address and role
// come from the publishing request context when present.
type Recorder struct {
	logger Logger
	log    *log.Logger
}

// NewRecorder constructs a recorder.
func NewRecorder(logger Logger, stdLogger *log.Logger) (*Recorder, error) {
	if logger == nil {
		return nil, errors.New("audit: nil logger")
	}
	if stdLogger == nil {
		stdLogger = log.New(io.Discard, "", 0)
	}
	return &Recorder{logger: logger, log: stdLogger}, nil
}

// HandleBoardUpdated records a board transition.
func (r *Recorder) HandleBoardUpdated(ctx context.Context, evt benchevents.BoardUpdated) error {
	return r.record(ctx, evt.Actor, "board."+evt.Transition, "bench_test_board",
		strconv.FormatInt(evt.BoardID, 10), evt, evt.OccurredAt)
}

// HandleBoardCleared records the devices removed by a clear.
func (r *Recorder) HandleBoardCleared(ctx context.Context, evt benchevents.BoardCleared) error {
	return r.record(ctx, evt.Actor, "board.devices_cleared", "bench_test_board",
		strconv.FormatInt(evt.BoardID, 10), evt, evt.OccurredAt)
}

// HandleLotVerified records a verification run.
func (r *Recorder) HandleLotVerified(ctx context.Context, evt lotevents.LotVerified) error {
	return r.record(ctx, evt.Actor, "lot.verify", "device_lot",
		strconv.FormatInt(evt.LotSeqID, 10), evt, evt.OccurredAt)
}

// HandleRequiredPercentageChanged records a settings change.
func (r *Recorder) HandleRequiredPercentageChanged(ctx context.Context, evt lotevents.RequiredPercentageChanged) error {
	return r.record(ctx, evt.Actor, "settings.required_percentage", "app_setting",
		"RequiredPercentage", evt, evt.OccurredAt)
}

// record never fails the publisher; a lost audit entry is logged.
func (r *Recorder) record(ctx context.Context, actor, action, resourceType, resourceID string, payload any, at time.Time) error {
	meta, err := json.Marshal(payload)
	if err != nil {
		r.log.Printf("audit: marshal %s: %v", action, err)
		return nil
	}
	info := requestFromContext(ctx)
	entry := Entry{
		ID:           NewID(),
		Actor:        actor,
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
		IP:           info.ip,
		UserAgent:    info.userAgent,
		CreatedAt:    at,
	}
	if err := r.logger.Log(ctx, entry); err != nil {
		r.log.Printf("audit: write %s %s=%s: %v", action, resourceType, resourceID, err)
	}
	return nil
}
