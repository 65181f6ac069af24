package lots

import (
	"context"
	"time"

	benchtest "devicelab/internal/benchtest/domain"
)

// LotRepository reads lots and their device assignments. Get returns nil, nil
// for a missing lot. ListDevices with an empty lot type returns every
// assignment of the lot.
type LotRepository interface {
	Get(ctx context.Context, seqID int64) (*DeviceLot, error)
	ListByStatus(ctx context.Context, statuses ...LotStatus) ([]DeviceLot, error)
	ListDevices(ctx context.Context, seqID int64, lotType LotType) ([]LotDevice, error)
	UpdateStatus(ctx context.Context, seqID int64, status LotStatus, at time.Time) error
}

// DeviceMaster is the authoritative device record. Both writes are
// idempotent single-device updates.
type DeviceMaster interface {
	MarkBenchTestVerified(ctx context.Context, serialNumber string, at time.Time) error
	RecordBenchTestStatus(ctx context.Context, serialNumber string, status benchtest.DeviceStatus, at time.Time) error
}

// SettingsRepository stores tunables. Get reports false when the key is unset.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, at time.Time) error
}

// SettingRequiredPercentage is the settings key of the required percentage.
const SettingRequiredPercentage = "bench_test.required_percentage"
