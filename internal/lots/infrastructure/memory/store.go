package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	benchtest "devicelab/internal/benchtest/domain"
	lots "devicelab/internal/lots/domain"
)

type assignment struct {
	seqID   int64
	lotType lots.LotType
	serial  string
}

type deviceRecord struct {
	status     benchtest.DeviceStatus
	verified   bool
	verifiedAt *time.Time
}

// Store is an in-memory lot, device master and settings store.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	lots        map[int64]lots.DeviceLot
	assignments []assignment
	devices     map[string]deviceRecord
	settings    map[string]string
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		lots:     make(map[int64]lots.DeviceLot),
		devices:  make(map[string]deviceRecord),
		settings: make(map[string]string),
	}
}

// AddLot stores a lot and assigns its sequence id.
func (s *Store) AddLot(lot lots.DeviceLot) lots.DeviceLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	lot.SeqID = s.nextID
	if lot.Status == "" {
		lot.Status = lots.LotOpen
	}
	s.lots[lot.SeqID] = lot
	return lot
}

// AssignDevice adds a device to a lot under the lot's type, creating its
// master record when missing.
func (s *Store) AssignDevice(seqID int64, serial string, status benchtest.DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot := s.lots[seqID]
	s.assignments = append(s.assignments, assignment{seqID: seqID, lotType: lot.Type, serial: serial})
	record := s.devices[serial]
	record.status = status
	s.devices[serial] = record
}

// Get returns a lot or nil.
func (s *Store) Get(ctx context.Context, seqID int64) (*lots.DeviceLot, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	lot, ok := s.lots[seqID]
	if !ok {
		return nil, nil
	}
	return &lot, nil
}

// ListByStatus returns lots in any of the statuses ordered by sequence id.
func (s *Store) ListByStatus(ctx context.Context, statuses ...lots.LotStatus) ([]lots.DeviceLot, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []lots.DeviceLot
	for _, lot := range s.lots {
		for _, status := range statuses {
			if lot.Status == status {
				result = append(result, lot)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SeqID < result[j].SeqID })
	return result, nil
}

// ListDevices returns a lot's devices in assignment order.
func (s *Store) ListDevices(ctx context.Context, seqID int64, lotType lots.LotType) ([]lots.LotDevice, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []lots.LotDevice
	for _, a := range s.assignments {
		if a.seqID != seqID || (lotType != "" && a.lotType != lotType) {
			continue
		}
		record := s.devices[a.serial]
		result = append(result, lots.LotDevice{
			SerialNumber:      a.serial,
			LotSeqID:          a.seqID,
			LotType:           a.lotType,
			Status:            record.status,
			BenchTestVerified: record.verified,
			VerifiedAt:        record.verifiedAt,
		})
	}
	return result, nil
}

// UpdateStatus sets a lot's status.
func (s *Store) UpdateStatus(ctx context.Context, seqID int64, status lots.LotStatus, at time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[seqID]
	if !ok {
		return lots.ErrLotNotFound
	}
	lot.Status = status
	lot.UpdatedAt = at
	s.lots[seqID] = lot
	return nil
}

// MarkBenchTestVerified sets a device's verified flag.
func (s *Store) MarkBenchTestVerified(ctx context.Context, serialNumber string, at time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.devices[serialNumber]
	if !ok {
		return lots.ErrDeviceNotFound
	}
	record.verified = true
	record.verifiedAt = &at
	s.devices[serialNumber] = record
	return nil
}

// RecordBenchTestStatus sets a device's bench test status.
func (s *Store) RecordBenchTestStatus(ctx context.Context, serialNumber string, status benchtest.DeviceStatus, at time.Time) error {
	_, _ = ctx, at
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.devices[serialNumber]
	if !ok {
		return lots.ErrDeviceNotFound
	}
	record.status = status
	s.devices[serialNumber] = record
	return nil
}

// Setting returns a stored setting.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.settings[key]
	return value, ok, nil
}

// Settings adapts the store to lots.SettingsRepository.
func (s *Store) Settings() lots.SettingsRepository {
	return settingsView{store: s}
}

type settingsView struct {
	store *Store
}

func (v settingsView) Get(ctx context.Context, key string) (string, bool, error) {
	return v.store.Setting(ctx, key)
}

func (v settingsView) Set(ctx context.Context, key, value string, at time.Time) error {
	_, _ = ctx, at
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	v.store.settings[key] = value
	return nil
}
