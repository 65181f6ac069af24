package application

import (
	"context"
	"errors"
	"io"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"devicelab/internal/auth"
	benchevents "devicelab/internal/benchtest/application/events"
	"devicelab/internal/eventbus"
	"devicelab/internal/lots/application/events"
	lots "devicelab/internal/lots/domain"
	"devicelab/internal/observability/metrics"
)

// DefaultVerifyConcurrency bounds concurrent device master writes.
const DefaultVerifyConcurrency = 8

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// EligibleLot is a lot offered for bench test verification.
type EligibleLot struct {
	lots.DeviceLot
	Progress lots.Progress `json:"progress"`
}

// EligibleLots is the verification picklist.
type EligibleLots struct {
	Lots               []EligibleLot `json:"lots"`
	RequiredPercentage int           `json:"requiredPercentage"`
}

// Engine computes lot sampling progress and writes bench test verification
// back to the device master record.
type Engine struct {
	lots        lots.LotRepository
	master      lots.DeviceMaster
	settings    lots.SettingsRepository
	publisher   eventbus.Publisher
	clock       Clock
	logger      *log.Logger
	defaultPct  int
	concurrency int
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithClock assigns a clock.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPublisher assigns the event publisher.
func WithPublisher(publisher eventbus.Publisher) EngineOption {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithDefaultRequiredPercentage sets the percentage used when none is stored.
func WithDefaultRequiredPercentage(pct int) EngineOption {
	return func(e *Engine) {
		if lots.ValidatePercentage(pct) == nil {
			e.defaultPct = pct
		}
	}
}

// WithVerifyConcurrency bounds concurrent device writes.
func WithVerifyConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine constructs a verification engine. settings may be nil.
func NewEngine(lotRepo lots.LotRepository, master lots.DeviceMaster, settings lots.SettingsRepository, opts ...EngineOption) (*Engine, error) {
	if lotRepo == nil {
		return nil, errors.New("lots: nil lot repository")
	}
	if master == nil {
		return nil, errors.New("lots: nil device master")
	}
	engine := &Engine{
		lots:        lotRepo,
		master:      master,
		settings:    settings,
		clock:       systemClock{},
		logger:      log.New(io.Discard, "", 0),
		defaultPct:  lots.DefaultRequiredPercentage,
		concurrency: DefaultVerifyConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// GetEligibleLots lists lots with active assignment and at least one tested device.
func (e *Engine) GetEligibleLots(ctx context.Context) (EligibleLots, error) {
	pct, err := e.RequiredPercentage(ctx)
	if err != nil {
		e.logger.Printf("lots: read required percentage failed, using default %d: %v", e.defaultPct, err)
		pct = e.defaultPct
	}
	candidates, err := e.lots.ListByStatus(ctx, lots.AssigningStatuses...)
	if err != nil {
		return EligibleLots{}, err
	}
	result := EligibleLots{Lots: []EligibleLot{}, RequiredPercentage: pct}
	for _, lot := range candidates {
		devices, err := e.lots.ListDevices(ctx, lot.SeqID, lot.Type)
		if err != nil {
			return EligibleLots{}, err
		}
		progress := lots.ComputeProgress(lots.Statuses(devices), pct)
		if progress.TestedCount == 0 {
			continue
		}
		result.Lots = append(result.Lots, EligibleLot{DeviceLot: lot, Progress: progress})
	}
	return result, nil
}

// ListDevices returns the devices of a lot assigned under lotType.
func (e *Engine) ListDevices(ctx context.Context, seqID int64, lotType lots.LotType) ([]lots.LotDevice, error) {
	lot, lotType, err := e.resolve(ctx, seqID, lotType)
	if err != nil {
		return nil, err
	}
	devices, err := e.lots.ListDevices(ctx, lot.SeqID, lotType)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []lots.LotDevice{}
	}
	return devices, nil
}

// ComputeProgress reports a lot's sampling progress against the required percentage.
func (e *Engine) ComputeProgress(ctx context.Context, seqID int64, lotType lots.LotType) (lots.Progress, error) {
	devices, err := e.ListDevices(ctx, seqID, lotType)
	if err != nil {
		return lots.Progress{}, err
	}
	pct, err := e.RequiredPercentage(ctx)
	if err != nil {
		return lots.Progress{}, err
	}
	return lots.ComputeProgress(lots.Statuses(devices), pct), nil
}

// Verify marks every terminal device of the lot as bench test verified. Each
// write is independent; failures are reported per device and never abort the
// batch. The required percentage is not enforced here.
func (e *Engine) Verify(ctx context.Context, seqID int64, lotType lots.LotType) (result lots.VerificationResult, err error) {
	start := e.clock.Now()
	defer func() {
		metrics.ObserveVerify(result.SuccessfulUpdates, result.FailedUpdates, err, e.clock.Now().Sub(start))
	}()

	lot, lotType, err := e.resolve(ctx, seqID, lotType)
	if err != nil {
		return lots.VerificationResult{}, err
	}
	devices, err := e.lots.ListDevices(ctx, lot.SeqID, lotType)
	if err != nil {
		return lots.VerificationResult{}, err
	}

	var tested []lots.LotDevice
	for _, device := range devices {
		if device.Status.IsTerminal() {
			tested = append(tested, device)
		}
	}
	if len(tested) == 0 {
		return lots.VerificationResult{}, lots.ErrNoDevicesFound
	}

	at := e.clock.Now()
	results := make([]lots.DeviceUpdateResult, len(tested))
	var group errgroup.Group
	group.SetLimit(e.concurrency)
	for i, device := range tested {
		i, serial := i, device.SerialNumber
		group.Go(func() error {
			results[i] = lots.DeviceUpdateResult{SerialNumber: serial, Success: true}
			if err := e.master.MarkBenchTestVerified(ctx, serial, at); err != nil {
				results[i].Success = false
				results[i].ErrorMessage = err.Error()
			}
			return nil
		})
	}
	_ = group.Wait()

	result = lots.VerificationResult{
		LotSeqID:     lot.SeqID,
		LotType:      lotType,
		TotalDevices: len(devices),
		Results:      results,
	}
	for _, r := range results {
		if r.Success {
			result.SuccessfulUpdates++
		} else {
			result.FailedUpdates++
		}
	}
	if result.FailedUpdates > 0 {
		e.logger.Printf("lots: verify lot=%d type=%s failed=%d of %d", lot.SeqID, lotType, result.FailedUpdates, len(results))
	} else {
		result.LotMarkedComplete = e.markComplete(ctx, lot)
	}

	e.publish(ctx, events.LotVerified{
		EventID:           eventbus.NewEventID(),
		LotSeqID:          lot.SeqID,
		LotType:           lotType,
		TotalDevices:      result.TotalDevices,
		SuccessfulUpdates: result.SuccessfulUpdates,
		FailedUpdates:     result.FailedUpdates,
		LotMarkedComplete: result.LotMarkedComplete,
		Actor:             auth.ActorFromContext(ctx, "system"),
		OccurredAt:        at,
	})
	return result, nil
}

func (e *Engine) markComplete(ctx context.Context, lot *lots.DeviceLot) bool {
	switch lot.Status {
	case lots.LotBenchTestComplete:
		return true
	case lots.LotClosed:
		return false
	}
	if err := e.lots.UpdateStatus(ctx, lot.SeqID, lots.LotBenchTestComplete, e.clock.Now()); err != nil {
		e.logger.Printf("lots: mark lot=%d bench test complete failed: %v", lot.SeqID, err)
		return false
	}
	return true
}

// RequiredPercentage returns the stored percentage or the configured default.
func (e *Engine) RequiredPercentage(ctx context.Context) (int, error) {
	if e.settings == nil {
		return e.defaultPct, nil
	}
	value, ok, err := e.settings.Get(ctx, lots.SettingRequiredPercentage)
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.defaultPct, nil
	}
	pct, err := strconv.Atoi(value)
	if err != nil || lots.ValidatePercentage(pct) != nil {
		e.logger.Printf("lots: ignoring stored required percentage %q", value)
		return e.defaultPct, nil
	}
	return pct, nil
}

// SetRequiredPercentage stores a new required percentage.
func (e *Engine) SetRequiredPercentage(ctx context.Context, pct int) error {
	if err := lots.ValidatePercentage(pct); err != nil {
		return err
	}
	if e.settings == nil {
		return errors.New("lots: settings store not configured")
	}
	previous, err := e.RequiredPercentage(ctx)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	if err := e.settings.Set(ctx, lots.SettingRequiredPercentage, strconv.Itoa(pct), now); err != nil {
		return err
	}
	e.publish(ctx, events.RequiredPercentageChanged{
		EventID:    eventbus.NewEventID(),
		Previous:   previous,
		Percentage: pct,
		Actor:      auth.ActorFromContext(ctx, "system"),
		OccurredAt: now,
	})
	return nil
}

// HandleDeviceStatusChanged mirrors a board device status onto the device
// master record, which is what lot progress is computed from.
func (e *Engine) HandleDeviceStatusChanged(ctx context.Context, evt benchevents.DeviceStatusChanged) error {
	if evt.SerialNumber == "" {
		return nil
	}
	err := e.master.RecordBenchTestStatus(ctx, evt.SerialNumber, evt.Status, evt.OccurredAt)
	if errors.Is(err, lots.ErrDeviceNotFound) {
		e.logger.Printf("lots: device %s has no master record, status not mirrored", evt.SerialNumber)
		return nil
	}
	return err
}

func (e *Engine) resolve(ctx context.Context, seqID int64, lotType lots.LotType) (*lots.DeviceLot, lots.LotType, error) {
	if seqID <= 0 {
		return nil, "", lots.InvalidRequestf("lotSeqId must be positive")
	}
	parsed, err := lots.ParseLotType(string(lotType))
	if err != nil {
		return nil, "", err
	}
	lot, err := e.lots.Get(ctx, seqID)
	if err != nil {
		return nil, "", err
	}
	if lot == nil {
		return nil, "", lots.ErrLotNotFound
	}
	if parsed == "" {
		parsed = lot.Type
	}
	return lot, parsed, nil
}

func (e *Engine) publish(ctx context.Context, event any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Printf("lots: publish %s failed: %v", eventbus.EventType(event), err)
	}
}
