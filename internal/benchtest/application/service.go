package application

import (
	"context"
	"errors"
	"log"
	"strings"

	"devicelab/internal/benchtest/application/events"
	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/eventbus"
	"devicelab/internal/observability/metrics"
)

// AddBoardRequest creates a board.
type AddBoardRequest struct {
	Name         string `json:"name"`
	LocationCode string `json:"locationCode"`
	OwnerUserID  string `json:"ownerUserId"`
}

// UpdateBoardRequest edits the descriptive fields of a board.
type UpdateBoardRequest struct {
	BoardID      int64  `json:"boardId"`
	Name         string `json:"name"`
	LocationCode string `json:"locationCode"`
	OwnerUserID  string `json:"ownerUserId"`
}

// SaveDeviceRequest places one device on a board slot.
type SaveDeviceRequest struct {
	BoardID         int64  `json:"boardId"`
	SerialNumber    string `json:"deviceSerialNumber"`
	LocationOnBoard int    `json:"locationOnBoard"`
}

// DeviceSlot is one device of an AddTest batch.
type DeviceSlot struct {
	SerialNumber    string `json:"deviceSerialNumber"`
	LocationOnBoard int    `json:"locationOnBoard"`
}

// AddTestRequest loads devices onto an Open board and starts the test.
type AddTestRequest struct {
	BoardID int64        `json:"boardId"`
	Devices []DeviceSlot `json:"devices"`
}

// StatusReport is a device status reported by a test rig.
type StatusReport struct {
	BoardID      int64  `json:"boardId"`
	SerialNumber string `json:"deviceSerialNumber"`
	Status       string `json:"benchTestStatusCode"`
	Source       string `json:"-"`
}

// BoardReport is a board with its devices and outcome counts.
type BoardReport struct {
	Board   benchtest.Board         `json:"board"`
	Devices []benchtest.BoardDevice `json:"devices"`
	Summary benchtest.Summary       `json:"summary"`
}

// Service is the bench test board use-case layer.
type Service struct {
	boards    benchtest.BoardRepository
	machine   *Machine
	poller    *Poller
	publisher eventbus.Publisher
	clock     Clock
	logger    *log.Logger
}

// NewService constructs a bench test service.
func NewService(boards benchtest.BoardRepository, machine *Machine, poller *Poller, opts ...Option) (*Service, error) {
	if boards == nil {
		return nil, errors.New("benchtest: nil board repository")
	}
	if machine == nil {
		return nil, errors.New("benchtest: nil machine")
	}
	if poller == nil {
		return nil, errors.New("benchtest: nil poller")
	}
	o := buildOptions(opts)
	return &Service{
		boards:    boards,
		machine:   machine,
		poller:    poller,
		publisher: o.publisher,
		clock:     o.clock,
		logger:    o.logger,
	}, nil
}

// AddBoard creates an Open, empty board.
func (s *Service) AddBoard(ctx context.Context, req AddBoardRequest) (*benchtest.Board, error) {
	now := s.clock.Now()
	board := &benchtest.Board{
		Name:         strings.TrimSpace(req.Name),
		LocationCode: strings.TrimSpace(req.LocationCode),
		OwnerUserID:  strings.TrimSpace(req.OwnerUserID),
		Status:       benchtest.StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := board.Validate(); err != nil {
		return nil, err
	}
	if err := s.boards.Create(ctx, board); err != nil {
		return nil, err
	}
	return board, nil
}

// UpdateBoard changes name, location and owner. Status and device count are
// never writable through this call.
func (s *Service) UpdateBoard(ctx context.Context, req UpdateBoardRequest) (*benchtest.Board, error) {
	board, err := s.GetBoard(ctx, req.BoardID)
	if err != nil {
		return nil, err
	}
	board.Name = strings.TrimSpace(req.Name)
	board.LocationCode = strings.TrimSpace(req.LocationCode)
	board.OwnerUserID = strings.TrimSpace(req.OwnerUserID)
	board.UpdatedAt = s.clock.Now()
	if err := board.Validate(); err != nil {
		return nil, err
	}
	if err := s.boards.UpdateDetails(ctx, board); err != nil {
		return nil, err
	}
	return board, nil
}

// DeleteBoard removes an Open, empty board.
func (s *Service) DeleteBoard(ctx context.Context, boardID int64) error {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := board.CanDelete(); err != nil {
		return err
	}
	return s.boards.Delete(ctx, boardID)
}

// GetBoard returns a board or ErrBoardNotFound.
func (s *Service) GetBoard(ctx context.Context, boardID int64) (*benchtest.Board, error) {
	return s.machine.load(ctx, boardID)
}

// GetBoardsByLocation lists the boards at a location.
func (s *Service) GetBoardsByLocation(ctx context.Context, locationCode string) ([]benchtest.Board, error) {
	locationCode = strings.TrimSpace(locationCode)
	if locationCode == "" {
		return nil, benchtest.InvalidRequestf("locationCode required")
	}
	boards, err := s.boards.ListByLocation(ctx, locationCode)
	if err != nil {
		return nil, err
	}
	if boards == nil {
		boards = []benchtest.Board{}
	}
	return boards, nil
}

// ListDevices returns a board's devices ordered by slot.
func (s *Service) ListDevices(ctx context.Context, boardID int64) ([]benchtest.BoardDevice, error) {
	if _, err := s.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	devices, err := s.boards.ListDevices(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []benchtest.BoardDevice{}
	}
	return devices, nil
}

// Report returns the board, its devices and their summary.
func (s *Service) Report(ctx context.Context, boardID int64) (*BoardReport, error) {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	devices, err := s.boards.ListDevices(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return &BoardReport{Board: *board, Devices: devices, Summary: benchtest.SummarizeDevices(devices)}, nil
}

// AttachDevice places a device on an Open board.
func (s *Service) AttachDevice(ctx context.Context, req SaveDeviceRequest) (*benchtest.BoardDevice, error) {
	now := s.clock.Now()
	device := benchtest.BoardDevice{
		BoardID:         req.BoardID,
		SerialNumber:    strings.TrimSpace(req.SerialNumber),
		LocationOnBoard: req.LocationOnBoard,
		Status:          benchtest.DeviceQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := device.Validate(); err != nil {
		return nil, err
	}
	board, err := s.GetBoard(ctx, req.BoardID)
	if err != nil {
		return nil, err
	}
	if err := board.CanChangeDevices(); err != nil {
		return nil, err
	}
	if _, err := s.boards.AttachDevice(ctx, device); err != nil {
		return nil, err
	}
	return &device, nil
}

// DetachDevice removes a device from an Open board.
func (s *Service) DetachDevice(ctx context.Context, boardID int64, serialNumber string) (*benchtest.Board, error) {
	serialNumber = strings.TrimSpace(serialNumber)
	if serialNumber == "" {
		return nil, benchtest.InvalidRequestf("serialNumber required")
	}
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := board.CanChangeDevices(); err != nil {
		return nil, err
	}
	return s.boards.DetachDevice(ctx, boardID, serialNumber, s.clock.Now())
}

// AddTest attaches the batch in order, starts the board and schedules its
// poll. Attachment stops at the first failure; devices attached before it
// stay on the Open board.
func (s *Service) AddTest(ctx context.Context, req AddTestRequest) (*benchtest.Board, error) {
	if _, err := s.GetBoard(ctx, req.BoardID); err != nil {
		return nil, err
	}
	for _, slot := range req.Devices {
		if _, err := s.AttachDevice(ctx, SaveDeviceRequest{
			BoardID:         req.BoardID,
			SerialNumber:    slot.SerialNumber,
			LocationOnBoard: slot.LocationOnBoard,
		}); err != nil {
			return nil, err
		}
	}
	board, err := s.machine.Start(ctx, req.BoardID)
	if err != nil {
		return nil, err
	}
	s.poller.StartPolling(board.ID)
	return board, nil
}

// StopTest forces a Running board to Complete and cancels its poll.
func (s *Service) StopTest(ctx context.Context, boardID int64) (*benchtest.Board, error) {
	board, err := s.machine.Stop(ctx, boardID)
	if err != nil {
		return nil, err
	}
	s.poller.StopPolling(boardID)
	return board, nil
}

// ClearTest empties a Complete board and reopens it.
func (s *Service) ClearTest(ctx context.Context, boardID int64) (*benchtest.Board, error) {
	return s.machine.Clear(ctx, boardID)
}

// StopIfComplete runs one on-demand completion check.
func (s *Service) StopIfComplete(ctx context.Context, boardID int64) (CheckResult, error) {
	result, err := s.poller.CheckNow(ctx, boardID)
	if err != nil {
		return result, err
	}
	if result.IsComplete {
		s.poller.StopPolling(boardID)
	}
	return result, nil
}

// ReportDeviceStatus records a device status reported by a rig.
func (s *Service) ReportDeviceStatus(ctx context.Context, report StatusReport) (device *benchtest.BoardDevice, err error) {
	defer func() { metrics.IncDeviceStatusReport(report.Source, err) }()

	serialNumber := strings.TrimSpace(report.SerialNumber)
	if report.BoardID <= 0 {
		return nil, benchtest.InvalidRequestf("boardId must be positive")
	}
	if serialNumber == "" {
		return nil, benchtest.InvalidRequestf("deviceSerialNumber required")
	}
	status, err := benchtest.ParseDeviceStatus(report.Status)
	if err != nil {
		return nil, err
	}
	device, err = s.boards.UpdateDeviceStatus(ctx, report.BoardID, serialNumber, status, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		var summary benchtest.Summary
		if devices, listErr := s.boards.ListDevices(ctx, report.BoardID); listErr == nil {
			summary = benchtest.SummarizeDevices(devices)
		}
		if pubErr := s.publisher.Publish(ctx, events.DeviceStatusChanged{
			EventID:      eventbus.NewEventID(),
			BoardID:      report.BoardID,
			SerialNumber: serialNumber,
			Status:       status,
			Source:       report.Source,
			Summary:      summary,
			OccurredAt:   device.UpdatedAt,
		}); pubErr != nil {
			s.logger.Printf("benchtest: publish device status failed board=%d serial=%s: %v", report.BoardID, serialNumber, pubErr)
		}
	}
	return device, nil
}
