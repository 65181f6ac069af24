package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"devicelab/internal/benchtest/application/events"
	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/benchtest/infrastructure/memory"
	"devicelab/internal/eventbus"
)

func TestAddTestStartsBoardAndPoll(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	board, err := f.service.AddBoard(ctx, AddBoardRequest{Name: "Rig 1", LocationCode: "LAB-1", OwnerUserID: "u-1"})
	if err != nil {
		t.Fatalf("add board: %v", err)
	}
	started, err := f.service.AddTest(ctx, AddTestRequest{
		BoardID: board.ID,
		Devices: []DeviceSlot{{SerialNumber: "SN-1", LocationOnBoard: 0}, {SerialNumber: "SN-2", LocationOnBoard: 1}},
	})
	if err != nil {
		t.Fatalf("add test: %v", err)
	}
	if started.Status != benchtest.StatusRunning || started.DeviceCount != 2 {
		t.Fatalf("unexpected board %+v", started)
	}
	if !f.poller.IsPolling(board.ID) {
		t.Fatalf("expected poll to be scheduled")
	}

	if _, err := f.service.AttachDevice(ctx, SaveDeviceRequest{BoardID: board.ID, SerialNumber: "SN-3", LocationOnBoard: 2}); !errors.Is(err, benchtest.ErrInvalidTransition) {
		t.Fatalf("expected attach to running board to fail, got %v", err)
	}

	stopped, err := f.service.StopTest(ctx, board.ID)
	if err != nil || stopped.Status != benchtest.StatusComplete {
		t.Fatalf("stop test: %+v %v", stopped, err)
	}
	if f.poller.IsPolling(board.ID) {
		t.Fatalf("expected poll to be cancelled")
	}
}

func TestAddTestStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	board, err := f.service.AddBoard(ctx, AddBoardRequest{Name: "Rig", LocationCode: "LAB-1"})
	if err != nil {
		t.Fatalf("add board: %v", err)
	}
	_, err = f.service.AddTest(ctx, AddTestRequest{
		BoardID: board.ID,
		Devices: []DeviceSlot{
			{SerialNumber: "SN-1", LocationOnBoard: 0},
			{SerialNumber: "SN-2", LocationOnBoard: 0},
			{SerialNumber: "SN-3", LocationOnBoard: 2},
		},
	})
	if !errors.Is(err, benchtest.ErrSlotOccupied) {
		t.Fatalf("expected slot occupied, got %v", err)
	}
	current, err := f.service.GetBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if current.Status != benchtest.StatusOpen || current.DeviceCount != 1 {
		t.Fatalf("expected open board with the first device, got %+v", current)
	}
}

func TestAttachRejectsDuplicateSerialAcrossBoards(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	first, _ := f.service.AddBoard(ctx, AddBoardRequest{Name: "A", LocationCode: "LAB-1"})
	second, _ := f.service.AddBoard(ctx, AddBoardRequest{Name: "B", LocationCode: "LAB-1"})
	if _, err := f.service.AttachDevice(ctx, SaveDeviceRequest{BoardID: first.ID, SerialNumber: "SN-1"}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := f.service.AttachDevice(ctx, SaveDeviceRequest{BoardID: second.ID, SerialNumber: "SN-1"}); !errors.Is(err, benchtest.ErrDeviceAttached) {
		t.Fatalf("expected device attached, got %v", err)
	}
}

func TestDeleteBoardRules(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	board, _ := f.service.AddBoard(ctx, AddBoardRequest{Name: "Rig", LocationCode: "LAB-1"})
	if _, err := f.service.AttachDevice(ctx, SaveDeviceRequest{BoardID: board.ID, SerialNumber: "SN-1"}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := f.service.DeleteBoard(ctx, board.ID); !errors.Is(err, benchtest.ErrInvalidTransition) {
		t.Fatalf("expected loaded board delete to fail, got %v", err)
	}
	if _, err := f.service.DetachDevice(ctx, board.ID, "SN-1"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if err := f.service.DeleteBoard(ctx, board.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.service.GetBoard(ctx, board.ID); !errors.Is(err, benchtest.ErrBoardNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateBoardKeepsStatus(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	id := f.runningBoard(t, benchtest.DeviceRunning)
	updated, err := f.service.UpdateBoard(ctx, UpdateBoardRequest{BoardID: id, Name: "Renamed", LocationCode: "LAB-2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != benchtest.StatusRunning || updated.DeviceCount != 1 || updated.Name != "Renamed" {
		t.Fatalf("unexpected board %+v", updated)
	}
	if _, err := f.service.UpdateBoard(ctx, UpdateBoardRequest{BoardID: id, LocationCode: "LAB-2"}); !errors.Is(err, benchtest.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for empty name, got %v", err)
	}
}

func TestReportDeviceStatus(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	var changed []events.DeviceStatusChanged
	eventbus.On(f.bus, func(_ context.Context, evt events.DeviceStatusChanged) error {
		changed = append(changed, evt)
		return nil
	})
	id := f.runningBoard(t, benchtest.DeviceQueued, benchtest.DeviceQueued)
	changed = nil

	if _, err := f.service.ReportDeviceStatus(ctx, StatusReport{BoardID: id, SerialNumber: serial(id, 0), Status: "Exploded"}); !errors.Is(err, benchtest.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := f.service.ReportDeviceStatus(ctx, StatusReport{BoardID: id, SerialNumber: "missing", Status: "Completed"}); !errors.Is(err, benchtest.ErrDeviceNotFound) {
		t.Fatalf("expected device not found, got %v", err)
	}
	device, err := f.service.ReportDeviceStatus(ctx, StatusReport{BoardID: id, SerialNumber: serial(id, 0), Status: "completed", Source: "mqtt"})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if device.Status != benchtest.DeviceCompleted {
		t.Fatalf("expected Completed, got %s", device.Status)
	}
	if len(changed) != 1 || changed[0].Summary.TestedCount != 1 || changed[0].Summary.Total != 2 {
		t.Fatalf("unexpected events %+v", changed)
	}
}

func TestGetBoardsByLocation(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	_, _ = f.service.AddBoard(ctx, AddBoardRequest{Name: "A", LocationCode: "LAB-1"})
	_, _ = f.service.AddBoard(ctx, AddBoardRequest{Name: "B", LocationCode: "LAB-2"})
	boards, err := f.service.GetBoardsByLocation(ctx, "LAB-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(boards) != 1 || boards[0].Name != "A" {
		t.Fatalf("unexpected boards %+v", boards)
	}
	empty, err := f.service.GetBoardsByLocation(ctx, "NOWHERE")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", empty, err)
	}
	if _, err := f.service.GetBoardsByLocation(ctx, " "); !errors.Is(err, benchtest.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}
