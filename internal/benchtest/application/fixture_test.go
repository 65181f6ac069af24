package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"devicelab/internal/benchtest/application/events"
	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/benchtest/infrastructure/memory"
	"devicelab/internal/eventbus"
)

type fixture struct {
	repo    *memory.BoardRepository
	bus     *eventbus.Bus
	machine *Machine
	poller  *Poller
	service *Service

	mu      sync.Mutex
	updates []events.BoardUpdated
}

func newFixture(t *testing.T, boards benchtest.BoardRepository, interval time.Duration) *fixture {
	t.Helper()
	f := &fixture{bus: eventbus.New()}
	if repo, ok := boards.(*memory.BoardRepository); ok {
		f.repo = repo
	}
	opts := []Option{WithPublisher(f.bus), WithPollInterval(interval)}
	machine, err := NewMachine(boards, opts...)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	poller, err := NewPoller(boards, machine, opts...)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	service, err := NewService(boards, machine, poller, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	eventbus.On(f.bus, poller.HandleBoardUpdated)
	eventbus.On(f.bus, func(_ context.Context, evt events.BoardUpdated) error {
		f.mu.Lock()
		f.updates = append(f.updates, evt)
		f.mu.Unlock()
		return nil
	})
	t.Cleanup(poller.Shutdown)
	f.machine, f.poller, f.service = machine, poller, service
	return f
}

func (f *fixture) transitions(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, evt := range f.updates {
		if evt.Transition == name {
			count++
		}
	}
	return count
}

// runningBoard creates a board with the given device statuses and starts it.
func (f *fixture) runningBoard(t *testing.T, statuses ...benchtest.DeviceStatus) int64 {
	t.Helper()
	ctx := context.Background()
	board, err := f.service.AddBoard(ctx, AddBoardRequest{Name: "Rig", LocationCode: "LAB-1"})
	if err != nil {
		t.Fatalf("add board: %v", err)
	}
	req := AddTestRequest{BoardID: board.ID}
	for i := range statuses {
		req.Devices = append(req.Devices, DeviceSlot{SerialNumber: serial(board.ID, i), LocationOnBoard: i})
	}
	if _, err := f.service.AddTest(ctx, req); err != nil {
		t.Fatalf("add test: %v", err)
	}
	f.poller.StopPolling(board.ID)
	for i, status := range statuses {
		if _, err := f.service.ReportDeviceStatus(ctx, StatusReport{BoardID: board.ID, SerialNumber: serial(board.ID, i), Status: string(status)}); err != nil {
			t.Fatalf("report status: %v", err)
		}
	}
	return board.ID
}

func serial(boardID int64, slot int) string {
	return fmt.Sprintf("SN-%d-%02d", boardID, slot)
}

// flakyBoards fails device reads while failing is set.
type flakyBoards struct {
	*memory.BoardRepository
	mu      sync.Mutex
	failing bool
}

var errReadFailed = errors.New("store unavailable")

func (f *flakyBoards) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyBoards) ListDevices(ctx context.Context, boardID int64) ([]benchtest.BoardDevice, error) {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return nil, errReadFailed
	}
	return f.BoardRepository.ListDevices(ctx, boardID)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
