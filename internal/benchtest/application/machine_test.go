package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/benchtest/infrastructure/memory"
)

func TestMachineStartRequiresDevices(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	board, err := f.service.AddBoard(ctx, AddBoardRequest{Name: "Rig", LocationCode: "LAB-1"})
	if err != nil {
		t.Fatalf("add board: %v", err)
	}
	if _, err := f.machine.Start(ctx, board.ID); !errors.Is(err, benchtest.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := f.machine.Start(ctx, 999); !errors.Is(err, benchtest.ErrBoardNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMachineStopTwice(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	id := f.runningBoard(t, benchtest.DeviceRunning)

	board, err := f.machine.Stop(ctx, id)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if board.Status != benchtest.StatusComplete {
		t.Fatalf("expected Complete, got %s", board.Status)
	}
	if _, err := f.machine.Stop(ctx, id); !errors.Is(err, benchtest.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on second stop, got %v", err)
	}
	if got := f.transitions(benchtest.TransitionStop.Name); got != 1 {
		t.Fatalf("expected one stop event, got %d", got)
	}
}

func TestMachineClearRemovesDevices(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	id := f.runningBoard(t, benchtest.DeviceCompleted, benchtest.DeviceError)

	if _, err := f.machine.Clear(ctx, id); !errors.Is(err, benchtest.ErrInvalidTransition) {
		t.Fatalf("expected clear of running board to fail, got %v", err)
	}
	if _, err := f.machine.Stop(ctx, id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	board, err := f.machine.Clear(ctx, id)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if board.Status != benchtest.StatusOpen || board.DeviceCount != 0 {
		t.Fatalf("expected open empty board, got %+v", board)
	}
	devices, err := f.repo.ListDevices(ctx, id)
	if err != nil {
		t.Fatalf("list devices: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected no device rows, got %d", len(devices))
	}
}

func TestMachineConcurrentStopAppliesOnce(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	id := f.runningBoard(t, benchtest.DeviceRunning)

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.machine.Stop(context.Background(), id)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, benchtest.ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful stop, got %d", succeeded)
	}
}

func TestMachineCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t, memory.NewBoardRepository(), time.Hour)
	ctx := context.Background()
	id := f.runningBoard(t, benchtest.DeviceCompleted)

	board, applied, err := f.machine.Complete(ctx, id)
	if err != nil || !applied || board.Status != benchtest.StatusComplete {
		t.Fatalf("expected applied completion, got %+v %v %v", board, applied, err)
	}
	board, applied, err = f.machine.Complete(ctx, id)
	if err != nil || applied || board.Status != benchtest.StatusComplete {
		t.Fatalf("expected idempotent completion, got %+v %v %v", board, applied, err)
	}
}
