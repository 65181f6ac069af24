package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	"devicelab/internal/auth"
	"devicelab/internal/benchtest/application/events"
	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/eventbus"
	"devicelab/internal/observability/metrics"
)

// SystemActor is recorded for transitions not driven by a user request.
const SystemActor = "system"

// Machine applies board lifecycle transitions. Each transition is a
// compare-and-swap in the store, so concurrent callers racing on the same
// edge see exactly one success.
type Machine struct {
	boards    benchtest.BoardRepository
	publisher eventbus.Publisher
	clock     Clock
	logger    *log.Logger
}

// NewMachine constructs a board state machine.
func NewMachine(boards benchtest.BoardRepository, opts ...Option) (*Machine, error) {
	if boards == nil {
		return nil, errors.New("benchtest: nil board repository")
	}
	o := buildOptions(opts)
	return &Machine{
		boards:    boards,
		publisher: o.publisher,
		clock:     o.clock,
		logger:    o.logger,
	}, nil
}

// Start moves an Open board with devices to Running.
func (m *Machine) Start(ctx context.Context, boardID int64) (*benchtest.Board, error) {
	return m.apply(ctx, boardID, benchtest.TransitionStart)
}

// Stop moves a Running board to Complete regardless of device progress.
func (m *Machine) Stop(ctx context.Context, boardID int64) (*benchtest.Board, error) {
	return m.apply(ctx, boardID, benchtest.TransitionStop)
}

// Clear removes every device from a Complete board and reopens it.
func (m *Machine) Clear(ctx context.Context, boardID int64) (*benchtest.Board, error) {
	board, err := m.load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := benchtest.TransitionClear.Check(board); err != nil {
		metrics.ObserveTransition(benchtest.TransitionClear.Name, err)
		return nil, err
	}
	updated, err := m.boards.ClearDevices(ctx, boardID, m.clock.Now())
	if err != nil {
		err = m.conflict(ctx, boardID, benchtest.TransitionClear, err)
		metrics.ObserveTransition(benchtest.TransitionClear.Name, err)
		return nil, err
	}
	metrics.ObserveTransition(benchtest.TransitionClear.Name, nil)

	actor := auth.ActorFromContext(ctx, SystemActor)
	m.publish(ctx, events.BoardCleared{
		EventID:        eventbus.NewEventID(),
		BoardID:        boardID,
		RemovedDevices: board.DeviceCount,
		Actor:          actor,
		OccurredAt:     updated.UpdatedAt,
	})
	m.publishUpdated(ctx, benchtest.TransitionClear, board.Status, updated, actor)
	return updated, nil
}

// Complete is the poller's Running to Complete edge. It is idempotent: when
// the board is already Complete, or another caller completed it first, the
// stored board is returned with applied false and no error.
func (m *Machine) Complete(ctx context.Context, boardID int64) (*benchtest.Board, bool, error) {
	board, err := m.load(ctx, boardID)
	if err != nil {
		return nil, false, err
	}
	if board.Status == benchtest.StatusComplete {
		return board, false, nil
	}
	updated, err := m.apply(ctx, boardID, benchtest.TransitionStop)
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, benchtest.ErrInvalidTransition) {
		return nil, false, err
	}
	current, loadErr := m.load(ctx, boardID)
	if loadErr != nil {
		return nil, false, loadErr
	}
	if current.Status == benchtest.StatusComplete {
		return current, false, nil
	}
	return nil, false, err
}

func (m *Machine) apply(ctx context.Context, boardID int64, t benchtest.Transition) (*benchtest.Board, error) {
	board, err := m.load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := t.Check(board); err != nil {
		metrics.ObserveTransition(t.Name, err)
		return nil, err
	}
	updated, err := m.boards.TransitionStatus(ctx, boardID, t, m.clock.Now())
	if err != nil {
		err = m.conflict(ctx, boardID, t, err)
		metrics.ObserveTransition(t.Name, err)
		return nil, err
	}
	metrics.ObserveTransition(t.Name, nil)
	m.publishUpdated(ctx, t, board.Status, updated, auth.ActorFromContext(ctx, SystemActor))
	return updated, nil
}

func (m *Machine) load(ctx context.Context, boardID int64) (*benchtest.Board, error) {
	if boardID <= 0 {
		return nil, benchtest.InvalidRequestf("boardId must be positive")
	}
	board, err := m.boards.Get(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, benchtest.ErrBoardNotFound
	}
	return board, nil
}

// conflict turns a lost compare-and-swap into an InvalidTransition naming the
// status the winner left behind.
func (m *Machine) conflict(ctx context.Context, boardID int64, t benchtest.Transition, err error) error {
	if !errors.Is(err, benchtest.ErrStatusConflict) {
		return err
	}
	current, loadErr := m.boards.Get(ctx, boardID)
	if loadErr != nil || current == nil {
		return fmt.Errorf("%w: %s lost a concurrent update", benchtest.ErrInvalidTransition, t.Name)
	}
	if checkErr := t.Check(current); checkErr != nil {
		return checkErr
	}
	return fmt.Errorf("%w: %s lost a concurrent update", benchtest.ErrInvalidTransition, t.Name)
}

func (m *Machine) publishUpdated(ctx context.Context, t benchtest.Transition, previous benchtest.Status, board *benchtest.Board, actor string) {
	m.publish(ctx, events.BoardUpdated{
		EventID:        eventbus.NewEventID(),
		BoardID:        board.ID,
		Transition:     t.Name,
		PreviousStatus: previous,
		Status:         board.Status,
		DeviceCount:    board.DeviceCount,
		Actor:          actor,
		OccurredAt:     board.UpdatedAt,
	})
}

func (m *Machine) publish(ctx context.Context, event any) {
	if m.publisher == nil {
		return
	}
	// the transition is committed; deliver even if the caller's poll was cancelled
	if err := m.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		m.logger.Printf("benchtest: publish %s failed: %v", eventbus.EventType(event), err)
	}
}
