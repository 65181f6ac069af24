package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"devicelab/internal/benchtest/application/events"
	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/observability/metrics"
)

// CheckResult is the outcome of one completion check.
type CheckResult struct {
	IsComplete bool              `json:"isComplete"`
	Summary    benchtest.Summary `json:"summary"`
	Board      *benchtest.Board  `json:"board,omitempty"`
}

// Poller watches Running boards and completes each one once all of its
// devices report a terminal status. At most one poll runs per board.
type Poller struct {
	boards   benchtest.BoardRepository
	machine  *Machine
	interval time.Duration
	clock    Clock
	logger   *log.Logger

	mu     sync.Mutex
	polls  map[int64]*pollHandle
	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type pollHandle struct {
	cancel context.CancelFunc
}

// NewPoller constructs a completion poller.
func NewPoller(boards benchtest.BoardRepository, machine *Machine, opts ...Option) (*Poller, error) {
	if boards == nil {
		return nil, errors.New("benchtest: nil board repository")
	}
	if machine == nil {
		return nil, errors.New("benchtest: nil machine")
	}
	o := buildOptions(opts)
	root, cancel := context.WithCancel(context.Background())
	return &Poller{
		boards:   boards,
		machine:  machine,
		interval: o.interval,
		clock:    o.clock,
		logger:   o.logger,
		polls:    make(map[int64]*pollHandle),
		root:     root,
		cancel:   cancel,
	}, nil
}

// StartPolling schedules periodic checks for a board. It returns false when
// the board is already polled or the poller is shut down.
func (p *Poller) StartPolling(boardID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.root.Err() != nil {
		return false
	}
	if _, exists := p.polls[boardID]; exists {
		return false
	}
	ctx, cancel := context.WithCancel(p.root)
	handle := &pollHandle{cancel: cancel}
	p.polls[boardID] = handle
	metrics.SetActivePolls(len(p.polls))

	p.wg.Add(1)
	go p.run(ctx, boardID, handle)
	p.logger.Printf("benchtest poller: started board=%d interval=%s", boardID, p.interval)
	return true
}

// StopPolling cancels a board's poll. It is a no-op when none is running.
func (p *Poller) StopPolling(boardID int64) {
	p.mu.Lock()
	handle, exists := p.polls[boardID]
	if exists {
		delete(p.polls, boardID)
		metrics.SetActivePolls(len(p.polls))
	}
	p.mu.Unlock()
	if exists {
		handle.cancel()
		p.logger.Printf("benchtest poller: stopped board=%d", boardID)
	}
}

// IsPolling reports whether a board currently has a poll.
func (p *Poller) IsPolling(boardID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists := p.polls[boardID]
	return exists
}

// CheckNow runs exactly one check-and-maybe-complete cycle.
func (p *Poller) CheckNow(ctx context.Context, boardID int64) (CheckResult, error) {
	return p.check(ctx, boardID, metrics.TriggerOnDemand)
}

// Resume schedules every board that is Running, so polls survive a restart.
func (p *Poller) Resume(ctx context.Context) (int, error) {
	boards, err := p.boards.ListByStatus(ctx, benchtest.StatusRunning)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, board := range boards {
		if p.StartPolling(board.ID) {
			started++
		}
	}
	return started, nil
}

// Shutdown cancels all polls and waits for them to exit.
func (p *Poller) Shutdown() {
	p.mu.Lock()
	p.cancel()
	p.polls = make(map[int64]*pollHandle)
	metrics.SetActivePolls(0)
	p.mu.Unlock()
	p.wg.Wait()
}

// HandleBoardUpdated unschedules boards that left Running, so an operator
// Stop cancels the poll before the next tick.
func (p *Poller) HandleBoardUpdated(ctx context.Context, evt events.BoardUpdated) error {
	_ = ctx
	if evt.Status != benchtest.StatusRunning {
		p.StopPolling(evt.BoardID)
	}
	return nil
}

func (p *Poller) run(ctx context.Context, boardID int64, handle *pollHandle) {
	defer p.wg.Done()
	defer p.forget(boardID, handle)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := p.check(ctx, boardID, metrics.TriggerTick)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				switch {
				case errors.Is(err, benchtest.ErrEmptyBoard):
					p.logger.Printf("benchtest poller: board=%d is running without devices, check board configuration", boardID)
				case errors.Is(err, benchtest.ErrBoardNotFound), errors.Is(err, benchtest.ErrInvalidTransition):
					p.logger.Printf("benchtest poller: board=%d no longer pollable: %v", boardID, err)
					return
				default:
					p.logger.Printf("benchtest poller: board=%d check failed, retrying: %v", boardID, err)
				}
				continue
			}
			if result.IsComplete {
				p.logger.Printf("benchtest poller: board=%d complete success=%d tested=%d", boardID, result.Summary.SuccessCount, result.Summary.TestedCount)
				return
			}
		}
	}
}

func (p *Poller) forget(boardID int64, handle *pollHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, exists := p.polls[boardID]; exists && current == handle {
		delete(p.polls, boardID)
		metrics.SetActivePolls(len(p.polls))
	}
	handle.cancel()
}

func (p *Poller) check(ctx context.Context, boardID int64, trigger string) (result CheckResult, err error) {
	start := p.clock.Now()
	defer func() {
		metrics.ObservePollCheck(trigger, result.IsComplete, err, p.clock.Now().Sub(start))
	}()

	board, err := p.machine.load(ctx, boardID)
	if err != nil {
		return CheckResult{}, err
	}
	switch board.Status {
	case benchtest.StatusOpen:
		return CheckResult{}, benchtest.TransitionStop.Check(board)
	case benchtest.StatusComplete:
		devices, err := p.boards.ListDevices(ctx, boardID)
		if err != nil {
			return CheckResult{}, err
		}
		return CheckResult{IsComplete: true, Summary: benchtest.SummarizeDevices(devices), Board: board}, nil
	}

	devices, err := p.boards.ListDevices(ctx, boardID)
	if err != nil {
		return CheckResult{}, err
	}
	if len(devices) == 0 {
		return CheckResult{Board: board}, benchtest.ErrEmptyBoard
	}
	summary := benchtest.SummarizeDevices(devices)
	if !summary.AllTerminal() {
		return CheckResult{Summary: summary, Board: board}, nil
	}

	completed, _, err := p.machine.Complete(ctx, boardID)
	if err != nil {
		return CheckResult{Summary: summary, Board: board}, err
	}
	return CheckResult{IsComplete: true, Summary: summary, Board: completed}, nil
}
