package http

import (
	"context"
	"encoding/json"
	"sync"

	"devicelab/internal/benchtest/application/events"
)

// Frame is one pushed board event.
type Frame struct {
	Type    string `json:"type"`
	BoardID int64  `json:"boardId"`
	Data    any    `json:"data"`
}

// Broker fans out board events to stream subscribers. A subscriber for board
// 0 receives every board.
type Broker struct {
	mu      sync.Mutex
	clients map[chan []byte]int64
}

// NewBroker constructs a broker.
func NewBroker() *Broker {
	return &Broker{clients: make(map[chan []byte]int64)}
}

// Subscribe registers a client channel for a board.
func (b *Broker) Subscribe(boardID int64) chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = boardID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.clients[ch]
	delete(b.clients, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// HandleBoardUpdated pushes a transition.
func (b *Broker) HandleBoardUpdated(_ context.Context, evt events.BoardUpdated) error {
	return b.publish(Frame{Type: "boardUpdated", BoardID: evt.BoardID, Data: evt})
}

// HandleBoardCleared pushes a clear.
func (b *Broker) HandleBoardCleared(_ context.Context, evt events.BoardCleared) error {
	return b.publish(Frame{Type: "boardCleared", BoardID: evt.BoardID, Data: evt})
}

// HandleDeviceStatusChanged pushes a device status report.
func (b *Broker) HandleDeviceStatusChanged(_ context.Context, evt events.DeviceStatusChanged) error {
	return b.publish(Frame{Type: "deviceStatusChanged", BoardID: evt.BoardID, Data: evt})
}

func (b *Broker) publish(frame Frame) error {
	if b == nil {
		return nil
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, boardID := range b.clients {
		if boardID != 0 && boardID != frame.BoardID {
			continue
		}
		// slow clients drop frames
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}
