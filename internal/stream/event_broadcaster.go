// Package stream pushes game state changes to WebSocket subscribers.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/bughunt/internal/game"
)

// Defaults for subscriber connections.
const (
	DefaultSendBuffer   = 16
	DefaultWriteTimeout = 5 * time.Second
)

// Conn is the part of *websocket.Conn used by the broadcaster.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type subscriber struct {
	conn Conn
	send chan []byte
	done chan struct{}
}

// StateBroadcaster implements game.Publisher. Every published event is
// encoded once and queued on each subscriber; a subscriber whose queue is
// full is disconnected rather than blocking the game.
type StateBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[Conn]*subscriber

	bufferSize   int
	writeTimeout time.Duration
	metrics      *Metrics
	logger       *slog.Logger
}

// NewStateBroadcaster creates a broadcaster with no subscribers.
func NewStateBroadcaster(logger *slog.Logger, metrics *Metrics) *StateBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateBroadcaster{
		subscribers:  make(map[Conn]*subscriber),
		bufferSize:   DefaultSendBuffer,
		writeTimeout: DefaultWriteTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// Subscribe registers conn and starts its writer. initial, if non-nil, is
// sent before any later event.
func (b *StateBroadcaster) Subscribe(conn Conn, initial *game.Event) {
	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, b.bufferSize),
		done: make(chan struct{}),
	}
	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			sub.send <- data
		} else {
			b.logger.Error("failed to marshal initial state", "error", err)
		}
	}

	b.mu.Lock()
	b.subscribers[conn] = sub
	n := len(b.subscribers)
	b.mu.Unlock()

	b.metrics.setConnections(n)
	go b.writeLoop(sub)
}

// Unsubscribe stops delivering events to conn. It is safe to call more
// than once.
func (b *StateBroadcaster) Unsubscribe(conn Conn) {
	b.mu.Lock()
	sub, ok := b.subscribers[conn]
	if ok {
		delete(b.subscribers, conn)
		close(sub.done)
	}
	n := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		b.metrics.setConnections(n)
	}
}

// Publish queues e for every subscriber. It never blocks.
func (b *StateBroadcaster) Publish(e game.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("failed to marshal state event", "error", err, "reason", e.Reason)
		return
	}

	var slow []Conn
	b.mu.RLock()
	for conn, sub := range b.subscribers {
		select {
		case sub.send <- data:
			b.metrics.incPublished()
		default:
			slow = append(slow, conn)
		}
	}
	b.mu.RUnlock()

	for _, conn := range slow {
		b.metrics.incDropped()
		b.logger.Warn("dropping slow websocket subscriber", "reason", e.Reason)
		b.Unsubscribe(conn)
		_ = conn.Close()
	}
}

// ConnectionCount returns the number of active subscribers.
func (b *StateBroadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close disconnects every subscriber.
func (b *StateBroadcaster) Close() {
	b.mu.RLock()
	conns := make([]Conn, 0, len(b.subscribers))
	for conn := range b.subscribers {
		conns = append(conns, conn)
	}
	b.mu.RUnlock()

	for _, conn := range conns {
		b.Unsubscribe(conn)
		_ = conn.Close()
	}
}

func (b *StateBroadcaster) writeLoop(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				b.logger.Warn("failed to send message to websocket client", "error", err)
				b.Unsubscribe(sub.conn)
				_ = sub.conn.Close()
				return
			}
		}
	}
}
