// Package transport carries named JSON events over a WebSocket.
//
// Each Conn runs one read goroutine and one write goroutine. Handlers for a
// connection run on its read goroutine, one at a time, in arrival order.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/call-signaling/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP blobs fit comfortably.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Handler receives the raw payload of one event
type Handler func(data json.RawMessage)

// Conn is one participant's connection to the relay (or the relay, seen from
// a participant).
type Conn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger
	send   chan []byte

	mu            sync.RWMutex
	handlers      map[string][]Handler
	closeHandlers []func()

	started   atomic.Bool
	startOnce sync.Once
	doneOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
	finished  chan struct{}
}

func newConn(id string, ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		id:       id,
		ws:       ws,
		logger:   logger.With("conn", id),
		send:     make(chan []byte, sendBufferSize),
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// ID returns the connection id assigned by the relay
func (c *Conn) ID() string {
	return c.id
}

// On registers h for event. Several handlers may share an event; they run in
// registration order.
func (c *Conn) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.mu.Unlock()
}

// OnClose registers h to run once when the connection terminates. No event
// handler runs after close handlers have started.
func (c *Conn) OnClose(h func()) {
	c.mu.Lock()
	c.closeHandlers = append(c.closeHandlers, h)
	c.mu.Unlock()
}

// Done is closed once the connection is shutting down
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send queues event for delivery. It never blocks: a slow peer loses the
// message and the caller gets ErrSendBufferFull.
func (c *Conn) Send(event string, payload any) error {
	data, err := encodeFrame(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("send buffer full, dropping event", "event", event)
		return ErrSendBufferFull
	}
}

// Finished is closed once every close handler has returned
func (c *Conn) Finished() <-chan struct{} {
	return c.finished
}

// Start launches the read and write pumps. Register handlers first.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.writePump()
		go c.readPump()
	})
}

// Close flushes queued events, sends a close frame and tears the connection
// down. Close handlers run on the read goroutine once it notices.
func (c *Conn) Close() error {
	c.markDone()
	if !c.started.Load() {
		c.terminate()
	}
	return nil
}

func (c *Conn) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// terminate runs exactly once per connection
func (c *Conn) terminate() {
	c.closeOnce.Do(func() {
		c.markDone()
		c.ws.Close()

		c.mu.RLock()
		handlers := append([]func(){}, c.closeHandlers...)
		c.mu.RUnlock()
		for _, h := range handlers {
			h()
		}
		close(c.finished)
	})
}

func (c *Conn) dispatch(frame models.Frame) {
	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers[frame.Event]...)
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("no handler for event", "event", frame.Event)
		return
	}
	for _, h := range handlers {
		h(frame.Data)
	}
}

func (c *Conn) readPump() {
	defer c.terminate()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "err", err)
			}
			return
		}

		var frame models.Frame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Event == "" {
			c.logger.Warn("dropping malformed frame", "err", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write failed", "err", err)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued without waiting for more
func (c *Conn) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

func encodeFrame(event string, payload any) ([]byte, error) {
	frame := models.Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}
