// Package relay routes signaling and chat events between the members of a
// room. It never interprets signal payloads and never echoes an event back
// to its sender.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/rooms"
	"github.com/mossy-p/call-signaling/internal/transport"
)

const observerTimeout = 2 * time.Second

// Observer is told about membership changes. The Redis presence mirror
// implements it.
type Observer interface {
	Joined(ctx context.Context, roomID, connID string) error
	Left(ctx context.Context, roomID, connID string) error
}

type Relay struct {
	server   *transport.Server
	registry *rooms.Registry
	observer Observer
	metrics  *Metrics
	logger   *slog.Logger
}

type Option func(*Relay)

func WithObserver(o Observer) Option {
	return func(r *Relay) {
		r.observer = o
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// New builds a relay and attaches it to srv. Each call registers another
// connection handler; use Setup for the process-wide instance.
func New(srv *transport.Server, registry *rooms.Registry, opts ...Option) *Relay {
	r := &Relay{
		server:   srv,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	srv.OnConnection(r.attach)
	return r
}

var (
	setupMu  sync.Mutex
	instance *Relay
)

// Setup returns the process-wide relay, creating it on first use. Later
// calls return the same instance and register nothing.
func Setup(srv *transport.Server, registry *rooms.Registry, opts ...Option) *Relay {
	setupMu.Lock()
	defer setupMu.Unlock()

	if instance != nil {
		instance.logger.Debug("relay already initialized")
		return instance
	}
	instance = New(srv, registry, opts...)
	instance.logger.Info("relay initialized")
	return instance
}

// Registry exposes the room registry the relay mutates
func (r *Relay) Registry() *rooms.Registry {
	return r.registry
}

func (r *Relay) attach(conn *transport.Conn) {
	id := conn.ID()
	r.metrics.connections.Inc()

	conn.On(models.EventJoin, func(data json.RawMessage) {
		r.handleJoin(id, data)
	})
	conn.On(models.EventSignal, func(data json.RawMessage) {
		r.handleSignal(id, data)
	})
	conn.On(models.EventChatMessage, func(data json.RawMessage) {
		r.handleChat(id, data)
	})
	conn.OnClose(func() {
		r.handleClose(id)
	})
}

func (r *Relay) handleJoin(connID string, data json.RawMessage) {
	r.metrics.received.WithLabelValues(models.EventJoin).Inc()

	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		r.drop(connID, models.EventJoin, dropMalformed)
		return
	}

	if !r.registry.Join(roomID, connID) {
		r.logger.Debug("already in room", "conn", connID, "room", roomID)
		return
	}
	r.logger.Info("joined room", "conn", connID, "room", roomID)

	if r.observer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
		if err := r.observer.Joined(ctx, roomID, connID); err != nil {
			r.logger.Warn("presence join not recorded", "conn", connID, "room", roomID, "err", err)
		}
		cancel()
	}

	r.forward(roomID, connID, models.EventUserJoined, connID)
}

func (r *Relay) handleSignal(connID string, data json.RawMessage) {
	r.metrics.received.WithLabelValues(models.EventSignal).Inc()

	var req models.SignalRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" || len(req.Data) == 0 {
		r.drop(connID, models.EventSignal, dropMalformed)
		return
	}

	r.forward(req.RoomID, connID, models.EventSignal, models.SignalForward{
		From: connID,
		Data: req.Data,
	})
}

func (r *Relay) handleChat(connID string, data json.RawMessage) {
	r.metrics.received.WithLabelValues(models.EventChatMessage).Inc()

	var req models.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		r.drop(connID, models.EventChatMessage, dropMalformed)
		return
	}

	r.logger.Debug("chat message", "conn", connID, "room", req.RoomID)
	r.forward(req.RoomID, connID, models.EventChatMessage, models.ChatForward{
		SenderID: connID,
		Content:  req.Message,
	})
}

func (r *Relay) handleClose(connID string) {
	r.metrics.connections.Dec()

	left := r.registry.LeaveAll(connID)
	r.logger.Info("disconnected", "conn", connID, "rooms", left)

	if r.observer == nil || len(left) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()
	for _, roomID := range left {
		if err := r.observer.Left(ctx, roomID, connID); err != nil {
			r.logger.Warn("presence leave not recorded", "conn", connID, "room", roomID, "err", err)
		}
	}
}

// forward sends event to every member of roomID except senderID and returns
// how many deliveries were queued.
func (r *Relay) forward(roomID, senderID, event string, payload any) int {
	sent := 0
	for _, id := range r.registry.MembersExcept(roomID, senderID) {
		peer, ok := r.server.Lookup(id)
		if !ok {
			r.metrics.dropped.WithLabelValues(dropPeerGone).Inc()
			continue
		}

		if err := peer.Send(event, payload); err != nil {
			reason := dropClosed
			if errors.Is(err, transport.ErrSendBufferFull) {
				reason = dropBufferFull
			}
			r.metrics.dropped.WithLabelValues(reason).Inc()
			r.logger.Debug("forward failed", "event", event, "to", id, "err", err)
			continue
		}
		r.metrics.forwarded.WithLabelValues(event).Inc()
		sent++
	}
	return sent
}

func (r *Relay) drop(connID, event, reason string) {
	r.metrics.dropped.WithLabelValues(reason).Inc()
	r.logger.Warn("dropping event", "conn", connID, "event", event, "reason", reason)
}
