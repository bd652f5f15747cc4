// Package client joins a room on the relay and runs negotiation and chat for
// one participant.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/call-signaling/internal/chat"
	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/negotiation"
	"github.com/mossy-p/call-signaling/internal/transport"
)

var ErrNoRoom = errors.New("room id is required")

type Options struct {
	// URL is the relay's WebSocket endpoint, e.g. ws://localhost:8080/ws/signal
	URL    string
	RoomID string
	Header http.Header

	ICEServers []webrtc.ICEServer
	API        *webrtc.API
	// Media may be nil; the participant then only answers.
	Media *negotiation.LocalMedia

	// OnStateChange and OnChat are attached before the connection starts, so
	// they see every transition and every chat entry.
	OnStateChange func(negotiation.State)
	OnChat        func(chat.Entry)

	Logger *slog.Logger
}

// Participant is one connected member of a room
type Participant struct {
	conn       *transport.Conn
	roomID     string
	negotiator *negotiation.Negotiator
	chat       *chat.Chat
	logger     *slog.Logger
}

// Join dials the relay, wires the room's events into negotiation and chat,
// and announces itself in opts.RoomID.
func Join(ctx context.Context, opts Options) (*Participant, error) {
	if opts.RoomID == "" {
		return nil, ErrNoRoom
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := transport.Dial(ctx, opts.URL, opts.Header, logger)
	if err != nil {
		return nil, err
	}
	logger = logger.With("conn", conn.ID(), "room", opts.RoomID)

	p := &Participant{
		conn:   conn,
		roomID: opts.RoomID,
		chat:   chat.New(opts.RoomID, conn.ID(), conn),
		logger: logger,
	}

	p.negotiator, err = negotiation.New(negotiation.Config{
		API:        opts.API,
		ICEServers: opts.ICEServers,
		Logger:     logger,
	}, negotiation.SenderFunc(p.sendSignal))
	if err != nil {
		conn.Close()
		return nil, err
	}
	if opts.Media != nil {
		if err := p.negotiator.SetLocalMedia(opts.Media); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if opts.OnStateChange != nil {
		p.negotiator.OnStateChange(opts.OnStateChange)
	}
	if opts.OnChat != nil {
		entries := p.chat.Log().Subscribe()
		go func() {
			for e := range entries {
				opts.OnChat(e)
			}
		}()
		conn.OnClose(func() { p.chat.Log().Unsubscribe(entries) })
	}

	conn.On(models.EventUserJoined, p.handleUserJoined)
	conn.On(models.EventSignal, p.handleSignal)
	conn.On(models.EventChatMessage, p.handleChat)
	conn.OnClose(func() {
		if err := p.negotiator.Close(); err != nil {
			p.logger.Warn("closing peer connection", "err", err)
		}
		p.logger.Info("disconnected from relay")
	})
	conn.Start()

	if err := conn.Send(models.EventJoin, opts.RoomID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}
	logger.Info("joined room")
	return p, nil
}

// ID returns the connection id the relay assigned
func (p *Participant) ID() string {
	return p.conn.ID()
}

func (p *Participant) RoomID() string {
	return p.roomID
}

func (p *Participant) Negotiator() *negotiation.Negotiator {
	return p.negotiator
}

func (p *Participant) Chat() *chat.Chat {
	return p.chat
}

// Done is closed once the relay connection is gone
func (p *Participant) Done() <-chan struct{} {
	return p.conn.Done()
}

// Close disconnects from the relay, which removes us from the room. The peer
// connection is released once the connection has shut down.
func (p *Participant) Close() error {
	return p.conn.Close()
}

func (p *Participant) sendSignal(data negotiation.SignalData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	return p.conn.Send(models.EventSignal, models.SignalRequest{RoomID: p.roomID, Data: raw})
}

func (p *Participant) handleUserJoined(data json.RawMessage) {
	var peerID string
	if err := json.Unmarshal(data, &peerID); err != nil {
		p.logger.Warn("malformed user-joined", "err", err)
		return
	}
	p.logger.Info("peer joined", "peer", peerID)
	if err := p.negotiator.PeerJoined(peerID); err != nil {
		p.logger.Warn("could not start negotiation", "peer", peerID, "err", err)
	}
}

func (p *Participant) handleSignal(data json.RawMessage) {
	var fwd models.SignalForward
	if err := json.Unmarshal(data, &fwd); err != nil {
		p.logger.Warn("malformed signal", "err", err)
		return
	}
	if err := p.negotiator.HandleSignal(fwd.From, fwd.Data); err != nil {
		p.logger.Warn("signal discarded", "peer", fwd.From, "err", err)
	}
}

func (p *Participant) handleChat(data json.RawMessage) {
	var msg models.ChatForward
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Warn("malformed chat message", "err", err)
		return
	}
	p.chat.Receive(msg)
}
