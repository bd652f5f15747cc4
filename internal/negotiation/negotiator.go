// Package negotiation drives one pion PeerConnection through the
// offer/answer/ICE exchange with a single remote participant.
//
// The participant that learns about a peer while already holding local media
// makes the offer; the other side only answers. Every operation that touches
// a session description runs under one mutex, so pion never sees two
// description changes at once.
package negotiation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type Config struct {
	// API builds peer connections. Defaults to NewAPI(Logger).
	API *webrtc.API
	// ICEServers is usually a single STUN server, see ICEServers.
	ICEServers []webrtc.ICEServer
	Logger     *slog.Logger
}

// Stats counts what a negotiator has put on the wire and applied
type Stats struct {
	OffersSent        int
	AnswersSent       int
	CandidatesSent    int
	CandidatesApplied int
	CandidatesPending int
}

type Negotiator struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	sender     Sender
	logger     *slog.Logger

	state          atomic.Int32
	candidatesSent atomic.Int64

	mu         sync.Mutex
	pc         *webrtc.PeerConnection
	local      *LocalMedia
	remotePeer string
	pending    []webrtc.ICECandidateInit
	stats      Stats
	closed     bool

	cbMu    sync.RWMutex
	onState []func(State)
	onTrack []func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func New(cfg Config, sender Sender) (*Negotiator, error) {
	if sender == nil {
		return nil, fmt.Errorf("negotiator needs a sender")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	api := cfg.API
	if api == nil {
		var err error
		if api, err = NewAPI(logger); err != nil {
			return nil, err
		}
	}

	return &Negotiator{
		api:        api,
		iceServers: cfg.ICEServers,
		sender:     sender,
		logger:     logger,
	}, nil
}

// State returns the current negotiation state
func (n *Negotiator) State() State {
	return State(n.state.Load())
}

// RemotePeer returns the connection id of the peer being negotiated with
func (n *Negotiator) RemotePeer() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remotePeer
}

// Stats returns a copy of the counters
func (n *Negotiator) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.stats
	s.CandidatesSent = int(n.candidatesSent.Load())
	s.CandidatesPending = len(n.pending)
	return s
}

// OnStateChange registers fn to run after every transition. fn runs while the
// negotiator is busy and must not call back into it, except State.
func (n *Negotiator) OnStateChange(fn func(State)) {
	n.cbMu.Lock()
	n.onState = append(n.onState, fn)
	n.cbMu.Unlock()
}

// OnRemoteTrack registers fn for tracks the remote side sends
func (n *Negotiator) OnRemoteTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	n.cbMu.Lock()
	n.onTrack = append(n.onTrack, fn)
	n.cbMu.Unlock()
}

// SetLocalMedia hands over the local device stream. Without it the
// participant never offers but can still answer.
func (n *Negotiator) SetLocalMedia(media *LocalMedia) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	n.local = media

	// A peer connection created early by an incoming candidate has not been
	// described yet, so the tracks can still go on it.
	if n.pc != nil && n.State() == Idle && media != nil {
		return n.addTracksLocked(n.pc)
	}
	return nil
}

// PeerJoined reacts to another participant entering the room. With local
// media this makes us the offerer; a later join restarts the session.
func (n *Negotiator) PeerJoined(peerID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	if n.local == nil {
		n.logger.Info("peer joined, no local media yet; waiting for an offer", "peer", peerID)
		return nil
	}
	if n.pc != nil && n.State() != Idle {
		n.logger.Info("peer joined during a session; restarting", "peer", peerID, "state", n.State())
		n.resetLocked()
	}

	pc, err := n.ensurePeerConnectionLocked()
	if err != nil {
		return err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return n.abortLocked(fmt.Errorf("create offer: %w", err))
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return n.abortLocked(fmt.Errorf("set local description: %w", err))
	}
	n.remotePeer = peerID
	n.setStateLocked(HaveLocalOffer)

	if err := n.sender.SendSignal(descriptionSignal(offer)); err != nil {
		return n.abortLocked(fmt.Errorf("send offer: %w", err))
	}
	n.stats.OffersSent++
	n.logger.Info("offer sent", "peer", peerID)
	return nil
}

// HandleSignal applies one forwarded signal payload from peer from.
// Protocol anomalies come back as ErrUnexpectedOffer or ErrUnexpectedAnswer
// and leave the state untouched.
func (n *Negotiator) HandleSignal(from string, raw json.RawMessage) error {
	var data SignalData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}

	switch {
	case data.Type == sdpTypeOffer:
		return n.handleOfferLocked(from, data.SDP)
	case data.Type == sdpTypeAnswer:
		return n.handleAnswerLocked(from, data.SDP)
	case data.Candidate != nil:
		return n.handleCandidateLocked(*data.Candidate)
	default:
		return ErrUnknownSignal
	}
}

// Close releases the peer connection. The negotiator cannot be reused.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	return n.resetLocked()
}

func (n *Negotiator) handleOfferLocked(from, sdp string) error {
	if state := n.State(); state == HaveLocalOffer || state == HaveRemoteOffer {
		n.logger.Warn("discarding offer", "peer", from, "state", state)
		return fmt.Errorf("%w in state %s", ErrUnexpectedOffer, state)
	}

	pc, err := n.ensurePeerConnectionLocked()
	if err != nil {
		return err
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	n.remotePeer = from
	n.setStateLocked(HaveRemoteOffer)
	n.flushPendingLocked(pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return n.abortLocked(fmt.Errorf("create answer: %w", err))
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return n.abortLocked(fmt.Errorf("set local description: %w", err))
	}
	if err := n.sender.SendSignal(descriptionSignal(answer)); err != nil {
		return n.abortLocked(fmt.Errorf("send answer: %w", err))
	}
	n.stats.AnswersSent++
	n.setStateLocked(Stable)
	n.logger.Info("answer sent", "peer", from)
	return nil
}

func (n *Negotiator) handleAnswerLocked(from, sdp string) error {
	if state := n.State(); state != HaveLocalOffer || n.pc == nil {
		n.logger.Warn("discarding answer", "peer", from, "state", state)
		return fmt.Errorf("%w in state %s", ErrUnexpectedAnswer, state)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := n.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	n.setStateLocked(Stable)
	n.flushPendingLocked(n.pc)
	n.logger.Info("answer applied", "peer", from)
	return nil
}

func (n *Negotiator) handleCandidateLocked(candidate webrtc.ICECandidateInit) error {
	pc, err := n.ensurePeerConnectionLocked()
	if err != nil {
		return err
	}

	// pion refuses candidates before a remote description exists
	if pc.RemoteDescription() == nil {
		n.pending = append(n.pending, candidate)
		n.logger.Debug("candidate buffered", "pending", len(n.pending))
		return nil
	}

	if err := pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	n.stats.CandidatesApplied++
	return nil
}

func (n *Negotiator) flushPendingLocked(pc *webrtc.PeerConnection) {
	pending := n.pending
	n.pending = nil
	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			n.logger.Warn("buffered candidate rejected", "err", err)
			continue
		}
		n.stats.CandidatesApplied++
	}
}

func (n *Negotiator) ensurePeerConnectionLocked() (*webrtc.PeerConnection, error) {
	if n.pc != nil {
		return n.pc, nil
	}

	pc, err := n.api.NewPeerConnection(webrtc.Configuration{ICEServers: n.iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	if n.local != nil {
		if err := n.addTracksLocked(pc); err != nil {
			pc.Close()
			return nil, err
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := n.sender.SendSignal(candidateSignal(c)); err != nil {
			n.logger.Warn("failed to send candidate", "err", err)
			return
		}
		n.candidatesSent.Add(1)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		n.logger.Info("remote track", "kind", track.Kind().String(), "stream", track.StreamID())
		n.cbMu.RLock()
		handlers := append([]func(*webrtc.TrackRemote, *webrtc.RTPReceiver){}, n.onTrack...)
		n.cbMu.RUnlock()
		for _, fn := range handlers {
			fn(track, receiver)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		n.logger.Info("media connection state", "state", s.String())
	})

	n.pc = pc
	return pc, nil
}

func (n *Negotiator) addTracksLocked(pc *webrtc.PeerConnection) error {
	for _, track := range n.local.Tracks {
		if _, err := pc.AddTrack(track); err != nil {
			return fmt.Errorf("add local track %s: %w", track.ID(), err)
		}
	}
	return nil
}

// abortLocked drops a half-negotiated session so the next offer or join
// starts from Idle, and returns err.
func (n *Negotiator) abortLocked(err error) error {
	n.logger.Warn("negotiation failed, resetting", "state", n.State(), "err", err)
	if closeErr := n.resetLocked(); closeErr != nil {
		n.logger.Debug("closing peer connection", "err", closeErr)
	}
	return err
}

func (n *Negotiator) resetLocked() error {
	var err error
	if n.pc != nil {
		err = n.pc.Close()
		n.pc = nil
	}
	n.pending = nil
	n.remotePeer = ""
	if n.State() != Idle {
		n.setStateLocked(Idle)
	}
	return err
}

func (n *Negotiator) setStateLocked(s State) {
	prev := State(n.state.Swap(int32(s)))
	n.logger.Debug("negotiation state", "from", prev, "to", s)

	n.cbMu.RLock()
	handlers := append([]func(State){}, n.onState...)
	n.cbMu.RUnlock()
	for _, fn := range handlers {
		fn(s)
	}
}
