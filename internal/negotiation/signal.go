package negotiation

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

var (
	ErrClosed          = errors.New("negotiator closed")
	ErrMalformedSignal = errors.New("malformed signal")
	ErrUnknownSignal   = errors.New("signal is neither a description nor a candidate")
	ErrUnexpectedOffer = errors.New("unexpected offer")
	// ErrUnexpectedAnswer marks an answer that arrived while no offer was
	// outstanding. The answer is discarded.
	ErrUnexpectedAnswer = errors.New("unexpected answer")
)

const (
	sdpTypeOffer  = "offer"
	sdpTypeAnswer = "answer"
)

// SignalData is the payload a participant puts inside a signal event.
// Descriptions carry Type and SDP; candidates carry only Candidate.
type SignalData struct {
	Type      string                   `json:"type,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func descriptionSignal(desc webrtc.SessionDescription) SignalData {
	return SignalData{Type: desc.Type.String(), SDP: desc.SDP}
}

func candidateSignal(c *webrtc.ICECandidate) SignalData {
	init := c.ToJSON()
	return SignalData{Candidate: &init}
}

// Sender delivers signal payloads to the remote participant. It must be safe
// for concurrent use and must not block on the remote side.
type Sender interface {
	SendSignal(data SignalData) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(data SignalData) error

func (f SenderFunc) SendSignal(data SignalData) error {
	return f(data)
}
