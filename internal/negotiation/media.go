package negotiation

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// LocalMedia is the device stream handed over by whatever captured it. The
// negotiator only attaches its tracks; it never reads or writes samples.
type LocalMedia struct {
	StreamID string
	Tracks   []webrtc.TrackLocal
}

func NewLocalMedia(streamID string, tracks ...webrtc.TrackLocal) *LocalMedia {
	return &LocalMedia{StreamID: streamID, Tracks: tracks}
}

// NewSyntheticMedia builds a VP8 video and Opus audio track pair for
// participants that have no capture device, such as the headless CLI.
func NewSyntheticMedia(streamID string) (*LocalMedia, error) {
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	return NewLocalMedia(streamID, video, audio), nil
}
