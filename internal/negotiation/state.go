package negotiation

// State is where a participant stands in the offer/answer exchange
type State int32

const (
	Idle State = iota
	HaveLocalOffer
	HaveRemoteOffer
	Stable
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case HaveLocalOffer:
		return "have-local-offer"
	case HaveRemoteOffer:
		return "have-remote-offer"
	case Stable:
		return "stable"
	default:
		return "unknown"
	}
}
