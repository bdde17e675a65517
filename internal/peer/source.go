package peer

// Source is where the address of a peer came from.
type Source int

// Peer sources
const (
	SourceTracker Source = iota
	SourceManual
	SourceIncoming
)

func (s Source) String() string {
	switch s {
	case SourceTracker:
		return "tracker"
	case SourceManual:
		return "manual"
	case SourceIncoming:
		return "incoming"
	default:
		panic("unhandled source")
	}
}
