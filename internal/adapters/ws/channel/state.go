package channel

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Status is a read-only snapshot of the channel.
type Status struct {
	VideoID   string
	State     State
	Attempts  int
	LastError string
}

// IsConnected reports an open socket.
func (s Status) IsConnected() bool { return s.State == StateOpen }

// IsConnecting reports a dial in progress.
func (s Status) IsConnecting() bool { return s.State == StateConnecting }
