package stream

// State is the stream path's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateReconnecting
	StateExhausted // attempt ceiling reached; fallback takes over
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}
