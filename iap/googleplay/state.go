package googleplay

// State is the connection state of a Vendor.
type State uint8

const (
	StateUninitialized State = iota
	StateConnecting
	StateCapable
	StateIncapable
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateCapable:
		return "capable"
	case StateIncapable:
		return "incapable"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

type stateTransitionChart map[State][]State

// Disposed is terminal. Incapable may reconnect, since the platform can
// re-establish a dropped binding on its own.
var stateTransitions = stateTransitionChart{
	StateUninitialized: {StateConnecting, StateIncapable, StateDisposed},
	StateConnecting:    {StateCapable, StateIncapable, StateDisposed},
	StateCapable:       {StateCapable, StateIncapable, StateDisposed},
	StateIncapable:     {StateConnecting, StateCapable, StateIncapable, StateDisposed},
}

func (c stateTransitionChart) Allowed(from, to State) bool {
	list, exists := c[from]
	if !exists {
		return false
	}
	for _, s := range list {
		if s == to {
			return true
		}
	}
	return false
}
